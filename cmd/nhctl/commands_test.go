package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/chat"
)

type fakeSession struct {
	login *api.LoginRequest
}

func (f *fakeSession) GetStatus(context.Context) (*api.StatusResponse, error) {
	return &api.StatusResponse{
		Profile:  "work",
		State:    "READY",
		Since:    time.Now(),
		LoggedIn: true,
		User:     chat.UserRef{ID: "u1", Name: "ana"},
	}, nil
}

func (f *fakeSession) Login(_ context.Context, req *api.LoginRequest) (*api.StatusResponse, error) {
	f.login = req
	return &api.StatusResponse{State: "LOADING", LoggedIn: true, User: chat.UserRef{ID: "u1", Name: req.Username}}, nil
}

func (f *fakeSession) Logout(context.Context) (*api.StatusResponse, error) {
	return &api.StatusResponse{State: "AUTH_REQUIRED"}, nil
}

type fakeChat struct {
	chatAPI
	view     chat.View
	sent     *api.SendMessageRequest
	unreact  *api.ReactionRequest
	deleted  string
	selected string
}

func (f *fakeChat) GetView(context.Context) (*api.ViewResponse, error) {
	return &api.ViewResponse{View: f.view}, nil
}

func (f *fakeChat) LoadRooms(_ context.Context, req *api.LoadRoomsRequest) (*api.RoomsResponse, error) {
	return &api.RoomsResponse{Rooms: f.view.Rooms, Self: f.view.Self.ID, Page: req.Page, TotalPages: 1, Total: len(f.view.Rooms)}, nil
}

func (f *fakeChat) SelectRoom(_ context.Context, roomID string) (*api.ViewResponse, error) {
	f.selected = roomID
	v := f.view
	v.SelectedRoom = roomID
	return &api.ViewResponse{View: v}, nil
}

func (f *fakeChat) SendMessage(_ context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error) {
	f.sent = req
	return &api.SendMessageResponse{Message: chat.Message{ID: chat.PendingID("c1"), RoomID: req.RoomID, Text: req.Text}}, nil
}

func (f *fakeChat) Unreact(_ context.Context, req *api.ReactionRequest) error {
	f.unreact = req
	return nil
}

func (f *fakeChat) DeleteRoom(_ context.Context, roomID string) error {
	f.deleted = roomID
	return nil
}

func (f *fakeChat) Search(_ context.Context, query string) (*api.ViewResponse, error) {
	v := f.view
	v.Search = &chat.SearchResults{Query: query}
	for _, m := range f.view.Messages {
		if strings.Contains(m.Text, query) {
			v.Search.Messages = append(v.Search.Messages, m)
		}
	}
	return &api.ViewResponse{View: v}, nil
}

type fakePrefs struct {
	prefsAPI
	hidden []string
}

func (f *fakePrefs) HideNote(_ context.Context, noteID string) (*api.HiddenNotesResponse, error) {
	f.hidden = append(f.hidden, noteID)
	return &api.HiddenNotesResponse{NoteIDs: f.hidden}, nil
}

func (f *fakePrefs) MigrateHiddenNotes(context.Context, string) (*api.MigrateResponse, error) {
	return &api.MigrateResponse{Skipped: true}, nil
}

func newTestCLI() (*cli, *fakeSession, *fakeChat, *fakePrefs, *bytes.Buffer) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := &fakeSession{}
	c := &fakeChat{view: chat.View{
		Self: chat.UserRef{ID: "u1", Name: "ana"},
		Rooms: []chat.Room{
			{ID: "r1", Name: "Team", Participants: []chat.UserRef{{ID: "u1"}, {ID: "u2"}}, IsGroup: true},
			{ID: "r2", Participants: []chat.UserRef{{ID: "u1", Name: "ana"}, {ID: "u3", Name: "Bo"}}},
		},
		Messages: []chat.Message{
			{ID: "m1", RoomID: "r1", Sender: chat.UserRef{ID: "u2", Name: "cy"}, Text: "deploy done", CreatedAt: at,
				Reactions: map[string][]string{"👍": {"u1"}, "🎉": {"u2", "u3"}}},
			{ID: "m2", RoomID: "r1", Sender: chat.UserRef{ID: "u1", Name: "ana"}, Text: "thanks", CreatedAt: at, Pinned: true},
		},
	}}
	p := &fakePrefs{}
	out := &bytes.Buffer{}
	return &cli{session: s, chat: c, prefs: p, out: out, in: strings.NewReader("")}, s, c, p, out
}

func TestParseInterspersed(t *testing.T) {
	fs := newFlags("send")
	photo := fs.String("photo", "", "")
	pos, err := parseInterspersed(fs, []string{"r1", "--photo", "https://x/p.png", "hello", "there"})
	if err != nil {
		t.Fatal(err)
	}
	if *photo != "https://x/p.png" {
		t.Errorf("photo = %q", *photo)
	}
	if strings.Join(pos, ",") != "r1,hello,there" {
		t.Errorf("positional = %v", pos)
	}
}

func TestLoginReadsPassword(t *testing.T) {
	c, s, _, _, out := newTestCLI()
	c.in = strings.NewReader("s3cret\n")
	if err := c.run(context.Background(), []string{"login", "ana", "--register", "--display", "Ana"}); err != nil {
		t.Fatal(err)
	}
	if s.login.Password != "s3cret" || !s.login.Register || s.login.DisplayName != "Ana" {
		t.Errorf("login request = %+v", s.login)
	}
	if !strings.Contains(out.String(), "Logged in as ana") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLoginRequiresUser(t *testing.T) {
	c, _, _, _, _ := newTestCLI()
	if err := c.run(context.Background(), []string{"login"}); !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want errUsage", err)
	}
}

func TestSendResolvesRoomByName(t *testing.T) {
	c, _, fc, _, out := newTestCLI()
	if err := c.run(context.Background(), []string{"send", "bo", "see", "you", "--photo", "https://x/p.png"}); err != nil {
		t.Fatal(err)
	}
	if fc.sent.RoomID != "r2" || fc.sent.Text != "see you" || fc.sent.PhotoURL != "https://x/p.png" {
		t.Errorf("sent = %+v", fc.sent)
	}
	if !strings.Contains(out.String(), "Queued pending:c1") {
		t.Errorf("output = %q", out.String())
	}
}

func TestMessagesOutput(t *testing.T) {
	c, _, fc, _, out := newTestCLI()
	if err := c.run(context.Background(), []string{"messages", "Team"}); err != nil {
		t.Fatal(err)
	}
	if fc.selected != "r1" {
		t.Errorf("selected = %q", fc.selected)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.Contains(lines[0], "🎉×2 👍×1") {
		t.Errorf("reactions = %q", lines[0])
	}
	if !strings.Contains(lines[1], "you") || !strings.HasSuffix(lines[1], "[pinned]") {
		t.Errorf("own message = %q", lines[1])
	}
}

func TestReactRemove(t *testing.T) {
	c, _, fc, _, _ := newTestCLI()
	if err := c.run(context.Background(), []string{"react", "--remove", "r1", "m1", "👍"}); err != nil {
		t.Fatal(err)
	}
	if fc.unreact == nil || fc.unreact.MessageID != "m1" || fc.unreact.Emoji != "👍" {
		t.Errorf("unreact = %+v", fc.unreact)
	}
}

func TestDeleteRoom(t *testing.T) {
	c, _, fc, _, _ := newTestCLI()
	if err := c.run(context.Background(), []string{"delete", "r2"}); err != nil {
		t.Fatal(err)
	}
	if fc.deleted != "r2" {
		t.Errorf("deleted = %q", fc.deleted)
	}
}

func TestSearchJSON(t *testing.T) {
	c, _, _, _, out := newTestCLI()
	c.json = true
	if err := c.run(context.Background(), []string{"search", "deploy"}); err != nil {
		t.Fatal(err)
	}
	var hits []chat.Message
	if err := json.Unmarshal(out.Bytes(), &hits); err != nil {
		t.Fatalf("decode: %v (%s)", err, out.String())
	}
	if len(hits) != 1 || hits[0].ID != "m1" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestHidden(t *testing.T) {
	c, _, _, p, out := newTestCLI()
	if err := c.run(context.Background(), []string{"hidden", "hide", "n7"}); err != nil {
		t.Fatal(err)
	}
	if len(p.hidden) != 1 || strings.TrimSpace(out.String()) != "n7" {
		t.Errorf("hidden = %v, output %q", p.hidden, out.String())
	}

	out.Reset()
	if err := c.run(context.Background(), []string{"hidden", "migrate"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Nothing to migrate") {
		t.Errorf("migrate output = %q", out.String())
	}
	if err := c.run(context.Background(), []string{"hidden", "bogus"}); err == nil {
		t.Error("unknown subcommand accepted")
	}
}
