package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/notehub/nhchat/internal/wire"
)

const testPassword = "correct horse battery"

type testRelay struct {
	t   *testing.T
	s   *Server
	srv *httptest.Server
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()
	s, err := New(Config{
		DBPath:     filepath.Join(t.TempDir(), "relay.db"),
		JWTSecret:  "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		srv.Close()
	})
	return &testRelay{t: t, s: s, srv: srv}
}

// call performs a request and decodes a JSON response into out when given.
func (tr *testRelay) call(method, path, token string, body, out any) int {
	tr.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(tr.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, tr.srv.URL+path, rd)
	require.NoError(tr.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(tr.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(tr.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (tr *testRelay) register(name string) wire.TokenResponse {
	tr.t.Helper()
	var tok wire.TokenResponse
	code := tr.call(http.MethodPost, "/api/auth/register", "",
		wire.Credentials{Username: name, Password: testPassword, DisplayName: strings.ToUpper(name)}, &tok)
	require.Equal(tr.t, http.StatusCreated, code)
	return tok
}

// dial opens the live channel for tok and waits until the hub has it.
func (tr *testRelay) dial(tok wire.TokenResponse) *websocket.Conn {
	tr.t.Helper()
	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/ws?token=" + tok.AccessToken
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(tr.t, err)
	tr.t.Cleanup(func() { _ = ws.Close() })
	require.Eventually(tr.t, func() bool { return tr.s.hub.Online(tok.User.ID) }, 2*time.Second, 10*time.Millisecond)
	return ws
}

// next reads frames until one of type typ arrives.
func next(t *testing.T, ws *websocket.Conn, typ string) wire.Envelope {
	t.Helper()
	for {
		_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		var env wire.Envelope
		require.NoError(t, ws.ReadJSON(&env), "waiting for %s", typ)
		if env.Type == typ {
			return env
		}
	}
}

func TestAuthFlow(t *testing.T) {
	tr := startRelay(t)
	reg := tr.register("ana")
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.NotEmpty(t, reg.RefreshToken)
	require.NotNil(t, reg.User)
	assert.Equal(t, "ANA", reg.User.DisplayName)

	assert.Equal(t, http.StatusConflict, tr.call(http.MethodPost, "/api/auth/register", "",
		wire.Credentials{Username: "Ana", Password: testPassword}, nil))
	assert.Equal(t, http.StatusBadRequest, tr.call(http.MethodPost, "/api/auth/register", "",
		wire.Credentials{Username: "bo", Password: "short"}, nil))

	var login wire.TokenResponse
	require.Equal(t, http.StatusOK, tr.call(http.MethodPost, "/api/auth/login", "",
		wire.Credentials{Username: "ana", Password: testPassword}, &login))
	assert.Equal(t, http.StatusUnauthorized, tr.call(http.MethodPost, "/api/auth/login", "",
		wire.Credentials{Username: "ana", Password: "wrong password!"}, nil))
	assert.Equal(t, http.StatusUnauthorized, tr.call(http.MethodPost, "/api/auth/login", "",
		wire.Credentials{Username: "nobody", Password: testPassword}, nil))

	var me wire.User
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/me", login.AccessToken, nil, &me))
	assert.Equal(t, reg.User.ID, me.ID)

	assert.Equal(t, http.StatusUnauthorized, tr.call(http.MethodGet, "/api/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, tr.call(http.MethodGet, "/api/me", login.RefreshToken, nil, nil),
		"refresh tokens are not access tokens")

	var refreshed wire.TokenResponse
	require.Equal(t, http.StatusOK, tr.call(http.MethodPost, "/api/auth/refresh", login.RefreshToken, nil, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, tr.call(http.MethodPost, "/api/auth/refresh", login.AccessToken, nil, nil))
}

func TestRoomsAndLiveMessages(t *testing.T) {
	tr := startRelay(t)
	ana := tr.register("ana")
	bo := tr.register("bo")
	cy := tr.register("cy")

	boWS := tr.dial(bo)
	anaWS := tr.dial(ana)

	var room wire.Room
	require.Equal(t, http.StatusCreated, tr.call(http.MethodPost, "/api/rooms", ana.AccessToken,
		wire.CreateRoomRequest{ParticipantIDs: []string{bo.User.ID}}, &room))
	assert.False(t, room.IsGroup)
	assert.Len(t, room.Participants, 2)

	created := next(t, boWS, wire.TypeRoomCreated)
	assert.Equal(t, room.ID, created.RoomID)

	var again wire.Room
	require.Equal(t, http.StatusOK, tr.call(http.MethodPost, "/api/rooms", bo.AccessToken,
		wire.CreateRoomRequest{ParticipantIDs: []string{ana.User.ID}}, &again))
	assert.Equal(t, room.ID, again.ID, "direct room is reused")

	env, err := wire.NewEnvelope(wire.TypeSend, room.ID, wire.SendData{ClientID: "c1", Text: "hello bo"})
	require.NoError(t, err)
	require.NoError(t, anaWS.WriteJSON(env))

	ack := next(t, anaWS, wire.TypeAck)
	var ad wire.AckData
	require.NoError(t, json.Unmarshal(ack.Data, &ad))
	require.NotNil(t, ad.Message)
	msgID := ad.Message.ID

	mc := next(t, boWS, wire.TypeMessageCreated)
	var m wire.Message
	require.NoError(t, json.Unmarshal(mc.Data, &m))
	assert.Equal(t, "hello bo", m.Text)
	assert.Equal(t, "ANA", m.Sender.Name)

	var rooms wire.RoomsResponse
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/rooms", bo.AccessToken, nil, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, 1, rooms.Rooms[0].UnreadCount)
	require.NotNil(t, rooms.Rooms[0].LastMessage)
	assert.Equal(t, msgID, rooms.Rooms[0].LastMessage.ID)

	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodPost, "/api/rooms/"+room.ID+"/read", bo.AccessToken, nil, nil))
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/rooms", bo.AccessToken, nil, &rooms))
	assert.Equal(t, 0, rooms.Rooms[0].UnreadCount)

	msgPath := "/api/rooms/" + room.ID + "/messages/" + msgID
	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodPost, msgPath+"/reactions", bo.AccessToken,
		wire.ReactionRequest{Emoji: "👍"}, nil))
	re := next(t, anaWS, wire.TypeReactionAdded)
	var rd wire.ReactionData
	require.NoError(t, json.Unmarshal(re.Data, &rd))
	assert.Equal(t, "👍", rd.Emoji)
	assert.Equal(t, bo.User.ID, rd.User.ID)

	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodPost, msgPath+"/pin", bo.AccessToken, nil, nil))
	next(t, anaWS, wire.TypeMessagePinned)

	var page wire.MessagesResponse
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/rooms/"+room.ID+"/messages?limit=10", ana.AccessToken, nil, &page))
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].Pinned)
	assert.Equal(t, []string{bo.User.ID}, page.Messages[0].Reactions["👍"])

	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodDelete, msgPath+"/reactions/%F0%9F%91%8D", bo.AccessToken, nil, nil))
	next(t, anaWS, wire.TypeReactionRemoved)

	var found wire.MessagesResponse
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/search?q=hello", bo.AccessToken, nil, &found))
	assert.Len(t, found.Messages, 1)
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/search?q=hello", cy.AccessToken, nil, &found))
	assert.Empty(t, found.Messages, "outsiders find nothing")

	assert.Equal(t, http.StatusNotFound, tr.call(http.MethodGet, "/api/rooms/"+room.ID+"/messages", cy.AccessToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, tr.call(http.MethodDelete, msgPath, bo.AccessToken, nil, nil))
	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodDelete, msgPath, ana.AccessToken, nil, nil))
	del := next(t, boWS, wire.TypeMessageDeleted)
	var ref wire.MessageRefData
	require.NoError(t, json.Unmarshal(del.Data, &ref))
	assert.Equal(t, msgID, ref.MessageID)

	assert.Equal(t, http.StatusNoContent, tr.call(http.MethodDelete, "/api/rooms/"+room.ID, bo.AccessToken, nil, nil))
	gone := next(t, anaWS, wire.TypeRoomDeleted)
	assert.Equal(t, room.ID, gone.RoomID)
}

func TestCreateRoomValidation(t *testing.T) {
	tr := startRelay(t)
	ana := tr.register("ana")

	assert.Equal(t, http.StatusBadRequest, tr.call(http.MethodPost, "/api/rooms", ana.AccessToken,
		wire.CreateRoomRequest{}, nil))
	assert.Equal(t, http.StatusNotFound, tr.call(http.MethodPost, "/api/rooms", ana.AccessToken,
		wire.CreateRoomRequest{ParticipantIDs: []string{"ghost"}}, nil))
	assert.Equal(t, http.StatusBadRequest, tr.call(http.MethodGet, "/api/rooms/x/messages?limit=abc", ana.AccessToken, nil, nil))
}

func TestUsersAndHiddenNotes(t *testing.T) {
	tr := startRelay(t)
	ana := tr.register("ana")
	tr.register("anabel")
	tr.register("bo")

	var users struct {
		Users []wire.User `json:"users"`
	}
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/users?q=ana", ana.AccessToken, nil, &users))
	assert.Len(t, users.Users, 2)

	var hn wire.HiddenNotes
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/api/me/hidden-notes", ana.AccessToken, nil, &hn))
	assert.Empty(t, hn.NoteIDs)

	require.Equal(t, http.StatusOK, tr.call(http.MethodPut, "/api/me/hidden-notes", ana.AccessToken,
		wire.HiddenNotes{NoteIDs: []string{"n2", "n1", "n2"}}, &hn))
	assert.Equal(t, []string{"n1", "n2"}, hn.NoteIDs)
}

func TestHealthAndMetrics(t *testing.T) {
	tr := startRelay(t)
	var health map[string]any
	require.Equal(t, http.StatusOK, tr.call(http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(tr.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nhrelay_http_requests_total")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("RELAY_JWT_SECRET=from-file\nCORS_ORIGINS=http://a.test, http://b.test\n"), 0o600))
	for _, k := range []string{"RELAY_JWT_SECRET", "CORS_ORIGINS", "RELAY_ADDR"} {
		// Setenv restores the old value; Unsetenv lets the file fill it in
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("RELAY_ACCESS_TTL", "15m")

	cfg, err := LoadConfig(env)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, DefaultAddr, cfg.Addr)

	t.Setenv("RELAY_ACCESS_TTL", "soon")
	_, err = LoadConfig(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
