package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
	"google.golang.org/grpc/status"

	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/tui/client"
)

type sessionAPI interface {
	GetStatus(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, req *api.LoginRequest) (*api.StatusResponse, error)
	Logout(ctx context.Context) (*api.StatusResponse, error)
}

type chatAPI interface {
	LoadRooms(ctx context.Context, req *api.LoadRoomsRequest) (*api.RoomsResponse, error)
	SelectRoom(ctx context.Context, roomID string) (*api.ViewResponse, error)
	GetView(ctx context.Context) (*api.ViewResponse, error)
	SendMessage(ctx context.Context, req *api.SendMessageRequest) (*api.SendMessageResponse, error)
	DeleteMessage(ctx context.Context, req *api.MessageRequest) error
	DeleteRoom(ctx context.Context, roomID string) error
	React(ctx context.Context, req *api.ReactionRequest) error
	Unreact(ctx context.Context, req *api.ReactionRequest) error
	Pin(ctx context.Context, req *api.MessageRequest) error
	Unpin(ctx context.Context, req *api.MessageRequest) error
	Search(ctx context.Context, query string) (*api.ViewResponse, error)
}

type prefsAPI interface {
	HiddenNotes(ctx context.Context, cached bool) (*api.HiddenNotesResponse, error)
	HideNote(ctx context.Context, noteID string) (*api.HiddenNotesResponse, error)
	UnhideNote(ctx context.Context, noteID string) (*api.HiddenNotesResponse, error)
	MigrateHiddenNotes(ctx context.Context, legacyPath string) (*api.MigrateResponse, error)
}

var errUsage = errors.New("invalid usage, see nhctl --help")

type cli struct {
	session  sessionAPI
	chat     chatAPI
	prefs    prefsAPI
	out      io.Writer
	in       io.Reader
	json     bool
	profile  string
	password func() (string, error)
}

func newCLI(c *client.Client, out io.Writer, jsonOut bool, profileName string) *cli {
	return &cli{
		session: c.Session,
		chat:    c.Chat,
		prefs:   c.Prefs,
		out:     out,
		in:      os.Stdin,
		json:    jsonOut,
		profile: profileName,
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		return c.status(ctx)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "rooms":
		return c.rooms(ctx, rest)
	case "messages":
		return c.messages(ctx, rest)
	case "send":
		return c.send(ctx, rest)
	case "react":
		return c.react(ctx, rest)
	case "pin", "unpin":
		return c.pin(ctx, cmd == "pin", rest)
	case "delete":
		return c.delete(ctx, rest)
	case "search":
		return c.search(ctx, rest)
	case "hidden":
		return c.hidden(ctx, rest)
	}
	return fmt.Errorf("unknown command: %s", cmd)
}

// parseInterspersed lets flags appear anywhere among the positional args.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) status(ctx context.Context) error {
	st, err := c.session.GetStatus(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, st)
	}
	user := "-"
	if st.LoggedIn {
		user = fmt.Sprintf("%s (%s)", st.User.Name, st.User.ID)
	}
	fmt.Fprintf(c.out, "Profile: %s\n", st.Profile)
	fmt.Fprintf(c.out, "State:   %s (since %s)\n", st.State, st.Since.Local().Format(time.TimeOnly))
	fmt.Fprintf(c.out, "Relay:   %s\n", st.RelayURL)
	fmt.Fprintf(c.out, "User:    %s\n", user)
	fmt.Fprintf(c.out, "Pending: %d\n", st.PendingWrites)
	fmt.Fprintf(c.out, "Uptime:  %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	password := fs.String("password", "", "password (prompted when omitted)")
	register := fs.Bool("register", false, "create the account first")
	display := fs.String("display", "", "display name for --register")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errUsage
	}

	pw := *password
	if pw == "" {
		if pw, err = c.readPassword(); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	st, err := c.session.Login(ctx, &api.LoginRequest{
		Username:    pos[0],
		Password:    pw,
		Register:    *register,
		DisplayName: *display,
	})
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, st)
	}
	fmt.Fprintf(c.out, "Logged in as %s. State: %s\n", st.User.Name, st.State)
	return nil
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func (c *cli) readPassword() (string, error) {
	if c.password != nil {
		return c.password()
	}
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) logout(ctx context.Context) error {
	st, err := c.session.Logout(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, st)
	}
	fmt.Fprintln(c.out, "Logged out.")
	return nil
}

func (c *cli) rooms(ctx context.Context, args []string) error {
	fs := newFlags("rooms")
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 0, "rooms per page (daemon default when 0)")
	refresh := fs.Bool("refresh", false, "reload from the relay first")
	if _, err := parseInterspersed(fs, args); err != nil {
		return err
	}

	resp, err := c.chat.LoadRooms(ctx, &api.LoadRoomsRequest{Page: *page, PerPage: *perPage, Refresh: *refresh})
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, resp)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE")
	for _, r := range resp.Rooms {
		last := ""
		if r.LastMessage != nil {
			last = oneLine(r.LastMessage.Text, 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.DisplayName(resp.Self), r.UnreadCount, last)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "page %d/%d (%d rooms)\n", resp.Page, resp.TotalPages, resp.Total)
	return nil
}

// resolveRoom accepts a room id or a case-insensitive display name.
func (c *cli) resolveRoom(ctx context.Context, ref string) (string, error) {
	resp, err := c.chat.GetView(ctx)
	if err != nil {
		return "", err
	}
	v := resp.View
	if len(v.Rooms) == 0 {
		rooms, err := c.chat.LoadRooms(ctx, &api.LoadRoomsRequest{Page: 1})
		if err != nil {
			return "", err
		}
		v.Rooms = rooms.Rooms
	}
	for _, r := range v.Rooms {
		if r.ID == ref {
			return r.ID, nil
		}
	}
	for _, r := range v.Rooms {
		if strings.EqualFold(r.DisplayName(v.Self.ID), ref) {
			return r.ID, nil
		}
	}
	return ref, nil
}

func (c *cli) messages(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	roomID, err := c.resolveRoom(ctx, args[0])
	if err != nil {
		return err
	}
	resp, err := c.chat.SelectRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, resp.View.Messages)
	}
	c.printMessages(resp.View.Messages, resp.View.Self.ID)
	return nil
}

func (c *cli) printMessages(msgs []chat.Message, selfID string) {
	for _, m := range msgs {
		sender := m.Sender.Name
		if m.Sender.ID == selfID {
			sender = "you"
		}
		var flags []string
		if m.Pinned {
			flags = append(flags, "pinned")
		}
		if m.Status == chat.StatusFailed {
			flags = append(flags, "failed")
		}
		line := fmt.Sprintf("%s  %s  %-12s %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), m.ID, sender, m.Text)
		if m.PhotoURL != "" {
			line += " <" + m.PhotoURL + ">"
		}
		for _, emoji := range slices.Sorted(maps.Keys(m.Reactions)) {
			line += fmt.Sprintf(" %s×%d", emoji, len(m.Reactions[emoji]))
		}
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ",") + "]"
		}
		fmt.Fprintln(c.out, line)
	}
}

func (c *cli) send(ctx context.Context, args []string) error {
	fs := newFlags("send")
	photo := fs.String("photo", "", "photo URL to attach")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 || (len(pos) < 2 && *photo == "") {
		return errUsage
	}
	roomID, err := c.resolveRoom(ctx, pos[0])
	if err != nil {
		return err
	}
	resp, err := c.chat.SendMessage(ctx, &api.SendMessageRequest{
		RoomID:   roomID,
		Text:     strings.Join(pos[1:], " "),
		PhotoURL: *photo,
	})
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, resp.Message)
	}
	fmt.Fprintf(c.out, "Queued %s\n", resp.Message.ID)
	return nil
}

func (c *cli) react(ctx context.Context, args []string) error {
	fs := newFlags("react")
	remove := fs.Bool("remove", false, "remove the reaction instead")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 3 {
		return errUsage
	}
	roomID, err := c.resolveRoom(ctx, pos[0])
	if err != nil {
		return err
	}
	req := &api.ReactionRequest{RoomID: roomID, MessageID: pos[1], Emoji: pos[2]}
	if *remove {
		err = c.chat.Unreact(ctx, req)
	} else {
		err = c.chat.React(ctx, req)
	}
	if err != nil {
		return err
	}
	return c.done("ok")
}

func (c *cli) pin(ctx context.Context, on bool, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	roomID, err := c.resolveRoom(ctx, args[0])
	if err != nil {
		return err
	}
	req := &api.MessageRequest{RoomID: roomID, MessageID: args[1]}
	if on {
		err = c.chat.Pin(ctx, req)
	} else {
		err = c.chat.Unpin(ctx, req)
	}
	if err != nil {
		return err
	}
	return c.done("ok")
}

func (c *cli) delete(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	roomID, err := c.resolveRoom(ctx, args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		err = c.chat.DeleteRoom(ctx, roomID)
	} else {
		err = c.chat.DeleteMessage(ctx, &api.MessageRequest{RoomID: roomID, MessageID: args[1]})
	}
	if err != nil {
		return err
	}
	return c.done("deleted")
}

func (c *cli) search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	resp, err := c.chat.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	var hits []chat.Message
	if resp.View.Search != nil {
		hits = resp.View.Search.Messages
	}
	if c.json {
		return outputJSON(c.out, hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(c.out, "No matches.")
		return nil
	}
	c.printMessages(hits, resp.View.Self.ID)
	return nil
}

func (c *cli) hidden(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, rest := args[0], args[1:]

	var (
		resp *api.HiddenNotesResponse
		err  error
	)
	switch sub {
	case "list":
		fs := newFlags("hidden list")
		cached := fs.Bool("cached", false, "read the local cache instead of the relay")
		if _, err := parseInterspersed(fs, rest); err != nil {
			return err
		}
		resp, err = c.prefs.HiddenNotes(ctx, *cached)
	case "hide", "unhide":
		if len(rest) != 1 {
			return errUsage
		}
		if sub == "hide" {
			resp, err = c.prefs.HideNote(ctx, rest[0])
		} else {
			resp, err = c.prefs.UnhideNote(ctx, rest[0])
		}
	case "migrate":
		path := ""
		if len(rest) > 0 {
			path = rest[0]
		}
		return c.migrate(ctx, path)
	default:
		return fmt.Errorf("unknown hidden subcommand: %s", sub)
	}
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, resp)
	}
	if resp.Cached {
		fmt.Fprintln(c.out, "(from local cache)")
	}
	if len(resp.NoteIDs) == 0 {
		fmt.Fprintln(c.out, "No hidden notes.")
	}
	for _, id := range resp.NoteIDs {
		fmt.Fprintln(c.out, id)
	}
	return nil
}

func (c *cli) migrate(ctx context.Context, path string) error {
	resp, err := c.prefs.MigrateHiddenNotes(ctx, path)
	if err != nil {
		return err
	}
	if c.json {
		return outputJSON(c.out, resp)
	}
	if resp.Skipped {
		fmt.Fprintln(c.out, "Nothing to migrate.")
		return nil
	}
	fmt.Fprintf(c.out, "Imported %d notes; %d hidden in total.\n", resp.Imported, len(resp.NoteIDs))
	return nil
}

func (c *cli) done(msg string) error {
	if c.json {
		return outputJSON(c.out, map[string]bool{"ok": true})
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}

func errMessage(err error) string {
	if s, ok := status.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}
