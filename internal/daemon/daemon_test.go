package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/lock"
	"github.com/notehub/nhchat/internal/outbox"
	"github.com/notehub/nhchat/internal/prefs"
	"github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/store"
	"github.com/notehub/nhchat/internal/upstream"
	"github.com/notehub/nhchat/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const testAccess = "access-1"

// fakeRelay serves the subset of the relay API the daemon needs.
func fakeRelay(t *testing.T) *httptest.Server {
	t.Helper()
	me := wire.User{ID: "u1", Username: "ana", DisplayName: "Ana"}
	bo := wire.UserRef{ID: "u2", Name: "Bo"}
	authed := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer "+testAccess }
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in wire.Credentials
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, wire.ErrorResponse{Error: "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, wire.TokenResponse{AccessToken: testAccess, RefreshToken: "refresh-1", TokenType: "bearer", User: &me})
	})
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, wire.ErrorResponse{Error: "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, me)
	})
	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, wire.RoomsResponse{Rooms: []wire.Room{{
			ID:           "r1",
			Participants: []wire.UserRef{{ID: me.ID, Name: me.DisplayName}, bo},
		}}})
	})
	mux.HandleFunc("GET /api/rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, wire.MessagesResponse{Messages: []wire.Message{}})
	})

	up := websocket.Upgrader{}
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != testAccess {
			writeJSON(w, http.StatusUnauthorized, wire.ErrorResponse{Error: "unauthorized"})
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		var seq uint64
		for {
			var in wire.Envelope
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if in.Type != wire.TypeSend {
				continue
			}
			var d wire.SendData
			_ = json.Unmarshal(in.Data, &d)
			msg := wire.Message{ID: "m1", ClientID: d.ClientID, RoomID: in.RoomID, Sender: wire.UserRef{ID: me.ID, Name: me.DisplayName}, Text: d.Text, CreatedAt: time.Now()}
			seq++
			ack, _ := wire.NewEnvelope(wire.TypeAck, in.RoomID, wire.AckData{ClientID: d.ClientID, Message: &msg})
			ack.Seq = seq
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type testDaemon struct {
	db      *store.DB
	machine *status.Machine
	session *Session
	engine  *chat.Engine
	sender  *outbox.Sender
	server  *Server
	conn    *grpc.ClientConn
}

func startTestDaemon(t *testing.T, relayURL string) *testDaemon {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "nhd-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	lk, err := lock.Acquire(tmpDir, relayURL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lk.Release() })

	db, err := store.Open(filepath.Join(tmpDir, "nhd.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	client, err := upstream.NewClient(relayURL, logger)
	if err != nil {
		t.Fatal(err)
	}
	live := upstream.NewLive(client, b, machine, logger)
	live.SetReconnectDelay(50 * time.Millisecond)
	sender := outbox.NewSender(db, live, b, logger)
	engine := chat.NewEngine(upstream.NewGateway(client, live), sender, db, b, logger, chat.Options{Status: machine})
	sess := NewSession(client, live, engine, db, machine, logger)

	p := Params{Profile: "test", SocketPath: filepath.Join(tmpDir, "d.sock")}
	srv, err := NewServer(p, logger,
		api.NewSessionService(p.Profile, relayURL, machine, sess, engine),
		api.NewChatService(engine, sess, b, machine, 10),
		api.NewPrefsService(prefs.New(client, db, logger), sess, filepath.Join(tmpDir, "hidden.json")),
	)
	if err != nil {
		t.Fatal(err)
	}

	engine.Start(context.Background())
	sender.Start(context.Background())
	go func() { _ = srv.Start() }()

	conn, err := grpc.NewClient(
		"unix://"+srv.SocketPath(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}

	d := &testDaemon{db: db, machine: machine, session: sess, engine: engine, sender: sender, server: srv, conn: conn}
	t.Cleanup(func() {
		_ = conn.Close()
		sess.Close()
		sender.Stop()
		engine.Stop()
		srv.Stop(context.Background())
		_ = db.Close()
	})
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestStatusTransitionsToAuthRequired(t *testing.T) {
	relay := fakeRelay(t)
	d := startTestDaemon(t, relay.URL)

	found, err := d.session.Restore()
	if err != nil || found {
		t.Fatalf("Restore = %v, %v", found, err)
	}

	resp, err := api.NewSessionClient(d.conn).GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if resp.State != string(status.AuthRequired) || resp.LoggedIn {
		t.Errorf("status = %+v, want AUTH_REQUIRED and logged out; daemon must not stay in BOOTING", resp)
	}
}

func TestLoginSyncAndSend(t *testing.T) {
	relay := fakeRelay(t)
	d := startTestDaemon(t, relay.URL)
	_, _ = d.session.Restore()
	ctx := context.Background()
	sessions := api.NewSessionClient(d.conn)
	chats := api.NewChatClient(d.conn)

	if _, err := sessions.Login(ctx, &api.LoginRequest{Username: "ana", Password: "bad"}); err == nil {
		t.Fatal("login with bad password succeeded")
	}
	if _, err := sessions.Login(ctx, &api.LoginRequest{Username: "ana", Password: "pw"}); err != nil {
		t.Fatalf("Login error = %v", err)
	}
	waitFor(t, "READY", func() bool { return d.machine.Current() == status.Ready })

	creds, err := d.db.LoadCredentials()
	if err != nil || creds == nil || creds.UserID != "u1" || creds.RefreshToken != "refresh-1" {
		t.Fatalf("stored credentials = %+v, %v", creds, err)
	}

	rooms, err := chats.LoadRooms(ctx, &api.LoadRoomsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if rooms.Total != 1 || rooms.Rooms[0].DisplayName(rooms.Self) != "Bo" {
		t.Fatalf("rooms = %+v", rooms)
	}

	sent, err := chats.SendMessage(ctx, &api.SendMessageRequest{RoomID: "r1", Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if sent.Message.Status != chat.StatusSending {
		t.Errorf("optimistic status = %s", sent.Message.Status)
	}

	waitFor(t, "ack", func() bool {
		v, err := chats.GetView(ctx)
		return err == nil && len(v.View.Messages) == 1 && v.View.Messages[0].ID == "m1" && v.View.PendingWrites == 0
	})
	waitFor(t, "outbox sent", func() bool {
		e, _ := d.db.GetOutbox(sent.Message.ClientID)
		return e != nil && e.Status == store.OutboxSent
	})
}

func TestRestoreAndLogout(t *testing.T) {
	relay := fakeRelay(t)
	d := startTestDaemon(t, relay.URL)
	if err := d.db.SaveCredentials(store.Credentials{UserID: "u1", Username: "ana", AccessToken: testAccess, RefreshToken: "refresh-1"}); err != nil {
		t.Fatal(err)
	}

	found, err := d.session.Restore()
	if err != nil || !found {
		t.Fatalf("Restore = %v, %v", found, err)
	}
	waitFor(t, "READY", func() bool { return d.machine.Current() == status.Ready })

	resp, err := api.NewSessionClient(d.conn).Logout(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.LoggedIn || resp.State != string(status.AuthRequired) {
		t.Errorf("after logout = %+v", resp)
	}
	if c, _ := d.db.LoadCredentials(); c != nil {
		t.Error("credentials survived logout")
	}
	if v := d.engine.Snapshot(); len(v.Rooms) != 0 || v.Self.ID != "" {
		t.Errorf("view survived logout: %+v", v)
	}
}

func TestRejectedCredentialsRequireAuth(t *testing.T) {
	relay := fakeRelay(t)
	d := startTestDaemon(t, relay.URL)
	if err := d.db.SaveCredentials(store.Credentials{Username: "ana", AccessToken: "revoked", RefreshToken: "revoked"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.session.Restore(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "AUTH_REQUIRED", func() bool { return d.machine.Current() == status.AuthRequired })
	waitFor(t, "credentials cleared", func() bool {
		c, _ := d.db.LoadCredentials()
		return c == nil
	})
}

func TestHealthService(t *testing.T) {
	relay := fakeRelay(t)
	d := startTestDaemon(t, relay.URL)

	resp, err := healthpb.NewHealthClient(d.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: api.ChatServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health = %v", resp.Status)
	}
}

func TestSocketPermissions(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "nhd-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	// A stale socket from a crashed daemon is replaced.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	var started atomic.Bool
	srv, err := NewServer(Params{Profile: "socktest", SocketPath: socketPath}, zap.NewNop(),
		api.NewSessionService("socktest", "", status.NewMachine(nil), nil, nil),
		api.NewChatService(nil, nil, nil, nil, 0),
		api.NewPrefsService(nil, nil, ""),
	)
	if err != nil {
		t.Fatalf("NewServer() failed: %v", err)
	}
	go func() {
		started.Store(true)
		_ = srv.Start()
	}()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket mode = %v, want 0600", info.Mode().Perm())
	}
	waitFor(t, "server start", started.Load)
	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket not removed on stop")
	}
}

// TestFxModuleWiring verifies the fx dependency graph resolves without errors.
func TestFxModuleWiring(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{Profile: "fxtest"})); err != nil {
		t.Fatalf("fx graph invalid: %v", err)
	}
}
