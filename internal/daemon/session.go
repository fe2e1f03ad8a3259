package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/store"
	"github.com/notehub/nhchat/internal/upstream"
	"github.com/notehub/nhchat/internal/wire"
	"go.uber.org/zap"
)

// Session owns the relay login: it persists tokens, runs the live channel
// while signed in and resets the engine on logout.
type Session struct {
	client  *upstream.Client
	live    *upstream.Live
	engine  *chat.Engine
	db      *store.DB
	machine *status.Machine
	logger  *zap.Logger

	mu       sync.Mutex
	username string
	userID   string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession creates a session manager. Token refreshes are written back to
// the store as they happen.
func NewSession(c *upstream.Client, live *upstream.Live, engine *chat.Engine, db *store.DB, machine *status.Machine, logger *zap.Logger) *Session {
	s := &Session{client: c, live: live, engine: engine, db: db, machine: machine, logger: logger}
	c.Tokens().OnChange(func(access, refresh string) {
		s.mu.Lock()
		creds := store.Credentials{UserID: s.userID, Username: s.username, AccessToken: access, RefreshToken: refresh}
		s.mu.Unlock()
		if err := db.SaveCredentials(creds); err != nil {
			logger.Warn("failed to persist refreshed token", zap.Error(err))
		}
	})
	return s
}

// Restore signs in with stored credentials, if any. It reports whether
// credentials were found.
func (s *Session) Restore() (bool, error) {
	creds, err := s.db.LoadCredentials()
	if err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}
	if creds == nil || creds.RefreshToken == "" {
		s.logger.Info("no credentials found, auth required")
		s.transition(status.AuthRequired)
		return false, nil
	}
	s.mu.Lock()
	s.username, s.userID = creds.Username, creds.UserID
	s.mu.Unlock()
	s.client.Tokens().Set(creds.AccessToken, creds.RefreshToken)
	s.logger.Info("restored credentials", zap.String("username", creds.Username))
	s.startLive()
	return true, nil
}

// Login authenticates against the relay and connects.
func (s *Session) Login(ctx context.Context, username, password string) error {
	tr, err := s.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return s.install(username, tr)
}

// Register creates a relay account and connects.
func (s *Session) Register(ctx context.Context, username, password, displayName string) error {
	tr, err := s.client.Register(ctx, username, password, displayName)
	if err != nil {
		return err
	}
	return s.install(username, tr)
}

func (s *Session) install(username string, tr wire.TokenResponse) error {
	s.stopLive()
	s.engine.Reset()
	s.transition(status.AuthRequired)

	userID := ""
	if tr.User != nil {
		userID = tr.User.ID
	}
	creds := store.Credentials{UserID: userID, Username: username, AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if err := s.db.SaveCredentials(creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.mu.Lock()
	s.username, s.userID = username, userID
	s.mu.Unlock()
	s.logger.Info("logged in", zap.String("username", username))
	s.startLive()
	return nil
}

// Logout disconnects and forgets the login and every per-user cache.
func (s *Session) Logout(_ context.Context) error {
	s.stopLive()
	s.forget()
	s.logger.Info("logged out")
	return nil
}

// LoggedIn reports whether tokens are held.
func (s *Session) LoggedIn() bool {
	return s.client.Tokens().Valid()
}

// Close stops the live channel.
func (s *Session) Close() {
	s.stopLive()
}

func (s *Session) forget() {
	s.client.Tokens().Clear()
	s.engine.Reset()
	if err := s.db.ClearCredentials(); err != nil {
		s.logger.Warn("failed to clear credentials", zap.Error(err))
	}
	s.mu.Lock()
	s.username, s.userID = "", ""
	s.mu.Unlock()
	s.transition(status.AuthRequired)
}

func (s *Session) startLive() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		err := s.live.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, upstream.ErrNoToken) || upstream.IsUnauthorized(err) {
			s.logger.Warn("relay rejected stored credentials", zap.Error(err))
			s.forget()
			return
		}
		s.logger.Error("live channel stopped", zap.Error(err))
		s.transition(status.Error)
	}()
}

func (s *Session) stopLive() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Session) transition(to status.State) {
	if s.machine.Current() == to {
		return
	}
	if err := s.machine.Transition(to); err != nil {
		s.logger.Debug("status transition skipped", zap.Error(err))
	}
}
