package api

import (
	"context"
	"strings"
	"time"

	"github.com/notehub/nhchat/internal/status"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Sessions signs the daemon in and out of the relay.
type Sessions interface {
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password, displayName string) error
	Logout(ctx context.Context) error
	LoggedIn() bool
}

// SessionService implements the Session gRPC service.
type SessionService struct {
	profile   string
	relayURL  string
	startedAt time.Time
	machine   *status.Machine
	sessions  Sessions
	engine    Engine
}

// NewSessionService creates a new session service.
func NewSessionService(profile, relayURL string, machine *status.Machine, sessions Sessions, engine Engine) *SessionService {
	return &SessionService{
		profile:   profile,
		relayURL:  relayURL,
		startedAt: time.Now(),
		machine:   machine,
		sessions:  sessions,
		engine:    engine,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		Profile:  s.profile,
		State:    string(s.machine.Current()),
		Since:    s.machine.Since(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		RelayURL: s.relayURL,
	}
	if s.sessions != nil {
		resp.LoggedIn = s.sessions.LoggedIn()
	}
	if s.engine != nil {
		v := s.engine.Snapshot()
		resp.User = v.Self
		resp.PendingWrites = v.PendingWrites
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*StatusResponse, error) {
	if s.sessions == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "session manager not initialized")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "username and password are required")
	}
	var err error
	if req.Register {
		err = s.sessions.Register(ctx, username, req.Password, strings.TrimSpace(req.DisplayName))
	} else {
		err = s.sessions.Login(ctx, username, req.Password)
	}
	if err != nil {
		return nil, toStatus("login", err)
	}
	return s.GetStatus(ctx, &Empty{})
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	if s.sessions == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "session manager not initialized")
	}
	if err := s.sessions.Logout(ctx); err != nil {
		return nil, toStatus("logout", err)
	}
	return s.GetStatus(ctx, &Empty{})
}
