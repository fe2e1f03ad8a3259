package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notehub/nhchat/internal/relay/auth"
	"github.com/notehub/nhchat/internal/relay/db"
	"github.com/notehub/nhchat/internal/relay/hub"
	"github.com/notehub/nhchat/internal/relay/metrics"
)

// Server owns the relay's database, live hub and HTTP server.
type Server struct {
	cfg     Config
	db      *db.DB
	hub     *hub.Hub
	tokens  *auth.Tokens
	hasher  *auth.Hasher
	metrics *metrics.Metrics
	logger  *zap.Logger
	started time.Time

	http *http.Server
}

// New opens and migrates the database and assembles the server.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New()
	s := &Server{
		cfg:     cfg,
		db:      store,
		hub:     hub.New(store, m, logger.Named("hub")),
		tokens:  tokens,
		hasher:  auth.NewHasher(cfg.BcryptCost),
		metrics: m,
		logger:  logger,
		started: time.Now(),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.logger.Info("relay listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return ln.Addr().String(), nil
}

// Shutdown stops accepting requests, disconnects live clients and closes
// the database.
func (s *Server) Shutdown(ctx context.Context) error {
	errHTTP := s.http.Shutdown(ctx)
	errHub := s.hub.Close(ctx)
	errDB := s.db.Close()
	s.logger.Info("relay stopped")
	return errors.Join(errHTTP, errHub, errDB)
}
