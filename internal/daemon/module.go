package daemon

import (
	"context"

	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/bus"
	"github.com/notehub/nhchat/internal/chat"
	"github.com/notehub/nhchat/internal/config"
	"github.com/notehub/nhchat/internal/lock"
	"github.com/notehub/nhchat/internal/logging"
	"github.com/notehub/nhchat/internal/outbox"
	"github.com/notehub/nhchat/internal/prefs"
	"github.com/notehub/nhchat/internal/profile"
	"github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/store"
	"github.com/notehub/nhchat/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default
	RelayURL   string // optional override of the configured relay
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			provideLive,
			provideGateway,
			provideSender,
			provideEngine,
			provideHiddenNotes,
			NewSession,
			provideSessionService,
			provideChatService,
			providePrefsService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) *config.Config {
	cfg := config.LoadOrDefault(profile.ConfigPath())
	if p.RelayURL != "" {
		cfg.RelayURL = p.RelayURL
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), cfg.RelayURL)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by two daemons.
func provideStore(p Params, logger *zap.Logger, _ *lock.Lock) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	schema, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store ready",
		zap.String("path", dbPath),
		zap.Uint("schema", schema.Version),
		zap.Bool("migrated", schema.Applied))
	return db, nil
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*upstream.Client, error) {
	return upstream.NewClient(cfg.RelayURL, logger.Named("relay"))
}

func provideLive(c *upstream.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *upstream.Live {
	return upstream.NewLive(c, b, m, logger.Named("live"))
}

func provideGateway(c *upstream.Client, l *upstream.Live) *upstream.Gateway {
	return upstream.NewGateway(c, l)
}

func provideSender(db *store.DB, l *upstream.Live, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, l, b, logger.Named("outbox"))
}

func provideEngine(gw *upstream.Gateway, sender *outbox.Sender, db *store.DB, b *bus.Bus, m *status.Machine, cfg *config.Config, logger *zap.Logger) *chat.Engine {
	return chat.NewEngine(gw, sender, db, b, logger.Named("chat"), chat.Options{
		MarkReadRemote: cfg.MarkReadRemote,
		TypingTTL:      cfg.TypingTTL(),
		Status:         m,
	})
}

func provideHiddenNotes(c *upstream.Client, db *store.DB, logger *zap.Logger) *prefs.HiddenNotes {
	return prefs.New(c, db, logger.Named("prefs"))
}

func provideSessionService(p Params, cfg *config.Config, m *status.Machine, s *Session, e *chat.Engine) *api.SessionService {
	return api.NewSessionService(p.Profile, cfg.RelayURL, m, s, e)
}

func provideChatService(e *chat.Engine, s *Session, b *bus.Bus, m *status.Machine, cfg *config.Config) *api.ChatService {
	return api.NewChatService(e, s, b, m, cfg.PageSize)
}

func providePrefsService(p Params, notes *prefs.HiddenNotes, s *Session) *api.PrefsService {
	return api.NewPrefsService(notes, s, profile.LegacyHiddenNotesPath(p.Profile))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, sess *Session, engine *chat.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine subscribes to live.* and outbox.* before anything publishes.
			engine.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if _, err := sess.Restore(); err != nil {
				logger.Error("restore session failed", zap.Error(err))
				_ = machine.Transition(status.Error)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sess.Close()
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
