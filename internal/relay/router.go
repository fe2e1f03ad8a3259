package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router builds the relay's HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.tokens.Middleware)

			r.Get("/me", s.me)
			r.Get("/me/hidden-notes", s.hiddenNotes)
			r.Put("/me/hidden-notes", s.setHiddenNotes)
			r.Get("/users", s.searchUsers)
			r.Get("/search", s.search)

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", s.listRooms)
				r.Post("/", s.createRoom)
				r.Route("/{roomID}", func(r chi.Router) {
					r.Delete("/", s.deleteRoom)
					r.Post("/read", s.markRead)
					r.Get("/messages", s.listMessages)
					r.Route("/messages/{msgID}", func(r chi.Router) {
						r.Delete("/", s.deleteMessage)
						r.Post("/reactions", s.addReaction)
						r.Delete("/reactions/{emoji}", s.removeReaction)
						r.Post("/pin", s.pin)
						r.Delete("/pin", s.unpin)
					})
				})
			})
		})
	})

	r.With(s.tokens.Middleware).Get("/ws", s.serveWS)
	return r
}

// requestLogger logs each request with zap once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
