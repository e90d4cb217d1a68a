package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brattlof/userboard/internal/app/config"
	"github.com/brattlof/userboard/internal/dashboard"
	"github.com/brattlof/userboard/internal/observability"
)

const requestTimeout = 60 * time.Second

// Status feeds the /healthz document.
type Status struct {
	Version string
	Views   func() int
}

type Server struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	mux     *chi.Mux
}

func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		mux:     chi.NewRouter(),
	}
}

// SetupMiddlewares installs the base stack followed by plugin middlewares in
// the order given.
func (s *Server) SetupMiddlewares(extra ...func(http.Handler) http.Handler) {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	s.mux.Use(middleware.Recoverer)
	if s.config.Metrics.Enabled {
		s.mux.Use(s.metrics.Middleware)
	}
	for _, mw := range extra {
		s.mux.Use(mw)
	}
}

func (s *Server) SetupRoutes(dash *dashboard.Handler, status Status) {
	s.mux.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		dash.Routes(r)
	})
	s.mux.Get("/ws", dash.Socket)

	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if status.Version != "" {
			body["version"] = status.Version
		}
		if status.Views != nil {
			body["views"] = status.Views()
		}
		writeJSON(w, http.StatusOK, body)
	})

	if s.config.Metrics.Enabled {
		s.mux.Handle(s.config.Metrics.Path, s.metrics.Handler())
	}

	s.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Mount(pattern string, handler http.Handler) {
	s.mux.Mount(pattern, handler)
}

func (s *Server) Use(fn func(http.Handler) http.Handler) {
	s.mux.Use(fn)
}

func (s *Server) Get(pattern string, handler http.HandlerFunc) {
	s.mux.Get(pattern, handler)
}

func (s *Server) Post(pattern string, handler http.HandlerFunc) {
	s.mux.Post(pattern, handler)
}

func (s *Server) Put(pattern string, handler http.HandlerFunc) {
	s.mux.Put(pattern, handler)
}

func (s *Server) Delete(pattern string, handler http.HandlerFunc) {
	s.mux.Delete(pattern, handler)
}
