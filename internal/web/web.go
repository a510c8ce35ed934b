// Package web serves the REST/JSON API, media, metrics and the gRPC-Web
// bridge on one HTTP port.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/status"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/handler"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/store"
)

// Backend is what the web layer reads directly, outside the service.
type Backend interface {
	Ping(ctx context.Context) error
	GetObject(ctx context.Context, key string) (*store.Object, error)
}

type Server struct {
	h       *handler.Handler
	backend Backend
	secret  string

	limiter  *middleware.RateLimiter
	bridge   http.Handler
	gatherer prometheus.Gatherer
	secure   bool
	clock    func() time.Time
	logger   *slog.Logger
}

type Option func(*Server)

// WithRateLimiter limits the register and login routes.
func WithRateLimiter(rl *middleware.RateLimiter) Option { return func(s *Server) { s.limiter = rl } }

// WithBridge mounts a gRPC-Web handler under the service path.
func WithBridge(b http.Handler) Option { return func(s *Server) { s.bridge = b } }

// WithGatherer serves g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithSecureCookies marks auth cookies Secure.
func WithSecureCookies(on bool) Option { return func(s *Server) { s.secure = on } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.clock = now } }

func WithLogger(lg *slog.Logger) Option { return func(s *Server) { s.logger = lg } }

func New(h *handler.Handler, backend Backend, secret string, opts ...Option) *Server {
	s := &Server{
		h:       h,
		backend: backend,
		secret:  secret,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router wires every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/media/*", s.handleMedia)
	if s.bridge != nil {
		r.Handle("/"+rpc.ServiceName+"/*", s.bridge)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(s.limit("register")).Post("/register", s.handleRegister)
		r.With(s.limit("login")).Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.With(middleware.RequireAuth(s.secret)).Post("/logout", s.handleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.secret))
		r.Get("/users", s.handleListUsers)
		r.Get("/appointments", s.handleListAppointments)
		r.Post("/appointments", s.handleCreateAppointment)
		r.Get("/appointments.ics", s.handleExport)
		r.Get("/appointments/{id}", s.handleGetAppointment)
		r.Post("/appointments/{id}/cancel", s.handleCancel)
		r.Post("/appointments/{id}/respond", s.handleRespond)
	})
	return r
}

func (s *Server) limit(name string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limiter.Limit(name)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		http.NotFound(w, r)
		return
	}
	o, err := s.backend.GetObject(r.Context(), key)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			http.NotFound(w, r)
			return
		}
		s.logger.WarnContext(r.Context(), "media read failed", "key", key, "error", err)
		http.Error(w, "could not load media", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", o.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, "", o.CreatedAt, bytes.NewReader(o.Data))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a service error as {"error": message}.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, handler.HTTPStatus(err), map[string]string{"error": status.Convert(err).Message()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
