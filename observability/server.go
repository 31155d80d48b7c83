package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health is the /healthz body.
type Health struct {
	Status     string  `json:"status"`
	Sessions   int     `json:"sessions"`
	Goroutines int     `json:"goroutines"`
	UptimeS    float64 `json:"uptime_s"`
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv      *http.Server
	started  time.Time
	sessions func() int
	logger   *slog.Logger
}

// NewServer builds the HTTP server. sessions reports how many pages are
// currently guarded; nil reports zero.
func NewServer(addr string, sessions func() int, logger *slog.Logger) *Server {
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{started: time.Now(), sessions: sessions, logger: logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the chi router serving both endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:     "ok",
		Sessions:   s.sessions(),
		Goroutines: runtime.NumGoroutine(),
		UptimeS:    time.Since(s.started).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}

// Serve listens until ctx is cancelled, then shuts down gracefully. It
// returns once the shutdown is complete.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("observability: listen %s: %w", s.srv.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("observability: listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}
