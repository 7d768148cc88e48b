package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"s8bridge/internal/utils"
)

// BrokerStatus reports the MQTT side of the bridge for /healthz. The
// mqtt client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
}

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, m *Metrics, broker BrokerStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"mqtt_connected": broker != nil && broker.IsConnected(),
		})
	})

	return &Server{
		srv: &http.Server{
			Addr:    addr,
			Handler: requestLogger(mux),
		},
	}
}

// Start binds the listener and serves in the background. The bind
// happens synchronously so a taken port surfaces as a startup error
// instead of a log line from a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.srv.Addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routing for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger logs at debug level; Prometheus scrapes every few
// seconds and would drown an info-level log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
