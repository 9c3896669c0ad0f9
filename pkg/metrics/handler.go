package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Paths served by Listen.
const (
	MetricsPath = "/metrics"
	LivePath    = "/live"
	ReadyPath   = "/ready"
)

const shutdownTimeout = 5 * time.Second

// Handler returns an HTTP handler exposing everything registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Server serves the metrics endpoint until its context is cancelled.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving g on MetricsPath in the background. A non-nil
// health handler is also served on LivePath and ReadyPath. Bind errors are returned
// right away. The server shuts down when ctx is cancelled or Close is called.
func Listen(ctx context.Context, addr string, g prometheus.Gatherer, health http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, Handler(g))
	if health != nil {
		mux.Handle(LivePath, health)
		mux.Handle(ReadyPath, health)
	}
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			plog.Warn("Metrics server stopped", "address", s.Addr(), "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	plog.Info("Serving metrics", "address", s.Addr(), "path", MetricsPath)
	return s, nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close gracefully stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
