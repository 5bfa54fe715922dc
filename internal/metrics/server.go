package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the monitoring HTTP server
type ServerConfig struct {
	// Addr is the listen address, e.g. ":9090"
	Addr string
	// URLPrefix is prepended to /metrics and /debug/pprof
	URLPrefix string
	// Profiling mounts net/http/pprof handlers
	Profiling bool
}

// Server serves /metrics for a Collector
type Server struct {
	conf   ServerConfig
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a monitoring server for c
func NewServer(conf ServerConfig, c *Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	h := http.NewServeMux()
	metricPath := conf.URLPrefix + "/metrics"
	h.Handle(metricPath, promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	logger.Info("metrics: prometheus enabled", "addr", conf.Addr, "path", metricPath)

	if conf.Profiling {
		prefix := conf.URLPrefix + "/debug/pprof"
		h.HandleFunc(prefix+"/", pprof.Index)
		h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		h.HandleFunc(prefix+"/profile", pprof.Profile)
		h.HandleFunc(prefix+"/symbol", pprof.Symbol)
		h.HandleFunc(prefix+"/trace", pprof.Trace)
		logger.Info("metrics: profiling enabled", "path", prefix)
	}

	return &Server{
		conf: conf,
		server: &http.Server{
			Addr:              conf.Addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run listens and serves until ctx is cancelled, then shuts down with a
// 3 second grace period.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.conf.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.conf.Addr, err)
	}
	s.logger.Info("metrics: serving", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	return nil
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) String() string {
	return fmt.Sprintf("metrics::%s%s", s.conf.Addr, s.conf.URLPrefix)
}
