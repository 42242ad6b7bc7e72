package web

import (
	"context"
	"net"
	"time"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
	metrics "github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/observability/prometheus"
	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/pipeline"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

// StatusSource reports the state of a running pipeline
type StatusSource interface {
	Status() pipeline.Status
}

// Config configures the status server
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       core.Logger

	// Metrics records request metrics when set.
	Metrics *metrics.Metrics

	// Gatherer is served on /metrics. Default: metrics.DefaultRegistry.
	Gatherer prom.Gatherer
}

// DefaultConfig returns the default status server configuration
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Server exposes /metrics, /healthz and /status over fasthttp.
type Server struct {
	addr   string
	logger core.Logger
	router *Router
	server *fasthttp.Server
}

// NewServer creates a status server for source
func NewServer(source StatusSource, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = core.NewNopLogger()
	}

	r := NewRouter()
	r.Use(RequestID())
	r.Use(Recovery(cfg.Logger))
	r.Raw(fasthttp.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	r.GET("/healthz", func(ctx *RequestContext) error {
		st := source.Status()
		if st.State == string(pipeline.StateJoined) {
			return ctx.JSON(fasthttp.StatusServiceUnavailable, map[string]string{"status": "stopped", "state": st.State})
		}
		return ctx.JSON(fasthttp.StatusOK, map[string]string{"status": "ok", "state": st.State})
	})
	r.GET("/status", func(ctx *RequestContext) error {
		return ctx.JSON(fasthttp.StatusOK, source.Status())
	})

	handler := r.ServeFastHTTP
	if cfg.Metrics != nil {
		handler = metrics.Middleware(cfg.Metrics, handler)
	}

	return &Server{
		addr:   cfg.Addr,
		logger: cfg.Logger,
		router: r,
		server: &fasthttp.Server{
			Handler:               handler,
			Name:                  "pipeline-status",
			ReadTimeout:           cfg.ReadTimeout,
			WriteTimeout:          cfg.WriteTimeout,
			NoDefaultServerHeader: true,
		},
	}
}

// Router returns the router for extra routes
func (s *Server) Router() *Router {
	return s.router
}

// Handler returns the root request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.server.Handler
}

// ListenAndServe serves on the configured address until Shutdown
func (s *Server) ListenAndServe() error {
	s.logger.Infof("status server listening on %s", s.addr)
	return s.server.ListenAndServe(s.addr)
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown stops the server, waiting for open requests up to ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}
