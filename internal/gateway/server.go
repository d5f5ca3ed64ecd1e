package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brokermcp/broker/internal/config"
	"github.com/brokermcp/broker/internal/health"
	"github.com/brokermcp/broker/internal/observe"
)

// Config configures the gateway's HTTP surface.
type Config struct {
	Addr string // e.g. ":8080"
}

// Server is the broker's HTTP gateway: the authenticated MCP endpoint plus
// health, readiness, and metrics endpoints.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New builds a Server. getServer is called once per MCP session (the
// streamable-HTTP handler's own convention) and should return the
// metatool-backed *mcp.Server to serve that session. tokens validates
// bearer tokens for every /mcp request. checkers feed /readyz.
func New(cfg Config, tokens tokenStore, getServer func(*http.Request) *mcpsdk.Server, logger *slog.Logger, admin adminStore, configCache *config.Cache, checkers ...health.Checker) *Server {
	mux := http.NewServeMux()

	mcpHandler := mcpsdk.NewStreamableHTTPHandler(getServer, nil)
	mux.Handle("/mcp", BearerAuth(tokens, logger, mcpHandler))
	mux.Handle("/config/", BearerAuth(tokens, logger, configAdminHandler(admin, configCache)))
	mux.Handle("/audit", BearerAuth(tokens, logger, auditAdminHandler(admin)))

	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// observe.Middleware adds the correlation ID and broker-domain request
	// histogram; otelhttp wraps it for semconv-standard spans/metrics.
	instrumented := otelhttp.NewHandler(observe.Middleware(observe.DefaultMetrics())(mux), "broker.gateway")

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           instrumented,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe starts the HTTP listener. It blocks until the server stops
// or returns an error (http.ErrServerClosed on a clean Shutdown).
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests before closing the
// listener, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
