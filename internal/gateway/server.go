// Package gateway assembles the HTTP surface: per-endpoint pipelines over
// upstream GraphQL sources, plus health and metrics endpoints.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gqlgate/gqlgate/internal/auth/jwtauth"
	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/gateway/pipeline"
	"github.com/gqlgate/gqlgate/internal/observability"
)

// requestIDHeader carries the request id to upstreams and back to clients.
const requestIDHeader = "X-Request-Id"

// Gateway routes endpoint traffic through plugin pipelines to upstream
// GraphQL sources.
type Gateway struct {
	cfg      *config.GatewayConfig
	logger   observability.Logger
	registry *prometheus.Registry
	engine   *gin.Engine
}

// Option is a functional option for the gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithRegistry sets the prometheus registry used for gateway metrics and
// the /metrics endpoint.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(g *Gateway) {
		g.registry = registry
	}
}

// New builds a gateway from validated configuration. Each endpoint gets
// its own plugin pipeline and proxy to the source it references.
func New(ctx context.Context, cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = prometheus.NewRegistry()
	}

	sources := make(map[string]config.SourceConfig, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources[src.ID] = src
	}

	authMetrics := jwtauth.NewMetrics("gateway", g.registry)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})))

	for _, ep := range cfg.Endpoints {
		src := sources[ep.From]

		var plugins []pipeline.Plugin
		if ep.JWTAuth != nil {
			authPlugin, err := jwtauth.New(ctx, ep.JWTAuth,
				jwtauth.WithLogger(g.logger.With(observability.String("endpoint", ep.Path))),
				jwtauth.WithMetrics(authMetrics),
			)
			if err != nil {
				return nil, fmt.Errorf("endpoint %q: %w", ep.Path, err)
			}
			plugins = append(plugins, authPlugin)
		}

		proxy := newProxy(src, g.logger)
		engine.POST(ep.Path, endpointHandler(plugins, proxy, g.logger))
	}

	g.engine = engine
	return g, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.engine }

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Request.Header.Set(requestIDHeader, id)
		c.Next()
	}
}
