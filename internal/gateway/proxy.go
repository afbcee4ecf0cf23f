package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/gateway/pipeline"
	"github.com/gqlgate/gqlgate/internal/graphql"
	"github.com/gqlgate/gqlgate/internal/observability"
)

const (
	// maxRequestBody bounds an inbound GraphQL request body.
	maxRequestBody = 4 << 20

	defaultUpstreamTimeout = 30 * time.Second
)

// proxy forwards a GraphQL request to a single upstream source.
type proxy struct {
	source config.SourceConfig
	client *http.Client
	logger observability.Logger
}

func newProxy(source config.SourceConfig, logger observability.Logger) *proxy {
	timeout := source.Timeout.Duration()
	if timeout == 0 {
		timeout = defaultUpstreamTimeout
	}
	return &proxy{
		source: source,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(observability.String("source", source.ID)),
	}
}

// buildUpstreamRequest creates the outbound request carrying the inbound
// body. Pipeline hooks mutate its headers before it is sent.
func (p *proxy) buildUpstreamRequest(ctx context.Context, body []byte, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.source.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// do sends the upstream request and returns the raw response.
func (p *proxy) do(req *http.Request) (*http.Response, error) {
	return p.client.Do(req)
}

// endpointHandler runs the full request lifecycle for one endpoint:
// downstream hooks, upstream request construction, upstream hooks, and
// response relay. Any short-circuit ends the request with the plugin's
// response instead of contacting the upstream.
func endpointHandler(plugins []pipeline.Plugin, p *proxy, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reqCtx := pipeline.NewRequestContext()

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
		if err != nil {
			writeGraphQLError(c, http.StatusBadRequest, "failed to read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		pipeline.RunDownstream(ctx, reqCtx, c.Request, plugins)
		if reqCtx.ShortCircuited() {
			writeShortCircuit(c, reqCtx)
			return
		}

		upstream, err := p.buildUpstreamRequest(ctx, body, c.ContentType())
		if err != nil {
			p.logger.Error("failed to build upstream request", observability.Error(err))
			writeGraphQLError(c, http.StatusBadGateway, "upstream request failed")
			return
		}
		if id := c.GetHeader(requestIDHeader); id != "" {
			upstream.Header.Set(requestIDHeader, id)
		}

		pipeline.RunUpstream(ctx, reqCtx, upstream, plugins)
		if reqCtx.ShortCircuited() {
			writeShortCircuit(c, reqCtx)
			return
		}

		resp, err := p.do(upstream)
		if err != nil {
			p.logger.Error("upstream request failed", observability.Error(err))
			writeGraphQLError(c, http.StatusBadGateway, "upstream request failed")
			return
		}
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
	}
}

func writeShortCircuit(c *gin.Context, reqCtx *pipeline.RequestContext) {
	status, response := reqCtx.ShortCircuitResponse()
	if response == nil {
		c.Status(status)
		return
	}
	c.JSON(status, response)
}

func writeGraphQLError(c *gin.Context, status int, message string) {
	c.JSON(status, graphql.NewErrorResponse(message))
}
