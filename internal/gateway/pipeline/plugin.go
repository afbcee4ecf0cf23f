package pipeline

import (
	"context"
	"net/http"
)

// Plugin is a pipeline lifecycle participant. Hooks run in registration
// order; once the request context is short-circuited no further hooks run.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// OnDownstreamRequest runs before the inbound request is processed.
	OnDownstreamRequest(ctx context.Context, reqCtx *RequestContext, r *http.Request)

	// OnUpstreamRequest runs before the request is forwarded upstream and
	// may mutate the outbound request.
	OnUpstreamRequest(ctx context.Context, reqCtx *RequestContext, upstream *http.Request)
}

// RunDownstream runs the downstream hook of every plugin, stopping at the
// first short-circuit.
func RunDownstream(ctx context.Context, reqCtx *RequestContext, r *http.Request, plugins []Plugin) {
	for _, p := range plugins {
		if reqCtx.ShortCircuited() {
			return
		}
		p.OnDownstreamRequest(ctx, reqCtx, r)
	}
}

// RunUpstream runs the upstream hook of every plugin, stopping at the
// first short-circuit.
func RunUpstream(ctx context.Context, reqCtx *RequestContext, upstream *http.Request, plugins []Plugin) {
	for _, p := range plugins {
		if reqCtx.ShortCircuited() {
			return
		}
		p.OnUpstreamRequest(ctx, reqCtx, upstream)
	}
}
