// Package jwtauth implements JWT authentication for gateway endpoints:
// credential lookup, key set acquisition, multi-key signature verification
// with issuer/audience policy, and the pipeline hooks that reject requests
// or forward verified identity data upstream.
package jwtauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/gateway/pipeline"
	"github.com/gqlgate/gqlgate/internal/graphql"
	"github.com/gqlgate/gqlgate/internal/observability"
)

// pluginName identifies the plugin in configuration and logs.
const pluginName = "jwt_auth"

// Plugin authenticates requests against configured key set providers and
// forwards verified claims and tokens to the upstream request.
type Plugin struct {
	cfg       *config.JWTAuthConfig
	providers []Provider
	locator   *locator
	verifier  *verifier
	logger    observability.Logger
	metrics   *Metrics
}

// Option is a functional option for the plugin.
type Option func(*Plugin)

// WithLogger sets the plugin logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Plugin) {
		p.logger = logger
	}
}

// WithMetrics sets the plugin metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(p *Plugin) {
		p.metrics = metrics
	}
}

// WithProviders overrides the providers built from configuration.
func WithProviders(providers ...Provider) Option {
	return func(p *Plugin) {
		p.providers = providers
	}
}

// New creates the plugin, builds its providers, and eagerly warms up every
// provider that supports prefetch. Prefetch failures are logged, never
// fatal; such providers are retried on first real use.
func New(ctx context.Context, cfg *config.JWTAuthConfig, opts ...Option) (*Plugin, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Plugin{
		cfg:    cfg,
		logger: observability.NopLogger(),
		verifier: &verifier{
			issuers:   cfg.Issuers,
			audiences: cfg.Audiences,
		},
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = NewMetrics("gateway", nil)
	}
	p.locator = &locator{rules: cfg.Lookup, logger: p.logger}

	if p.providers == nil {
		for _, providerCfg := range cfg.Providers {
			provider, err := NewProvider(providerCfg,
				WithProviderLogger(p.logger),
				WithProviderMetrics(p.metrics),
			)
			if err != nil {
				return nil, err
			}
			p.providers = append(p.providers, provider)
		}
	}

	for _, provider := range p.providers {
		if !provider.CanPrefetch() {
			continue
		}
		if _, err := provider.Retrieve(ctx); err != nil {
			p.logger.Error("failed to prefetch key set, will retry on first request",
				observability.String("provider", provider.Name()),
				observability.Error(err),
			)
		}
	}

	return p, nil
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return pluginName }

// OnDownstreamRequest authenticates the inbound request. On success the
// verified claims and raw token are stored in the request context for the
// upstream hook. On failure the request either short-circuits with the
// mapped status or proceeds unauthenticated, per configuration.
func (p *Plugin) OnDownstreamRequest(ctx context.Context, reqCtx *pipeline.RequestContext, r *http.Request) {
	start := time.Now()

	keySets := p.collectKeySets(ctx)

	token, authErr := p.authenticate(r, keySets)
	if authErr != nil {
		p.logger.Warn("jwt authentication failed",
			observability.String("kind", authErr.Kind.String()),
			observability.Error(authErr),
		)
		p.metrics.RecordAuthentication("failure", authErr.Kind.String(), time.Since(start))

		if p.cfg.RejectUnauthenticated {
			reqCtx.ShortCircuit(authErr.Kind.HTTPStatus(),
				graphql.NewErrorResponse("unauthenticated request"))
		}
		return
	}

	if p.cfg.ForwardClaimsHeader != "" {
		reqCtx.SetVerifiedClaims(token.Claims)
	}
	if p.cfg.ForwardTokenHeader != "" {
		reqCtx.SetVerifiedToken(token.Raw)
	}

	p.metrics.RecordAuthentication("success", "", time.Since(start))
}

// OnUpstreamRequest copies verified identity data into the outbound
// upstream request's headers. When prior authentication failed and the
// request was allowed to proceed, nothing is stored and forwarding is
// silently skipped.
func (p *Plugin) OnUpstreamRequest(ctx context.Context, reqCtx *pipeline.RequestContext, upstream *http.Request) {
	if p.cfg.ForwardClaimsHeader != "" {
		if claims, ok := reqCtx.VerifiedClaims(); ok {
			serialized, err := json.Marshal(claims)
			if err != nil || !isHeaderSafe(string(serialized)) {
				reqCtx.ShortCircuit(http.StatusBadRequest,
					graphql.NewErrorResponse("failed to serialize claims as header value"))
				return
			}
			if !isValidHeaderName(p.cfg.ForwardClaimsHeader) {
				reqCtx.ShortCircuit(http.StatusBadRequest,
					graphql.NewErrorResponse("failed to parse header name for claims"))
				return
			}
			upstream.Header.Add(p.cfg.ForwardClaimsHeader, string(serialized))
		}
	}

	if p.cfg.ForwardTokenHeader != "" {
		if token, ok := reqCtx.VerifiedToken(); ok {
			if !isHeaderSafe(token) {
				reqCtx.ShortCircuit(http.StatusBadRequest,
					graphql.NewErrorResponse("failed to convert token to header value"))
				return
			}
			if !isValidHeaderName(p.cfg.ForwardTokenHeader) {
				reqCtx.ShortCircuit(http.StatusBadRequest,
					graphql.NewErrorResponse("failed to parse header name for token"))
				return
			}
			upstream.Header.Add(p.cfg.ForwardTokenHeader, token)
		}
	}
}

// authenticate runs the end-to-end authentication sequence: locate the
// credential, parse its unprotected header, select a key set, verify.
func (p *Plugin) authenticate(r *http.Request, keySets []*KeySet) (*VerifiedToken, *Error) {
	raw, lookupErr := p.locator.locate(r)
	if lookupErr != nil {
		return nil, newError(KindLookupFailed, lookupErr)
	}

	header, err := parseTokenHeader(raw)
	if err != nil {
		return nil, err
	}

	keySet, err := selectKeySet(header, keySets)
	if err != nil {
		return nil, err
	}

	return p.verifier.verify(raw, keySet)
}

// collectKeySets retrieves a snapshot from every provider concurrently and
// returns the successful ones. A failing provider only shrinks the pool;
// it never fails the request by itself.
func (p *Plugin) collectKeySets(ctx context.Context) []*KeySet {
	results := make([]*KeySet, len(p.providers))

	var wg sync.WaitGroup
	for i, provider := range p.providers {
		wg.Add(1)
		go func(i int, provider Provider) {
			defer wg.Done()
			ks, err := provider.Retrieve(ctx)
			if err != nil {
				p.logger.Warn("key set retrieval failed",
					observability.String("provider", provider.Name()),
					observability.Error(err),
				)
				return
			}
			results[i] = ks
		}(i, provider)
	}
	wg.Wait()

	keySets := make([]*KeySet, 0, len(results))
	for _, ks := range results {
		if ks != nil {
			keySets = append(keySets, ks)
		}
	}
	return keySets
}

// isValidHeaderName reports whether s is a valid HTTP header field name
// per the token grammar of RFC 9110.
func isValidHeaderName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// Ensure Plugin implements the pipeline contract.
var _ pipeline.Plugin = (*Plugin)(nil)
