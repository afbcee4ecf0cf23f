package jwtauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/gateway/pipeline"
)

func bearerLookup() []config.LookupLocation {
	return []config.LookupLocation{
		{In: config.LookupInHeader, Name: "Authorization", Prefix: "Bearer "},
	}
}

func inlineAuthConfig(t *testing.T, doc []byte) *config.JWTAuthConfig {
	t.Helper()
	return &config.JWTAuthConfig{
		Lookup: bearerLookup(),
		Providers: []config.JWKSProviderConfig{
			{Name: "inline", Source: config.JWKSSourceInline, JWKS: string(doc)},
		},
	}
}

func TestPluginRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), alg: "RS256"}))
	cfg.RejectUnauthenticated = true

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	otherKey := newRSAKey(t)
	raw := signToken(t, jwt.SigningMethodRS256, otherKey, nil, "")

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)

	require.True(t, reqCtx.ShortCircuited())
	status, resp := reqCtx.ShortCircuitResponse()
	assert.Equal(t, http.StatusUnauthorized, status)
	require.Len(t, resp.Errors, 1)
	// The body stays generic; failure detail goes to logs only.
	assert.Equal(t, "unauthenticated request", resp.Errors[0].Message)
}

func TestPluginRejectsCorruptPayloadAsUnauthorized(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), kid: "k1", alg: "RS256"}))
	cfg.RejectUnauthenticated = true

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	// A well-formed header with a damaged claims segment reaches
	// verification and fails every key, so the request is unauthorized
	// rather than a client parse error.
	raw := signToken(t, jwt.SigningMethodRS256, key, nil, "k1")
	parts := strings.Split(raw, ".")
	corrupted := parts[0] + ".!!!garbage!!!." + parts[2]

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+corrupted)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)

	require.True(t, reqCtx.ShortCircuited())
	status, _ := reqCtx.ShortCircuitResponse()
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestPluginRejectsMissingCredential(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), alg: "RS256"}))
	cfg.RejectUnauthenticated = true

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)

	require.True(t, reqCtx.ShortCircuited())
	status, _ := reqCtx.ShortCircuitResponse()
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPluginFailOpen(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), alg: "RS256"}))
	cfg.ForwardClaimsHeader = "X-Auth-Claims"
	cfg.ForwardTokenHeader = "X-Auth-Token"

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)

	// Unauthenticated but allowed to proceed.
	assert.False(t, reqCtx.ShortCircuited())

	upstream := httptest.NewRequest(http.MethodPost, "http://upstream/graphql", nil)
	p.OnUpstreamRequest(context.Background(), reqCtx, upstream)

	assert.False(t, reqCtx.ShortCircuited())
	assert.Empty(t, upstream.Header.Get("X-Auth-Claims"))
	assert.Empty(t, upstream.Header.Get("X-Auth-Token"))
}

func TestPluginForwardsClaimsAndToken(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), kid: "k1", alg: "RS256"}))
	cfg.ForwardClaimsHeader = "X-Auth-Claims"
	cfg.ForwardTokenHeader = "X-Auth-Token"

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	raw := signToken(t, jwt.SigningMethodRS256, key, jwt.MapClaims{"sub": "user-1"}, "k1")

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)
	require.False(t, reqCtx.ShortCircuited())

	claims, ok := reqCtx.VerifiedClaims()
	require.True(t, ok)
	assert.Equal(t, "user-1", claims["sub"])

	upstream := httptest.NewRequest(http.MethodPost, "http://upstream/graphql", nil)
	p.OnUpstreamRequest(context.Background(), reqCtx, upstream)
	require.False(t, reqCtx.ShortCircuited())

	assert.Equal(t, raw, upstream.Header.Get("X-Auth-Token"))

	var forwarded map[string]any
	require.NoError(t, json.Unmarshal([]byte(upstream.Header.Get("X-Auth-Claims")), &forwarded))
	assert.Equal(t, "user-1", forwarded["sub"])
}

func TestPluginSkipsStorageWithoutForwardHeaders(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), alg: "RS256"}))

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	raw := signToken(t, jwt.SigningMethodRS256, key, nil, "")
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)
	require.False(t, reqCtx.ShortCircuited())

	_, ok := reqCtx.VerifiedClaims()
	assert.False(t, ok)
	_, ok = reqCtx.VerifiedToken()
	assert.False(t, ok)
}

func TestPluginInvalidForwardHeaderName(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	cfg := inlineAuthConfig(t, jwksDocument(t, jwksEntry{key: key.Public(), alg: "RS256"}))
	cfg.ForwardClaimsHeader = "X-Auth Claims"

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	raw := signToken(t, jwt.SigningMethodRS256, key, nil, "")
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)
	require.False(t, reqCtx.ShortCircuited())

	upstream := httptest.NewRequest(http.MethodPost, "http://upstream/graphql", nil)
	p.OnUpstreamRequest(context.Background(), reqCtx, upstream)

	require.True(t, reqCtx.ShortCircuited())
	status, _ := reqCtx.ShortCircuitResponse()
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPluginToleratesFailingProvider(t *testing.T) {
	t.Parallel()

	key := newRSAKey(t)
	doc := jwksDocument(t, jwksEntry{key: key.Public(), kid: "k1", alg: "RS256"})

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	cfg := &config.JWTAuthConfig{
		Lookup: bearerLookup(),
		Providers: []config.JWKSProviderConfig{
			{Name: "down", Source: config.JWKSSourceRemote, URL: down.URL},
			{Name: "up", Source: config.JWKSSourceInline, JWKS: string(doc)},
		},
		RejectUnauthenticated: true,
	}

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)

	raw := signToken(t, jwt.SigningMethodRS256, key, nil, "k1")
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+raw)

	reqCtx := pipeline.NewRequestContext()
	p.OnDownstreamRequest(context.Background(), reqCtx, r)

	assert.False(t, reqCtx.ShortCircuited())
}

func TestPluginConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil)
	require.Error(t, err)

	_, err = New(context.Background(), &config.JWTAuthConfig{})
	require.Error(t, err)
}

func TestIsValidHeaderName(t *testing.T) {
	t.Parallel()

	assert.True(t, isValidHeaderName("X-Auth-Claims"))
	assert.True(t, isValidHeaderName("x_token"))
	assert.False(t, isValidHeaderName(""))
	assert.False(t, isValidHeaderName("X Auth"))
	assert.False(t, isValidHeaderName("X-Auth:"))
}
