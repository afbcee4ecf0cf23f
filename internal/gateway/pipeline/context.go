// Package pipeline defines the request-scoped execution context and the
// plugin lifecycle the gateway runs for every request.
package pipeline

import (
	"sync"

	"github.com/gqlgate/gqlgate/internal/graphql"
)

// Reserved context keys. Namespaced so plugin data cannot collide with
// other pipeline components.
const (
	ClaimsContextKey = "jwt_auth:upstream:claims"
	TokenContextKey  = "jwt_auth:upstream:token"
)

// RequestContext carries request-scoped state shared by all pipeline hooks
// of a single request. It supports concurrent readers with exclusive
// writers and is discarded with the request.
type RequestContext struct {
	mu             sync.RWMutex
	values         map[string]any
	shortCircuited bool
	status         int
	response       *graphql.Response
}

// NewRequestContext creates an empty request context.
func NewRequestContext() *RequestContext {
	return &RequestContext{
		values: make(map[string]any),
	}
}

// Set stores a value under key.
func (c *RequestContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *RequestContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// SetVerifiedClaims stores the verified claim set under the reserved key.
func (c *RequestContext) SetVerifiedClaims(claims map[string]any) {
	c.Set(ClaimsContextKey, claims)
}

// VerifiedClaims returns the verified claim set, if stored.
func (c *RequestContext) VerifiedClaims() (map[string]any, bool) {
	v, ok := c.Get(ClaimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(map[string]any)
	return claims, ok
}

// SetVerifiedToken stores the verified raw token under the reserved key.
func (c *RequestContext) SetVerifiedToken(token string) {
	c.Set(TokenContextKey, token)
}

// VerifiedToken returns the verified raw token, if stored.
func (c *RequestContext) VerifiedToken() (string, bool) {
	v, ok := c.Get(TokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok
}

// ShortCircuit terminates pipeline processing with a final response. The
// first short-circuit wins; later calls are ignored.
func (c *RequestContext) ShortCircuit(status int, response *graphql.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuited {
		return
	}
	c.shortCircuited = true
	c.status = status
	c.response = response
}

// ShortCircuited reports whether the pipeline has been short-circuited.
func (c *RequestContext) ShortCircuited() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shortCircuited
}

// ShortCircuitResponse returns the short-circuit status and response.
func (c *RequestContext) ShortCircuitResponse() (int, *graphql.Response) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.response
}
