package config

import "fmt"

// Credential lookup kinds.
const (
	LookupInHeader     = "header"
	LookupInQueryParam = "queryParam"
	LookupInCookie     = "cookie"
)

// Key set source kinds.
const (
	JWKSSourceRemote = "remote"
	JWKSSourceFile   = "file"
	JWKSSourceInline = "inline"
)

// JWTAuthConfig configures JWT authentication for an endpoint.
type JWTAuthConfig struct {
	// Lookup is the ordered list of credential lookup locations. The first
	// location that yields a value wins.
	Lookup []LookupLocation `yaml:"lookup"`

	// Providers lists the key set providers consulted during verification.
	Providers []JWKSProviderConfig `yaml:"providers"`

	// Issuers is an optional allow-list of token issuers. When set, the
	// token's iss claim must be one of these values.
	Issuers []string `yaml:"issuers,omitempty"`

	// Audiences is an optional allow-list of token audiences. When set,
	// every entry of the token's aud claim must be in this list.
	Audiences []string `yaml:"audiences,omitempty"`

	// ForwardClaimsHeader, when set, names the upstream header that
	// receives the verified claims as JSON.
	ForwardClaimsHeader string `yaml:"forwardClaimsHeader,omitempty"`

	// ForwardTokenHeader, when set, names the upstream header that
	// receives the raw verified token.
	ForwardTokenHeader string `yaml:"forwardTokenHeader,omitempty"`

	// RejectUnauthenticated short-circuits requests that fail
	// authentication. When false, failed requests proceed unauthenticated.
	RejectUnauthenticated bool `yaml:"rejectUnauthenticated,omitempty"`
}

// LookupLocation describes one credential lookup rule. In selects the kind;
// the remaining fields apply to specific kinds.
type LookupLocation struct {
	// In is the lookup kind: header, queryParam, or cookie.
	In string `yaml:"in"`

	// Name is the header, query parameter, or cookie name.
	Name string `yaml:"name"`

	// Prefix is an optional scheme prefix for header lookups
	// (e.g. "Bearer "). A present header that does not start with the
	// prefix fails the lookup.
	Prefix string `yaml:"prefix,omitempty"`
}

// JWKSProviderConfig describes one key set provider. Source selects the
// kind; the remaining fields apply to specific kinds.
type JWKSProviderConfig struct {
	// Name identifies the provider in logs and metrics. Defaults to the
	// URL or path when empty.
	Name string `yaml:"name,omitempty"`

	// Source is the provider kind: remote, file, or inline.
	Source string `yaml:"source"`

	// URL is the JWKS endpoint for remote providers.
	URL string `yaml:"url,omitempty"`

	// Path is the JWKS file path for file providers.
	Path string `yaml:"path,omitempty"`

	// JWKS is the raw JWKS document for inline providers.
	JWKS string `yaml:"jwks,omitempty"`

	// Timeout bounds a single remote fetch. Defaults to 5s.
	Timeout Duration `yaml:"timeout,omitempty"`

	// CacheTTL is how long a retrieved key set is considered fresh.
	// Defaults to 10m.
	CacheTTL Duration `yaml:"cacheTTL,omitempty"`
}

// Validate validates the JWT authentication configuration.
func (c *JWTAuthConfig) Validate() error {
	if len(c.Lookup) == 0 {
		return fmt.Errorf("at least one lookup location is required")
	}
	for i, loc := range c.Lookup {
		switch loc.In {
		case LookupInHeader, LookupInQueryParam, LookupInCookie:
		default:
			return fmt.Errorf("lookup %d: unknown kind %q", i, loc.In)
		}
		if loc.Name == "" {
			return fmt.Errorf("lookup %d: name is required", i)
		}
		if loc.Prefix != "" && loc.In != LookupInHeader {
			return fmt.Errorf("lookup %d: prefix is only valid for header lookups", i)
		}
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for i, p := range c.Providers {
		switch p.Source {
		case JWKSSourceRemote:
			if p.URL == "" {
				return fmt.Errorf("provider %d: url is required for remote source", i)
			}
		case JWKSSourceFile:
			if p.Path == "" {
				return fmt.Errorf("provider %d: path is required for file source", i)
			}
		case JWKSSourceInline:
			if p.JWKS == "" {
				return fmt.Errorf("provider %d: jwks is required for inline source", i)
			}
		default:
			return fmt.Errorf("provider %d: unknown source %q", i, p.Source)
		}
	}

	return nil
}

// EffectiveName returns the provider name, defaulting to its URL or path.
func (c JWKSProviderConfig) EffectiveName() string {
	if c.Name != "" {
		return c.Name
	}
	switch c.Source {
	case JWKSSourceRemote:
		return c.URL
	case JWKSSourceFile:
		return c.Path
	default:
		return "inline"
	}
}
