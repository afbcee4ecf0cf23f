// Package config defines the gateway configuration model and its YAML loader.
package config

import (
	"fmt"
	"strings"

	"github.com/gqlgate/gqlgate/internal/observability"
)

// GatewayConfig is the root gateway configuration.
type GatewayConfig struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging observability.LogConfig `yaml:"logging,omitempty"`

	// Sources lists the upstream GraphQL sources.
	Sources []SourceConfig `yaml:"sources"`

	// Endpoints lists the exposed GraphQL endpoints.
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	host := s.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := s.Port
	if port == 0 {
		port = 9000
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SourceConfig describes an upstream GraphQL source.
type SourceConfig struct {
	// ID is the source identifier referenced by endpoints.
	ID string `yaml:"id"`

	// Endpoint is the upstream GraphQL URL.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single upstream request.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// EndpointConfig describes an exposed GraphQL endpoint.
type EndpointConfig struct {
	// Path is the HTTP path the endpoint is served on.
	Path string `yaml:"path"`

	// From references a source by ID.
	From string `yaml:"from"`

	// JWTAuth enables JWT authentication for the endpoint when present.
	JWTAuth *JWTAuthConfig `yaml:"jwtAuth,omitempty"`
}

// Validate validates the configuration.
func (c *GatewayConfig) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	sourceIDs := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if sourceIDs[src.ID] {
			return fmt.Errorf("source %q: duplicate id", src.ID)
		}
		sourceIDs[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("source %q: endpoint is required", src.ID)
		}
	}

	paths := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Path == "" || !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("endpoint %d: path must start with /", i)
		}
		if paths[ep.Path] {
			return fmt.Errorf("endpoint %q: duplicate path", ep.Path)
		}
		paths[ep.Path] = true
		if !sourceIDs[ep.From] {
			return fmt.Errorf("endpoint %q: unknown source %q", ep.Path, ep.From)
		}
		if ep.JWTAuth != nil {
			if err := ep.JWTAuth.Validate(); err != nil {
				return fmt.Errorf("endpoint %q: jwtAuth: %w", ep.Path, err)
			}
		}
	}

	return nil
}
