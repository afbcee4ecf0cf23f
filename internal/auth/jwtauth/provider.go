package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/observability"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultCacheTTL     = 10 * time.Minute

	// maxJWKSBody bounds the accepted JWKS payload size.
	maxJWKSBody = 1 << 20
)

// Provider acquires and caches a named key set. Retrieve is safe for
// concurrent use; concurrent callers never trigger redundant fetches.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Retrieve returns the current key set snapshot.
	Retrieve(ctx context.Context) (*KeySet, error)

	// CanPrefetch reports whether the provider's source supports warm,
	// unconditioned retrieval at start-up.
	CanPrefetch() bool
}

// ProviderOption is a functional option for provider construction.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	client  *http.Client
	logger  observability.Logger
	metrics *Metrics
}

// WithProviderHTTPClient sets the HTTP client used for remote fetches.
func WithProviderHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.client = client
	}
}

// WithProviderLogger sets the provider logger.
func WithProviderLogger(logger observability.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithProviderMetrics sets the provider metrics.
func WithProviderMetrics(metrics *Metrics) ProviderOption {
	return func(o *providerOptions) {
		o.metrics = metrics
	}
}

// NewProvider creates a provider for the configured source.
func NewProvider(cfg config.JWKSProviderConfig, opts ...ProviderOption) (Provider, error) {
	o := &providerOptions{
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("gateway", nil)
	}

	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	switch cfg.Source {
	case config.JWKSSourceRemote:
		timeout := cfg.Timeout.Duration()
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		client := o.client
		if client == nil {
			client = &http.Client{Timeout: timeout}
		}
		p := &remoteProvider{
			name:    cfg.EffectiveName(),
			url:     cfg.URL,
			ttl:     ttl,
			timeout: timeout,
			client:  client,
			logger:  o.logger,
			metrics: o.metrics,
		}
		p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    p.name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				o.logger.Warn("jwks circuit breaker state change",
					observability.String("provider", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()),
				)
			},
		})
		return p, nil

	case config.JWKSSourceFile:
		return &fileProvider{
			name:    cfg.EffectiveName(),
			path:    cfg.Path,
			ttl:     ttl,
			logger:  o.logger,
			metrics: o.metrics,
		}, nil

	case config.JWKSSourceInline:
		ks, err := ParseKeySet([]byte(cfg.JWKS))
		if err != nil {
			return nil, fmt.Errorf("inline provider %s: %w", cfg.EffectiveName(), err)
		}
		ks.Provider = cfg.EffectiveName()
		return &inlineProvider{name: cfg.EffectiveName(), keySet: ks}, nil

	default:
		return nil, fmt.Errorf("unknown provider source %q", cfg.Source)
	}
}

// remoteProvider fetches a JWKS document over HTTP. The cached snapshot is
// served while fresh; refreshes are coalesced so concurrent callers share
// one fetch; a failed refresh falls back to the last good snapshot.
type remoteProvider struct {
	name    string
	url     string
	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  observability.Logger
	metrics *Metrics

	mu        sync.RWMutex
	cached    *KeySet
	lastFetch time.Time
}

// Name returns the provider name.
func (p *remoteProvider) Name() string { return p.name }

// CanPrefetch reports that remote sources support start-up prefetch.
func (p *remoteProvider) CanPrefetch() bool { return true }

// Retrieve returns the cached key set while fresh and refreshes it
// otherwise. A refresh failure with a cached snapshot available returns
// the stale snapshot.
func (p *remoteProvider) Retrieve(ctx context.Context) (*KeySet, error) {
	p.mu.RLock()
	cached, lastFetch := p.cached, p.lastFetch
	p.mu.RUnlock()

	if cached != nil && time.Since(lastFetch) < p.ttl {
		return cached, nil
	}

	// The shared fetch is detached from the calling request so one
	// cancelled caller cannot fail every coalesced waiter; the fetch
	// timeout still bounds it.
	v, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if cached != nil {
			p.logger.Warn("failed to refresh key set, using cached keys",
				observability.String("provider", p.name),
				observability.Time("lastFetch", lastFetch),
				observability.Error(err),
			)
			return cached, nil
		}
		return nil, err
	}

	return v.(*KeySet), nil
}

func (p *remoteProvider) refresh(ctx context.Context) (*KeySet, error) {
	start := time.Now()

	v, err := p.breaker.Execute(func() (any, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		p.metrics.RecordFetch(p.name, "error", time.Since(start))
		return nil, err
	}

	ks := v.(*KeySet)
	p.mu.Lock()
	p.cached = ks
	p.lastFetch = time.Now()
	p.mu.Unlock()

	p.metrics.RecordFetch(p.name, "success", time.Since(start))
	p.metrics.RecordKeySetSize(p.name, len(ks.Keys))
	p.logger.Debug("key set refreshed",
		observability.String("provider", p.name),
		observability.Int("keys", len(ks.Keys)),
	)

	return ks, nil
}

func (p *remoteProvider) fetch(ctx context.Context) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	ks, err := ParseKeySet(body)
	if err != nil {
		return nil, err
	}
	ks.Provider = p.name

	return ks, nil
}

// fileProvider reads a JWKS document from disk, re-reading it when the
// cached snapshot goes stale.
type fileProvider struct {
	name    string
	path    string
	ttl     time.Duration
	logger  observability.Logger
	metrics *Metrics

	mu        sync.RWMutex
	cached    *KeySet
	lastFetch time.Time
}

// Name returns the provider name.
func (p *fileProvider) Name() string { return p.name }

// CanPrefetch reports that file sources support start-up prefetch.
func (p *fileProvider) CanPrefetch() bool { return true }

// Retrieve returns the cached key set while fresh, re-reading the file
// otherwise. A read failure with a cached snapshot available returns the
// stale snapshot.
func (p *fileProvider) Retrieve(ctx context.Context) (*KeySet, error) {
	p.mu.RLock()
	cached, lastFetch := p.cached, p.lastFetch
	p.mu.RUnlock()

	if cached != nil && time.Since(lastFetch) < p.ttl {
		return cached, nil
	}

	start := time.Now()
	ks, err := p.read()
	if err != nil {
		p.metrics.RecordFetch(p.name, "error", time.Since(start))
		if cached != nil {
			p.logger.Warn("failed to re-read key set file, using cached keys",
				observability.String("provider", p.name),
				observability.Error(err),
			)
			return cached, nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.cached = ks
	p.lastFetch = time.Now()
	p.mu.Unlock()

	p.metrics.RecordFetch(p.name, "success", time.Since(start))
	p.metrics.RecordKeySetSize(p.name, len(ks.Keys))

	return ks, nil
}

func (p *fileProvider) read() (*KeySet, error) {
	data, err := os.ReadFile(p.path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS file: %w", err)
	}
	ks, err := ParseKeySet(data)
	if err != nil {
		return nil, err
	}
	ks.Provider = p.name
	return ks, nil
}

// inlineProvider serves a key set parsed from configuration.
type inlineProvider struct {
	name   string
	keySet *KeySet
}

// Name returns the provider name.
func (p *inlineProvider) Name() string { return p.name }

// CanPrefetch reports that inline sources support start-up prefetch.
func (p *inlineProvider) CanPrefetch() bool { return true }

// Retrieve returns the static key set.
func (p *inlineProvider) Retrieve(ctx context.Context) (*KeySet, error) {
	if p.keySet == nil {
		return nil, errors.New("no key set configured")
	}
	return p.keySet, nil
}

var (
	_ Provider = (*remoteProvider)(nil)
	_ Provider = (*fileProvider)(nil)
	_ Provider = (*inlineProvider)(nil)
)
