package metadata

import (
	"context"
	"sync"

	"lending-adapters/internal/evm"
	"lending-adapters/internal/observability"
)

// Provider builds a product's metadata map at most once per instance
// and serves the same map for the process lifetime. With a file cache
// attached, repeated builds across processes are served from disk.
type Provider struct {
	backend evm.Backend
	src     Source
	product string
	cache   *FileCache

	mu    sync.Mutex
	built Map
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithFileCache persists built metadata under dir, keyed by the
// product identifier.
func WithFileCache(dir string) ProviderOption {
	return func(p *Provider) {
		p.cache = NewFileCache(dir, p.product)
	}
}

// NewProvider creates a Provider for one product.
func NewProvider(backend evm.Backend, src Source, product string, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend: backend,
		src:     src,
		product: product,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the metadata map, building it on first use.
func (p *Provider) Get(ctx context.Context) (Map, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.built != nil {
		return p.built, nil
	}

	if p.cache != nil {
		m, ok, err := p.cache.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			observability.RecordMetadataBuild(p.product, true)
			p.built = m
			return m, nil
		}
	}

	m, err := Build(ctx, p.backend, p.src)
	if err != nil {
		return nil, err
	}
	observability.RecordMetadataBuild(p.product, false)

	if p.cache != nil {
		if err := p.cache.Store(m); err != nil {
			return nil, err
		}
	}

	p.built = m
	return m, nil
}
