package catalog

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const cacheKey = "catalog"

// Source yields the catalog generation to price a request against.
type Source interface {
	Current(ctx context.Context) (*Catalog, error)
}

// Fixed is a Source that always returns the same catalog.
type Fixed struct{ C *Catalog }

// Current returns the fixed catalog.
func (f Fixed) Current(context.Context) (*Catalog, error) { return f.C, nil }

// Provider loads the catalog file and keeps each parsed generation for ttl.
// Concurrent reloads of an expired generation share a single file read.
type Provider struct {
	path   string
	cache  *gocache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewProvider constructs a Provider. A non-positive ttl keeps the first
// generation until Invalidate is called.
func NewProvider(path string, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Provider{
		path:   path,
		cache:  gocache.New(ttl, 10*time.Minute),
		logger: logger,
	}
}

// Current returns the cached generation, reloading it when expired. If a
// reload fails the error is returned and the next call retries.
func (p *Provider) Current(ctx context.Context) (*Catalog, error) {
	if v, ok := p.cache.Get(cacheKey); ok {
		return v.(*Catalog), nil
	}
	v, err, _ := p.group.Do(cacheKey, func() (any, error) {
		if v, ok := p.cache.Get(cacheKey); ok {
			return v, nil
		}
		c, err := Load(p.path)
		if err != nil {
			p.logger.Error("catalog reload failed", "path", p.path, "error", err)
			return nil, err
		}
		p.cache.SetDefault(cacheKey, c)
		p.logger.Info("catalog loaded",
			"path", p.path,
			"categories", len(c.categories),
			"workshops", len(c.workshops),
			"discounts", len(c.discounts))
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

// Invalidate drops the cached generation so the next Current reloads.
func (p *Provider) Invalidate() {
	p.cache.Delete(cacheKey)
}
