package ingestion

import (
	"context"
	"time"

	"github.com/natalia/scriptforge/internal/cache"
	"github.com/natalia/scriptforge/internal/types"
)

// DefaultSourceCacheTTL keeps fetched sources fresh long enough for retries
// and revisions of the same item to skip the network.
const DefaultSourceCacheTTL = 6 * time.Hour

// CachedFetcher wraps a Fetcher with an in-process bounded cache keyed by
// source ref. Failures are never cached.
type CachedFetcher struct {
	inner Fetcher
	cache *cache.Cache
}

// NewCachedFetcher creates a caching decorator around inner. A nil cache
// gets a default-sized one.
func NewCachedFetcher(inner Fetcher, c *cache.Cache) *CachedFetcher {
	if c == nil {
		c = cache.New(128, DefaultSourceCacheTTL, nil)
	}
	return &CachedFetcher{inner: inner, cache: c}
}

// Fetch returns the cached content for ref when fresh, otherwise delegates
// to the wrapped fetcher and caches the result.
func (f *CachedFetcher) Fetch(ctx context.Context, ref string) (*types.SourceContent, error) {
	if v, ok := f.cache.Get(ref); ok {
		if content, ok := v.(*types.SourceContent); ok {
			return content, nil
		}
	}

	content, err := f.inner.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	f.cache.Set(ref, content)
	return content, nil
}
