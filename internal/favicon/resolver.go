package favicon

import (
	"context"
	"log/slog"
	"time"
)

// Fetcher resolves a page URL to favicon image bytes via the engine's
// favicon-resolution capability.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

const fetchTimeout = 10 * time.Second

// Resolver serves favicons cache-first and populates both tiers on a
// successful fetch. Fetch failures yield the default icon and are not
// cached, so a later lookup retries instead of pinning the failure.
type Resolver struct {
	cache   *Cache
	fetcher Fetcher
}

func NewResolver(cache *Cache, fetcher Fetcher) *Resolver {
	return &Resolver{cache: cache, fetcher: fetcher}
}

// Resolve returns the icon for pageURL, fetching on a cache miss.
func (r *Resolver) Resolve(ctx context.Context, pageURL string) []byte {
	key := KeyFor(pageURL)
	if data, ok := r.cache.Get(key); ok {
		return data
	}
	if r.fetcher == nil {
		return DefaultIcon()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	data, err := r.fetcher.Fetch(fetchCtx, pageURL)
	if err != nil || len(data) == 0 {
		slog.Debug("favicon fetch failed", "url", pageURL, "error", err)
		return DefaultIcon()
	}
	r.cache.Put(key, data)
	return data
}

// Icon returns a synchronously-available best-effort icon: the cached image
// when present, otherwise the default icon while a background fetch
// populates the cache for later lookups.
func (r *Resolver) Icon(pageURL string) []byte {
	key := KeyFor(pageURL)
	if data, ok := r.cache.Get(key); ok {
		return data
	}
	if r.fetcher != nil {
		go r.Resolve(context.Background(), pageURL)
	}
	return DefaultIcon()
}
