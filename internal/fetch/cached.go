package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/video-pipeline/internal/store"
)

// DefaultPageCacheTTL is how long a fetched research page stays cached.
const DefaultPageCacheTTL = 6 * time.Hour

// CachedFetcherConfig configures a CachedFetcher.
type CachedFetcherConfig struct {
	Options   *Options
	CacheTTL  time.Duration
	SkipCache bool
}

// DefaultCachedFetcherConfig returns the default cache settings.
func DefaultCachedFetcherConfig() *CachedFetcherConfig {
	return &CachedFetcherConfig{
		Options:  DefaultOptions(),
		CacheTTL: DefaultPageCacheTTL,
	}
}

// CachedFetcher fetches pages through the shared key/value store so repeated
// research runs for the same sources do not refetch.
type CachedFetcher struct {
	store     store.Store
	options   *Options
	cacheTTL  time.Duration
	skipCache bool
}

// CachedResult extends Result with cache metadata.
type CachedResult struct {
	*Result
	FromCache bool
}

type cachedPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Links      []string  `json:"links,omitempty"`
	StatusCode int       `json:"status_code"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// NewCachedFetcher creates a fetcher backed by s. A nil store disables caching.
func NewCachedFetcher(s store.Store, config *CachedFetcherConfig) *CachedFetcher {
	if config == nil {
		config = DefaultCachedFetcherConfig()
	}
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultPageCacheTTL
	}
	return &CachedFetcher{
		store:     s,
		options:   config.Options,
		cacheTTL:  config.CacheTTL,
		skipCache: config.SkipCache,
	}
}

// PageCacheKey returns the store key for a cached page.
func PageCacheKey(urlStr string) string {
	sum := sha256.Sum256([]byte(urlStr))
	return "page_cache:" + hex.EncodeToString(sum[:12])
}

// Fetch returns the extracted page, serving from cache when a fresh copy exists.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*CachedResult, error) {
	useCache := f.store != nil && !f.skipCache
	key := PageCacheKey(urlStr)

	if useCache {
		var page cachedPage
		err := store.GetJSON(ctx, f.store, key, &page)
		switch {
		case err == nil:
			return &CachedResult{
				Result: &Result{
					URL:        page.URL,
					Title:      page.Title,
					Text:       page.Text,
					Links:      page.Links,
					StatusCode: page.StatusCode,
				},
				FromCache: true,
			}, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("failed to check page cache: %w", err)
		}
	}

	result, err := Page(ctx, urlStr, f.options)
	if err != nil {
		return nil, err
	}

	if useCache {
		page := cachedPage{
			URL:        result.URL,
			Title:      result.Title,
			Text:       result.Text,
			Links:      result.Links,
			StatusCode: result.StatusCode,
			FetchedAt:  time.Now().UTC(),
		}
		if err := store.PutJSON(ctx, f.store, key, page, f.cacheTTL); err != nil {
			log.Printf("[fetch] failed to cache %s: %v", urlStr, err)
		}
	}

	return &CachedResult{Result: result}, nil
}

// FetchMultiple fetches urls sequentially. Results keep input order; failures are nil.
func (f *CachedFetcher) FetchMultiple(ctx context.Context, urls []string) ([]*CachedResult, []error) {
	results := make([]*CachedResult, len(urls))
	errs := make([]error, len(urls))

	for i, u := range urls {
		if ctx.Err() != nil {
			errs[i] = ctx.Err()
			continue
		}
		result, err := f.Fetch(ctx, u)
		if err != nil {
			errs[i] = err
		} else {
			results[i] = result
		}
	}

	return results, errs
}

// InvalidateCache drops the cached copy of urlStr.
func (f *CachedFetcher) InvalidateCache(ctx context.Context, urlStr string) error {
	if f.store == nil {
		return nil
	}
	return f.store.Delete(ctx, PageCacheKey(urlStr))
}
