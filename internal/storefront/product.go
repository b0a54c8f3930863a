package storefront

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"variant-sync/internal/model"
	"variant-sync/internal/variant"
)

// DefaultProductTTL is used when the response carries no cache headers.
const DefaultProductTTL = 5 * time.Minute

// MaxProductEntries bounds the product JSON cache.
const MaxProductEntries = 1000

// ProductSource loads product snapshots from the storefront's
// `{product}.js` endpoint. Responses are cached per URL honoring
// Cache-Control/Expires and revalidated with ETag.
type ProductSource struct {
	fetcher *HTTPFetcher
	cache   *lru.Cache[string, *productEntry]
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type productEntry struct {
	product   *variant.Product
	expiresAt time.Time
	etag      string
}

// NewProductSource creates a source reading through f. ttl and size fall
// back to defaults when zero.
func NewProductSource(f *HTTPFetcher, ttl time.Duration, size int, logger *slog.Logger) (*ProductSource, error) {
	if ttl == 0 {
		ttl = DefaultProductTTL
	}
	if size == 0 {
		size = MaxProductEntries
	}
	cache, err := lru.New[string, *productEntry](size)
	if err != nil {
		return nil, fmt.Errorf("product cache: %w", err)
	}
	return &ProductSource{fetcher: f, cache: cache, ttl: ttl, logger: logger, now: time.Now}, nil
}

// Product returns the snapshot for a product page URL. A fresh cache hit
// skips the network; a stale entry is revalidated, and kept when the
// storefront cannot be reached.
func (s *ProductSource) Product(ctx context.Context, productURL string) (*variant.Product, error) {
	key := ProductJSONURL(productURL)
	entry, exists := s.cache.Get(key)
	if exists && entry.expiresAt.After(s.now()) {
		return entry.product, nil
	}

	p, err := s.fetch(ctx, key, entry)
	if err != nil {
		if exists && !model.IsCanceled(err) {
			s.logger.Warn("serving stale product JSON", "url", key, "error", err)
			return entry.product, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *ProductSource) fetch(ctx context.Context, key string, stale *productEntry) (*variant.Product, error) {
	etag := ""
	if stale != nil {
		etag = stale.etag
	}
	resp, err := s.fetcher.do(ctx, key, "application/json", etag)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		s.store(key, stale.product, resp)
		return stale.product, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, model.NewNotFoundError("product " + key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkError(key, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classify(ctx, key, fmt.Errorf("read body: %w", err))
	}
	p, err := variant.ParseProduct(body)
	if err != nil {
		return nil, err
	}

	s.store(key, p, resp)
	return p, nil
}

func (s *ProductSource) store(key string, p *variant.Product, resp *http.Response) {
	s.cache.Add(key, &productEntry{
		product:   p,
		expiresAt: s.now().Add(s.cacheTTL(resp)),
		etag:      resp.Header.Get("ETag"),
	})
}

// cacheTTL reads max-age, then Expires, then the default. no-store and
// no-cache yield zero so the next call revalidates.
func (s *ProductSource) cacheTTL(resp *http.Response) time.Duration {
	for _, directive := range strings.Split(resp.Header.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(directive)
		switch {
		case directive == "no-store", directive == "no-cache":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}

	if expires := resp.Header.Get("Expires"); expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			if ttl := t.Sub(s.now()); ttl > 0 {
				return ttl
			}
		}
	}
	return s.ttl
}

// Purge empties the cache.
func (s *ProductSource) Purge() {
	s.cache.Purge()
}
