package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"variant-sync/internal/model"
)

// Fetcher retrieves rendered markup for a storefront URL.
// Interface allows mocking in tests.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

// DefaultFetchTimeout bounds a single fragment request.
const DefaultFetchTimeout = 10 * time.Second

// MaxFragmentBytes caps how much markup is read from one response.
const MaxFragmentBytes = 4 << 20

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	BaseURL   string            // storefront origin; relative product URLs resolve against it
	Timeout   time.Duration     // per-request timeout
	UserAgent string            // sent on every request when set
	Cookie    string            // storefront preview/password cookie
	Transport http.RoundTripper // nil uses http.DefaultTransport
}

// HTTPFetcher fetches storefront markup over HTTP.
type HTTPFetcher struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	cookie    string
}

// NewHTTPFetcher creates a fetcher for one storefront.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse storefront URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		base:      base,
		userAgent: cfg.UserAgent,
		cookie:    cfg.Cookie,
	}, nil
}

// Resolve turns a product-relative URL into an absolute one.
func (f *HTTPFetcher) Resolve(rawURL string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", model.NewValidationError("url", err.Error())
	}
	return f.base.ResolveReference(ref).String(), nil
}

// Fetch performs a GET and returns the response body. A canceled context
// yields a cancellation error, anything else a network error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.do(ctx, rawURL, "text/html", "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewNetworkError(rawURL, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFragmentBytes))
	if err != nil {
		return "", classify(ctx, rawURL, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}

// do issues a GET; callers close the body.
func (f *HTTPFetcher) do(ctx context.Context, rawURL, accept, etag string) (*http.Response, error) {
	abs, err := f.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, nil)
	if err != nil {
		return nil, model.NewValidationError("url", err.Error())
	}
	req.Header.Set("Accept", accept)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	return resp, nil
}

func classify(ctx context.Context, rawURL string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return model.NewCanceledError(rawURL)
	}
	return model.NewNetworkError(rawURL, err)
}

var _ Fetcher = (*HTTPFetcher)(nil)
