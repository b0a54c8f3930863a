package storefront

import (
	"context"
	"sync"

	"variant-sync/internal/model"
)

// Mock implements Fetcher for testing. Pages maps URLs to markup;
// FetchFunc, when set, takes precedence. Every requested URL is recorded.
type Mock struct {
	FetchFunc func(ctx context.Context, rawURL string) (string, error)
	Pages     map[string]string

	mu    sync.Mutex
	calls []string
}

// Fetch records the call, then serves FetchFunc or Pages.
func (m *Mock) Fetch(ctx context.Context, rawURL string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rawURL)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, rawURL)
	}
	if page, ok := m.Pages[rawURL]; ok {
		return page, nil
	}
	return "", model.NewNetworkError(rawURL, model.NewNotFoundError("page"))
}

// Calls returns the URLs fetched so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var _ Fetcher = (*Mock)(nil)
