package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"variant-sync/internal/model"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/tee" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("section_id"); got != "main" {
			t.Errorf("section_id = %q, want main", got)
		}
		if got := r.Header.Get("User-Agent"); got != "variant-sync-test" {
			t.Errorf("User-Agent = %q", got)
		}
		if got := r.Header.Get("Cookie"); got != "storefront_digest=abc" {
			t.Errorf("Cookie = %q", got)
		}
		w.Write([]byte(`<product-info></product-info>`))
	}))
	defer server.Close()

	f, err := NewHTTPFetcher(HTTPConfig{BaseURL: server.URL, UserAgent: "variant-sync-test", Cookie: "storefront_digest=abc"})
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error = %v", err)
	}

	body, err := f.Fetch(context.Background(), "/products/tee?section_id=main")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if body != `<product-info></product-info>` {
		t.Errorf("body = %q", body)
	}
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f, _ := NewHTTPFetcher(HTTPConfig{BaseURL: server.URL})
	_, err := f.Fetch(context.Background(), "/products/tee")
	if !errors.Is(err, model.ErrNetwork) {
		t.Fatalf("Fetch() error = %v, want ErrNetwork", err)
	}
	if model.KindOf(err) != model.KindNetwork {
		t.Errorf("KindOf() = %s, want %s", model.KindOf(err), model.KindNetwork)
	}
}

func TestHTTPFetcher_Canceled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f, _ := NewHTTPFetcher(HTTPConfig{BaseURL: server.URL, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.Fetch(ctx, "/products/slow")
	if !model.IsCanceled(err) {
		t.Fatalf("Fetch() error = %v, want cancellation", err)
	}
}

func TestMock(t *testing.T) {
	m := &Mock{Pages: map[string]string{"/a": "A"}}

	if got, err := m.Fetch(context.Background(), "/a"); err != nil || got != "A" {
		t.Errorf("Fetch(/a) = %q, %v", got, err)
	}
	if _, err := m.Fetch(context.Background(), "/b"); !errors.Is(err, model.ErrNetwork) {
		t.Errorf("Fetch(/b) error = %v, want ErrNetwork", err)
	}
	if got := m.Calls(); len(got) != 2 || got[1] != "/b" {
		t.Errorf("Calls() = %v", got)
	}
}
