package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_PlainHTTPWithUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := &http.Client{Transport: New(Options{UserAgent: "Mozilla/5.0 test"})}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if gotUA != "Mozilla/5.0 test" {
		t.Errorf("User-Agent = %q, want Mozilla/5.0 test", gotUA)
	}
}

func TestUserAgentTransport_KeepsExplicit(t *testing.T) {
	var gotUA string
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotUA = r.Header.Get("User-Agent")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})

	rt := &userAgentTransport{next: next, userAgent: "default"}
	req, _ := http.NewRequest(http.MethodGet, "https://shop.example/", nil)
	req.Header.Set("User-Agent", "explicit")
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	if gotUA != "explicit" {
		t.Errorf("User-Agent = %q, want explicit", gotUA)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
