// Package transport provides the round tripper used to fetch storefront
// markup.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Storefront CDNs rate limit clients by TLS fingerprint, and Go's default
// ClientHello is easy to single out. The Chrome transport dials with uTLS
// and lets ALPN pick h2 or http/1.1.

// Options configures the storefront transport.
type Options struct {
	DialTimeout time.Duration
	Hello       utls.ClientHelloID // zero value means HelloChrome_Auto
	UserAgent   string             // set on requests that carry none
}

// New returns the storefront round tripper: Chrome fingerprint over h2,
// falling back to HTTP/1.1, with an optional default User-Agent.
func New(opts Options) http.RoundTripper {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Hello.Client == "" {
		opts.Hello = utls.HelloChrome_Auto
	}

	var rt http.RoundTripper = newChromeTransport(opts)
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: rt, userAgent: opts.UserAgent}
	}
	return rt
}

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func newChromeTransport(opts Options) *chromeTransport {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialTLS(ctx, dialer, opts.Hello, network, addr)
	}

	return &chromeTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
		h1: &http.Transport{
			DialTLSContext:      dial,
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// RoundTrip sends plain-HTTP requests over HTTP/1.1 and tries h2 first for
// TLS ones. A canceled request is not retried.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if req.Context().Err() != nil {
		return nil, err
	}
	return t.h1.RoundTrip(req)
}

func dialTLS(ctx context.Context, dialer *net.Dialer, hello utls.ClientHelloID, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, hello)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return tlsConn, nil
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(r)
}
