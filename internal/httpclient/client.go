// Package httpclient provides the installer core's shared HTTP client:
// a TLS floor of 1.2 on https connections (the URL scheme itself is not
// restricted), a fixed user-agent, a coalescing rate-limit gate, and a
// DNS-cached dialer. Every other network-facing
// package (registry, ghrelease, fetcher) is built on top of it.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	"github.com/fetchbin/fetchbin/internal/ferrors"
)

const (
	userAgent      = "fetchbin/1.0"
	defaultTimeout = 5 * time.Minute // archives can be large
)

// Client wraps *http.Client with the installer's conventions: a fixed
// user-agent, a shared minimum inter-request interval, and errors that
// always carry (method, url, cause).
type Client struct {
	hc       *http.Client
	gate     *rateGate
	resolver *dnscache.Resolver
}

// Option configures a Client.
type Option func(*Client)

// WithMinTLSVersion overrides the minimum accepted TLS version (defaults
// to TLS 1.2; the spec allows tightening it up to 1.3).
func WithMinTLSVersion(v uint16) Option {
	return func(c *Client) {
		c.hc.Transport.(*http.Transport).TLSClientConfig.MinVersion = v
	}
}

// WithMinInterval sets the minimum spacing between outbound requests.
// A request issued before the interval has elapsed since the previous one
// waits out the remainder; idle time is not banked, so missed ticks are
// skipped rather than replayed as a burst.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		c.gate = newRateGate(d)
	}
}

// WithRoundTripper wraps the transport with an additional RoundTripper,
// e.g. a token-injecting layer for an archive-host API.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(c *Client) {
		c.hc.Transport = wrap(c.hc.Transport)
	}
}

// New constructs a Client with DNS caching (periodically refreshed, the
// same pattern a sibling registry-proxy project in this codebase uses),
// a transport that requires at least TLS 1.2 on https connections (plain
// http URLs are not refused), and the fixed installer user-agent.
func New(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	go refreshDNSCacheForever(resolver)

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialCached(ctx, resolver, dialer, network, addr)
		},
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	c := &Client{
		hc:       &http.Client{Timeout: defaultTimeout, Transport: transport},
		gate:     newRateGate(0),
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func refreshDNSCacheForever(resolver *dnscache.Resolver) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		resolver.Refresh(true)
	}
}

func dialCached(ctx context.Context, resolver *dnscache.Resolver, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, ip := range ips {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses resolved for %s", host)
	}
	return nil, lastErr
}

// Get builds a GET request against url, applying the rate gate and the
// fixed user-agent.
func (c *Client) Get(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ferrors.NewHTTPError(http.MethodGet, url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// Send executes req, optionally treating any non-2xx status as an error.
// Errors always identify (method, url, cause).
func (c *Client) Send(req *http.Request, errorForStatus bool) (*http.Response, error) {
	c.gate.wait()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, ferrors.NewHTTPError(req.Method, req.URL.String(), err)
	}
	if errorForStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		return nil, ferrors.NewHTTPError(req.Method, req.URL.String(),
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body))
	}
	return resp, nil
}

// RemoteExists answers whether url exists using method (typically HEAD),
// without downloading a body. Hosts that reject HEAD should be probed
// with GET and the body discarded by the caller instead.
func (c *Client) RemoteExists(ctx context.Context, url, method string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false, ferrors.NewHTTPError(method, url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.gate.wait()
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, ferrors.NewHTTPError(method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, ferrors.NewHTTPError(method, url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return true, nil
}

// GetRedirectedFinalURL follows redirects for url and returns the final
// location, without reading the body.
func (c *Client) GetRedirectedFinalURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", ferrors.NewHTTPError(http.MethodHead, url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.gate.wait()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", ferrors.NewHTTPError(http.MethodHead, url, err)
	}
	defer resp.Body.Close()
	final := resp.Request.URL.String()
	slog.Debug("resolved redirected URL", "from", url, "to", final)
	return final, nil
}

// BytesStream returns the response body as a stream to be consumed by
// the decompressor; the caller owns closing it.
func (c *Client) BytesStream(resp *http.Response) io.ReadCloser {
	return resp.Body
}

// Raw exposes the underlying *http.Client for callers (e.g. the registry
// or archive-host packages) that need to compose additional transport
// layers of their own.
func (c *Client) Raw() *http.Client {
	return c.hc
}
