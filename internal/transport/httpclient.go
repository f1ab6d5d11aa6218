// Package transport holds the HTTP plumbing shared by the provider adapters:
// a proxy-aware client with optional rate limiting, a server-sent event
// reader and vendor error decoding.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 120 * time.Second
)

// Client sends provider requests. It is safe for concurrent use.
type Client struct {
	base    *http.Client
	timeout time.Duration
	limiter *rate.Limiter

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client used for unproxied requests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.base = hc } }

// WithTimeout bounds blocking requests. Streams are bounded by their context only.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithRateLimit limits outgoing requests across all providers sharing the client.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New builds a Client with default timeouts.
func New(opts ...Option) *Client {
	c := &Client{
		base:    &http.Client{Transport: newTransport(nil)},
		timeout: defaultTimeout,
		proxied: make(map[string]*http.Client),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newTransport(proxy *url.URL) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

// Timeout is the bound applied to blocking requests.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Do sends req, through proxy when it is non-empty. The caller owns the response body.
func (c *Client) Do(req *http.Request, proxy string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	hc, err := c.clientFor(proxy)
	if err != nil {
		return nil, err
	}
	return hc.Do(req)
}

// WithRequestTimeout derives a context bounded by the client's blocking timeout.
func (c *Client) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// HTTPClient returns the client used for proxy, for requests that must not go
// through Do, such as OAuth2 token exchanges.
func (c *Client) HTTPClient(proxy string) (*http.Client, error) { return c.clientFor(proxy) }

func (c *Client) clientFor(proxy string) (*http.Client, error) {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return c.base, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.proxied[proxy]; ok {
		return hc, nil
	}
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", proxy)
	}
	hc := &http.Client{Transport: newTransport(u)}
	c.proxied[proxy] = hc
	return hc, nil
}
