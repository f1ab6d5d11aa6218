package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	cloudPlatform   = "https://www.googleapis.com/auth/cloud-platform"
	tokenLeeway     = time.Minute
)

// TokenCache mints Vertex AI access tokens from service account keys. One
// token source is kept per account and key; a source refreshes only when its
// token is about to expire. Sources are also keyed by the HTTP client that
// reaches the token endpoint, so proxied and direct settings never share one.
// TokenCache is safe for concurrent use.
type TokenCache struct {
	tokenURL string
	client   *http.Client

	mu      sync.Mutex
	sources map[sourceKey]oauth2.TokenSource
}

type sourceKey struct {
	account string
	client  *http.Client
}

// TokenCacheOption configures a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenURL overrides the OAuth2 token endpoint.
func WithTokenURL(u string) TokenCacheOption { return func(c *TokenCache) { c.tokenURL = u } }

// WithTokenHTTPClient sets the client used when Token is given none.
func WithTokenHTTPClient(hc *http.Client) TokenCacheOption {
	return func(c *TokenCache) { c.client = hc }
}

func NewTokenCache(opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		tokenURL: defaultTokenURL,
		client:   http.DefaultClient,
		sources:  make(map[sourceKey]oauth2.TokenSource),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns a bearer token for the service account, fetched through hc
// (the cache's own client when hc is nil). It returns early with ctx's error
// when ctx ends before the token endpoint answers.
func (c *TokenCache) Token(ctx context.Context, hc *http.Client, email, privateKey string) (string, error) {
	if email == "" || privateKey == "" {
		return "", errors.New("vertex: service account email and private key are required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if hc == nil {
		hc = c.client
	}
	src := c.source(hc, email, normalizeKey(privateKey))

	type result struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		done <- result{tok, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("vertex: mint access token for %s: %w", email, r.err)
		}
		return r.tok.AccessToken, nil
	}
}

func (c *TokenCache) source(hc *http.Client, email, key string) oauth2.TokenSource {
	sum := sha256.Sum256([]byte(key))
	id := sourceKey{account: email + "/" + hex.EncodeToString(sum[:8]), client: hc}

	c.mu.Lock()
	defer c.mu.Unlock()
	if src, ok := c.sources[id]; ok {
		return src
	}
	cfg := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(key),
		Scopes:     []string{cloudPlatform},
		TokenURL:   c.tokenURL,
	}
	// The token source outlives any single request, so it gets its own context.
	base := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	src := oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(base), tokenLeeway)
	c.sources[id] = src
	return src
}

// normalizeKey accepts keys pasted from JSON credentials with escaped newlines.
func normalizeKey(key string) string {
	return strings.TrimSpace(strings.ReplaceAll(key, `\n`, "\n"))
}
