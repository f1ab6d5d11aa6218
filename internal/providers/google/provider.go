// Package google adapts the Gemini API and Vertex AI to the unified message model.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/keyroulette"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/transport"
)

const (
	providerName   = "google"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Settings are loaded before every call. With Vertex set, requests go to
// Vertex AI and authenticate with the service account; otherwise APIKey is
// sent as the key query parameter.
type Settings struct {
	BaseURL string
	// APIKey may hold several keys separated by commas or whitespace; they are used in turn.
	APIKey string
	Proxy  string

	Vertex              bool
	ProjectID           string
	Location            string
	ServiceAccountEmail string
	PrivateKey          string
}

// Provider implements core.Provider[Settings].
type Provider struct {
	http   *transport.Client
	logger *slog.Logger
	retry  retry.Config
	keys   *keyroulette.Roulette
	tokens *TokenCache
	now    func() time.Time
	newID  func() string
}

var _ core.Provider[Settings] = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient shares a transport client between providers.
func WithHTTPClient(c *transport.Client) Option { return func(p *Provider) { p.http = c } }

// WithLogger sets a custom slog logger.
func WithLogger(l *slog.Logger) Option { return func(p *Provider) { p.logger = l } }

// WithRetryConfig overrides the retry policy for blocking calls and stream setup.
func WithRetryConfig(cfg retry.Config) Option { return func(p *Provider) { p.retry = cfg } }

// WithRoulette shares a key rotation cursor between providers.
func WithRoulette(r *keyroulette.Roulette) Option { return func(p *Provider) { p.keys = r } }

// WithTokenCache shares Vertex access tokens between providers.
func WithTokenCache(c *TokenCache) Option { return func(p *Provider) { p.tokens = c } }

func New(opts ...Option) *Provider {
	p := &Provider{
		logger: slog.Default(),
		retry:  retry.DefaultConfig(),
		now:    time.Now,
		newID:  newToolCallID,
	}
	for _, o := range opts {
		o(p)
	}
	if p.http == nil {
		p.http = transport.New()
	}
	if p.keys == nil {
		p.keys = keyroulette.New()
	}
	if p.tokens == nil {
		p.tokens = NewTokenCache()
	}
	return p
}

func modelPath(id string) string {
	return url.PathEscape(strings.TrimPrefix(id, "models/"))
}

func vertexRoot(s Settings) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	loc := vertexLocation(s)
	if loc == "global" {
		return "https://aiplatform.googleapis.com"
	}
	return "https://" + loc + "-aiplatform.googleapis.com"
}

func vertexLocation(s Settings) string {
	if s.Location == "" {
		return "us-central1"
	}
	return s.Location
}

// endpoint returns the URL for a model method such as generateContent.
// The API key, when used, is added per attempt by newRequest.
func endpoint(s Settings, model, method string, query url.Values) string {
	var base string
	if s.Vertex {
		base = fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
			vertexRoot(s), url.PathEscape(s.ProjectID), url.PathEscape(vertexLocation(s)), modelPath(model), method)
	} else {
		root := DefaultBaseURL
		if s.BaseURL != "" {
			root = strings.TrimRight(s.BaseURL, "/")
		}
		base = fmt.Sprintf("%s/models/%s:%s", root, modelPath(model), method)
	}
	if len(query) > 0 {
		base += "?" + query.Encode()
	}
	return base
}

func (p *Provider) newRequest(ctx context.Context, s Settings, method, target string, body []byte, headers []core.CustomHeader) (*http.Request, error) {
	if !s.Vertex {
		if key := p.keys.Next(s.APIKey); key != "" {
			u, err := url.Parse(target)
			if err != nil {
				return nil, err
			}
			q := u.Query()
			q.Set("key", key)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Vertex {
		hc, err := p.http.HTTPClient(s.Proxy)
		if err != nil {
			return nil, err
		}
		tok, err := p.tokens.Token(ctx, hc, s.ServiceAccountEmail, s.PrivateKey)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for _, h := range headers {
		if h.Name != "" {
			req.Header.Set(h.Name, h.Value)
		}
	}
	return req, nil
}

func (p *Provider) post(ctx context.Context, s Settings, target string, body []byte, headers []core.CustomHeader) ([]byte, error) {
	resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
		return p.newRequest(ctx, s, http.MethodPost, target, body, headers)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (p *Provider) GenerateText(ctx context.Context, s Settings, messages []core.UIMessage, params core.TextGenerationParams) (core.MessageChunk, error) {
	body, err := p.buildRequest(messages, params)
	if err != nil {
		return core.MessageChunk{}, err
	}
	ctx, cancel := p.http.WithRequestTimeout(ctx)
	defer cancel()

	raw, err := p.post(ctx, s, endpoint(s, params.Model.ID, "generateContent", nil), body, params.CustomHeaders)
	if err != nil {
		return core.MessageChunk{}, err
	}
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.MessageChunk{}, fmt.Errorf("decode google response: %w", err)
	}
	return p.parseResponse(resp, false)
}

func (p *Provider) StreamText(ctx context.Context, s Settings, messages []core.UIMessage, params core.TextGenerationParams) (*core.Stream, error) {
	body, err := p.buildRequest(messages, params)
	if err != nil {
		return nil, err
	}
	target := endpoint(s, params.Model.ID, "streamGenerateContent", url.Values{"alt": {"sse"}})
	resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := p.newRequest(ctx, s, http.MethodPost, target, body, params.CustomHeaders)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return core.NewStream(ctx, transport.NewSSEReader(resp.Body), resp.Body, p.decodeEvent), nil
}
