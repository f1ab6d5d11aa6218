// Package claude adapts the Anthropic Messages API to the unified message model.
package claude

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

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/keyroulette"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/transport"
)

const (
	providerName   = "anthropic"
	DefaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
)

// Settings are loaded before every call.
type Settings struct {
	BaseURL string
	// APIKey may hold several keys separated by commas or whitespace; they are used in turn.
	APIKey string
	Proxy  string
}

// Provider implements core.Provider[Settings].
type Provider struct {
	http   *transport.Client
	logger *slog.Logger
	retry  retry.Config
	keys   *keyroulette.Roulette
	now    func() time.Time
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

func New(opts ...Option) *Provider {
	p := &Provider{
		logger: slog.Default(),
		retry:  retry.DefaultConfig(),
		now:    time.Now,
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
	return p
}

func (p *Provider) baseURL(s Settings) string {
	if s.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(s.BaseURL, "/")
}

func (p *Provider) newRequest(ctx context.Context, s Settings, method, endpoint string, body []byte, headers []core.CustomHeader) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.keys.Next(s.APIKey))
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("content-type", "application/json")
	for _, h := range headers {
		if h.Name != "" {
			req.Header.Set(h.Name, h.Value)
		}
	}
	return req, nil
}

type modelList struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

// ListModels pages through GET /models.
func (p *Provider) ListModels(ctx context.Context, s Settings) ([]core.Model, error) {
	ctx, cancel := p.http.WithRequestTimeout(ctx)
	defer cancel()

	var out []core.Model
	after := ""
	for {
		q := url.Values{"limit": {"100"}}
		if after != "" {
			q.Set("after_id", after)
		}
		endpoint := p.baseURL(s) + "/models?" + q.Encode()
		resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
			return p.newRequest(ctx, s, http.MethodGet, endpoint, nil, nil)
		})
		if err != nil {
			return nil, err
		}
		var page modelList
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode anthropic models: %w", err)
		}
		for _, m := range page.Data {
			name := m.DisplayName
			if name == "" {
				name = m.ID
			}
			out = append(out, core.Model{
				ID:               m.ID,
				DisplayName:      name,
				Type:             core.ModelTypeChat,
				InputModalities:  []core.Modality{core.ModalityText, core.ModalityImage},
				OutputModalities: []core.Modality{core.ModalityText},
			})
		}
		if !page.HasMore || page.LastID == "" || page.LastID == after {
			return out, nil
		}
		after = page.LastID
	}
}

func (p *Provider) GenerateText(ctx context.Context, s Settings, messages []core.UIMessage, params core.TextGenerationParams) (core.MessageChunk, error) {
	body, err := p.buildRequest(messages, params, false)
	if err != nil {
		return core.MessageChunk{}, err
	}
	ctx, cancel := p.http.WithRequestTimeout(ctx)
	defer cancel()

	resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
		return p.newRequest(ctx, s, http.MethodPost, p.baseURL(s)+"/messages", body, params.CustomHeaders)
	})
	if err != nil {
		return core.MessageChunk{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.MessageChunk{}, err
	}
	return p.parseMessage(raw)
}

func (p *Provider) StreamText(ctx context.Context, s Settings, messages []core.UIMessage, params core.TextGenerationParams) (*core.Stream, error) {
	body, err := p.buildRequest(messages, params, true)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := p.newRequest(ctx, s, http.MethodPost, p.baseURL(s)+"/messages", body, params.CustomHeaders)
		if err != nil {
			return nil, err
		}
		req.Header.Set("accept", "text/event-stream")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	d := &streamDecoder{now: p.now}
	return core.NewStream(ctx, transport.NewSSEReader(resp.Body), resp.Body, d.decode), nil
}

// GenerateImage is not offered by Anthropic.
func (p *Provider) GenerateImage(context.Context, Settings, core.ImageGenerationParams) (core.ImageGenerationResult, error) {
	return core.ImageGenerationResult{}, fmt.Errorf("anthropic image generation: %w", moderr.ErrUnsupportedOperation)
}
