package llmbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/keyroulette"
	provfactory "github.com/lizzyg/llmbridge/internal/providers"
	"github.com/lizzyg/llmbridge/internal/providers/google"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/transport"
)

// SettingsSource returns the current configuration of a named provider. The
// router asks for it before every vendor call, so keys and endpoints can
// change without rebuilding the router.
type SettingsSource func(ctx context.Context, provider string) (config.ProviderConfig, error)

// Router resolves configured model keys to provider clients. It is safe for concurrent use.
type Router struct {
	cfg        config.LLMConfig
	logger     *slog.Logger
	httpClient *http.Client
	retry      *retry.Config
	settings   SettingsSource
	deps       provfactory.Deps

	mu      sync.Mutex
	clients map[string]core.Client // provider -> client
}

// Option allows functional configuration.
type Option func(*Router)

// WithLogger sets a custom slog logger.
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.logger = l } }

// WithHTTPClient sets the http.Client used for unproxied requests.
func WithHTTPClient(c *http.Client) Option { return func(r *Router) { r.httpClient = c } }

// WithRetryConfig overrides the retry policy from config.
func WithRetryConfig(c retry.Config) Option { return func(r *Router) { r.retry = &c } }

// WithSettingsSource replaces the static provider settings from config.
func WithSettingsSource(s SettingsSource) Option { return func(r *Router) { r.settings = s } }

// NewFromFile loads config via internal/config.Load and returns a Router.
func NewFromFile(opts ...Option) (*Router, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewRouter(*cfg, opts...), nil
}

// NewRouter builds a router from config and options.
func NewRouter(cfg config.LLMConfig, opts ...Option) *Router {
	r := &Router{
		cfg:     cfg,
		logger:  slog.Default(),
		retry:   cfg.Retry,
		clients: make(map[string]core.Client),
	}
	r.settings = r.staticSettings
	for _, o := range opts {
		o(r)
	}

	topts := []transport.Option{transport.WithRateLimit(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)}
	if cfg.HTTP.Timeout > 0 {
		topts = append(topts, transport.WithTimeout(cfg.HTTP.Timeout))
	}
	if r.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(r.httpClient))
	}
	r.deps = provfactory.Deps{
		HTTP:   transport.New(topts...),
		Logger: r.logger,
		Retry:  r.retry,
		Keys:   keyroulette.New(),
		Tokens: google.NewTokenCache(),
	}
	return r
}

// ModelKeys lists the configured model keys in sorted order.
func (r *Router) ModelKeys() []string {
	keys := make([]string, 0, len(r.cfg.Models))
	for k := range r.cfg.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Model returns the configured description of a model key.
func (r *Router) Model(modelKey string) (Model, error) {
	mc, ok := r.cfg.Models[modelKey]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", moderr.ErrNoMatchingModel, modelKey)
	}
	return mc.CoreModel(), nil
}

// ListModels asks a configured provider which models it serves.
func (r *Router) ListModels(ctx context.Context, provider string) ([]Model, error) {
	c, err := r.client(provider)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	models, err := c.ListModels(ctx)
	r.logger.Debug("llm list models",
		slog.String("provider", provider),
		slog.Int("models", len(models)),
		slog.Duration("latency_ms", time.Since(start)),
		slog.Bool("error", err != nil),
	)
	return models, err
}

// GenerateText sends messages to the model behind modelKey and waits for the
// complete reply. params.Model is filled from config.
func (r *Router) GenerateText(ctx context.Context, modelKey string, messages []UIMessage, params TextGenerationParams) (MessageChunk, error) {
	mc, c, err := r.prepare(modelKey, &params)
	if err != nil {
		return MessageChunk{}, err
	}
	start := time.Now()
	chunk, err := c.GenerateText(ctx, messages, params)
	r.logCall(mc, modelKey, chunk.Usage, time.Since(start), err, false)
	return chunk, err
}

// StreamText opens a streaming reply. The returned stream must be closed.
func (r *Router) StreamText(ctx context.Context, modelKey string, messages []UIMessage, params TextGenerationParams) (*Stream, error) {
	mc, c, err := r.prepare(modelKey, &params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	s, err := c.StreamText(ctx, messages, params)
	if err != nil {
		r.logCall(mc, modelKey, nil, time.Since(start), err, true)
		return nil, err
	}
	return &Stream{inner: s, done: func(u *TokenUsage, err error) {
		r.logCall(mc, modelKey, u, time.Since(start), err, true)
	}}, nil
}

// GenerateImage creates images with the model behind modelKey.
func (r *Router) GenerateImage(ctx context.Context, modelKey string, params ImageGenerationParams) (ImageGenerationResult, error) {
	mc, ok := r.cfg.Models[modelKey]
	if !ok {
		return ImageGenerationResult{}, fmt.Errorf("%w: %q", moderr.ErrNoMatchingModel, modelKey)
	}
	c, err := r.client(mc.Provider)
	if err != nil {
		return ImageGenerationResult{}, err
	}
	params.Model = mc.CoreModel()
	start := time.Now()
	res, err := c.GenerateImage(ctx, params)
	r.logCall(mc, modelKey, nil, time.Since(start), err, false)
	return res, err
}

func (r *Router) prepare(modelKey string, params *TextGenerationParams) (config.ModelConfig, core.Client, error) {
	mc, err := r.selectModel(modelKey, *params)
	if err != nil {
		return config.ModelConfig{}, nil, err
	}
	c, err := r.client(mc.Provider)
	if err != nil {
		return config.ModelConfig{}, nil, err
	}
	params.Model = mc.CoreModel()
	return mc, c, nil
}

func (r *Router) selectModel(modelKey string, params TextGenerationParams) (config.ModelConfig, error) {
	mc, ok := r.cfg.Models[modelKey]
	if !ok {
		return config.ModelConfig{}, fmt.Errorf("%w: %q", moderr.ErrNoMatchingModel, modelKey)
	}
	if len(params.Tools) > 0 && !mc.CoreModel().HasAbility(core.AbilityTool) {
		return config.ModelConfig{}, fmt.Errorf("%w: %q does not support tools", moderr.ErrNoMatchingModel, modelKey)
	}
	return mc, nil
}

func (r *Router) client(provider string) (core.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[provider]; ok {
		return c, nil
	}
	if _, ok := r.cfg.Providers[provider]; !ok {
		return nil, fmt.Errorf("%w: %q", moderr.ErrUnknownProvider, provider)
	}
	load := func(ctx context.Context) (config.ProviderConfig, error) {
		return r.settings(ctx, provider)
	}
	c, err := provfactory.NewProviderClient(r.cfg.ProviderKind(provider), load, r.deps)
	if err != nil {
		return nil, err
	}
	r.clients[provider] = c
	return c, nil
}

func (r *Router) staticSettings(_ context.Context, provider string) (config.ProviderConfig, error) {
	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return config.ProviderConfig{}, fmt.Errorf("%w: %q", moderr.ErrUnknownProvider, provider)
	}
	return pc, nil
}

func (r *Router) logCall(mc config.ModelConfig, modelKey string, usage *TokenUsage, latency time.Duration, err error, stream bool) {
	var u TokenUsage
	if usage != nil {
		u = *usage
	}
	attrs := []any{
		slog.String("provider", mc.Provider),
		slog.String("model", mc.Model),
		slog.String("model_key", modelKey),
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens),
		slog.Int("cached_tokens", u.CachedTokens),
		slog.Int("total_tokens", u.TotalTokens),
		slog.Duration("latency_ms", latency),
		slog.Bool("error", err != nil),
	}
	if stream {
		attrs = append(attrs, slog.Bool("stream", true))
	}
	r.logger.Info("llm call", attrs...)
}
