// Package providers builds bound vendor clients from configuration.
package providers

import (
	"context"
	"fmt"
	"log/slog"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/keyroulette"
	"github.com/lizzyg/llmbridge/internal/providers/claude"
	"github.com/lizzyg/llmbridge/internal/providers/google"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
	"github.com/lizzyg/llmbridge/internal/transport"
)

// SettingsLoader returns the current configuration of one provider.
type SettingsLoader func(ctx context.Context) (config.ProviderConfig, error)

// Deps are shared by every client the factory builds. Nil fields get defaults.
type Deps struct {
	HTTP   *transport.Client
	Logger *slog.Logger
	Retry  *retry.Config
	Keys   *keyroulette.Roulette
	Tokens *google.TokenCache
}

// NewProviderClient returns a client for kind whose settings are read from
// load before every call.
func NewProviderClient(kind string, load SettingsLoader, d Deps) (core.Client, error) {
	switch kind {
	case config.KindClaude:
		var opts []claude.Option
		if d.HTTP != nil {
			opts = append(opts, claude.WithHTTPClient(d.HTTP))
		}
		if d.Logger != nil {
			opts = append(opts, claude.WithLogger(d.Logger))
		}
		if d.Retry != nil {
			opts = append(opts, claude.WithRetryConfig(*d.Retry))
		}
		if d.Keys != nil {
			opts = append(opts, claude.WithRoulette(d.Keys))
		}
		return core.Bind[claude.Settings](claude.New(opts...), func(ctx context.Context) (claude.Settings, error) {
			pc, err := load(ctx)
			if err != nil {
				return claude.Settings{}, err
			}
			return ClaudeSettings(pc), nil
		}), nil

	case config.KindGoogle:
		var opts []google.Option
		if d.HTTP != nil {
			opts = append(opts, google.WithHTTPClient(d.HTTP))
		}
		if d.Logger != nil {
			opts = append(opts, google.WithLogger(d.Logger))
		}
		if d.Retry != nil {
			opts = append(opts, google.WithRetryConfig(*d.Retry))
		}
		if d.Keys != nil {
			opts = append(opts, google.WithRoulette(d.Keys))
		}
		if d.Tokens != nil {
			opts = append(opts, google.WithTokenCache(d.Tokens))
		}
		return core.Bind[google.Settings](google.New(opts...), func(ctx context.Context) (google.Settings, error) {
			pc, err := load(ctx)
			if err != nil {
				return google.Settings{}, err
			}
			return GoogleSettings(pc), nil
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", moderr.ErrUnknownProvider, kind)
}

func ClaudeSettings(pc config.ProviderConfig) claude.Settings {
	return claude.Settings{BaseURL: pc.BaseURL, APIKey: pc.APIKey, Proxy: pc.Proxy}
}

func GoogleSettings(pc config.ProviderConfig) google.Settings {
	return google.Settings{
		BaseURL:             pc.BaseURL,
		APIKey:              pc.APIKey,
		Proxy:               pc.Proxy,
		Vertex:              pc.Vertex.Enabled,
		ProjectID:           pc.Vertex.ProjectID,
		Location:            pc.Vertex.Location,
		ServiceAccountEmail: pc.Vertex.ServiceAccountEmail,
		PrivateKey:          pc.Vertex.PrivateKey,
	}
}
