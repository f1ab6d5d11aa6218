package core

import "context"

// Provider is implemented by each vendor adapter. S is the adapter's settings
// type; settings are passed on every call and never cached by the adapter.
type Provider[S any] interface {
	ListModels(ctx context.Context, settings S) ([]Model, error)
	GenerateText(ctx context.Context, settings S, messages []UIMessage, params TextGenerationParams) (MessageChunk, error)
	StreamText(ctx context.Context, settings S, messages []UIMessage, params TextGenerationParams) (*Stream, error)
	GenerateImage(ctx context.Context, settings S, params ImageGenerationParams) (ImageGenerationResult, error)
}

// Client is a Provider with its settings source bound.
type Client interface {
	ListModels(ctx context.Context) ([]Model, error)
	GenerateText(ctx context.Context, messages []UIMessage, params TextGenerationParams) (MessageChunk, error)
	StreamText(ctx context.Context, messages []UIMessage, params TextGenerationParams) (*Stream, error)
	GenerateImage(ctx context.Context, params ImageGenerationParams) (ImageGenerationResult, error)
}

// SettingsFunc loads the current settings for a provider.
type SettingsFunc[S any] func(ctx context.Context) (S, error)

// StaticSettings returns a SettingsFunc that always yields s.
func StaticSettings[S any](s S) SettingsFunc[S] {
	return func(context.Context) (S, error) { return s, nil }
}

// Bind returns a Client that loads settings before each call.
func Bind[S any](p Provider[S], load SettingsFunc[S]) Client {
	return &boundClient[S]{provider: p, load: load}
}

type boundClient[S any] struct {
	provider Provider[S]
	load     SettingsFunc[S]
}

func (b *boundClient[S]) ListModels(ctx context.Context) ([]Model, error) {
	s, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.provider.ListModels(ctx, s)
}

func (b *boundClient[S]) GenerateText(ctx context.Context, messages []UIMessage, params TextGenerationParams) (MessageChunk, error) {
	s, err := b.load(ctx)
	if err != nil {
		return MessageChunk{}, err
	}
	return b.provider.GenerateText(ctx, s, messages, params)
}

func (b *boundClient[S]) StreamText(ctx context.Context, messages []UIMessage, params TextGenerationParams) (*Stream, error) {
	s, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.provider.StreamText(ctx, s, messages, params)
}

func (b *boundClient[S]) GenerateImage(ctx context.Context, params ImageGenerationParams) (ImageGenerationResult, error) {
	s, err := b.load(ctx)
	if err != nil {
		return ImageGenerationResult{}, err
	}
	return b.provider.GenerateImage(ctx, s, params)
}
