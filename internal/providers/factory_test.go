package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/config"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

func TestNewProviderClientUnknownKind(t *testing.T) {
	_, err := NewProviderClient("openai", nil, Deps{})
	assert.ErrorIs(t, err, moderr.ErrUnknownProvider)
}

func TestSettingsLoadedPerCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		io.WriteString(w, `{"data":[{"id":"`+r.Header.Get("x-api-key")+`"}],"has_more":false}`)
	}))
	defer srv.Close()

	var loads atomic.Int32
	load := func(context.Context) (config.ProviderConfig, error) {
		n := loads.Add(1)
		return config.ProviderConfig{BaseURL: srv.URL + "/v1", APIKey: map[int32]string{1: "first", 2: "second"}[n]}, nil
	}
	noRetry := retry.NoRetry()
	c, err := NewProviderClient(config.KindClaude, load, Deps{Retry: &noRetry})
	require.NoError(t, err)

	for _, want := range []string{"first", "second"} {
		models, err := c.ListModels(context.Background())
		require.NoError(t, err)
		require.Len(t, models, 1)
		assert.Equal(t, want, models[0].ID)
	}
}

func TestSettingsLoadError(t *testing.T) {
	boom := errors.New("settings unavailable")
	c, err := NewProviderClient(config.KindGoogle, func(context.Context) (config.ProviderConfig, error) {
		return config.ProviderConfig{}, boom
	}, Deps{})
	require.NoError(t, err)
	_, err = c.ListModels(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestGoogleSettings(t *testing.T) {
	s := GoogleSettings(config.ProviderConfig{
		APIKey: "k",
		Vertex: config.VertexConfig{Enabled: true, ProjectID: "p", Location: "global", ServiceAccountEmail: "e", PrivateKey: "pk"},
	})
	assert.True(t, s.Vertex)
	assert.Equal(t, "p", s.ProjectID)
	assert.Equal(t, "global", s.Location)
	assert.Equal(t, "e", s.ServiceAccountEmail)
	assert.Equal(t, "pk", s.PrivateKey)
}
