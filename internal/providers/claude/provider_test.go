package claude

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

func newServerProvider(t *testing.T, handler http.HandlerFunc) (*Provider, Settings) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRetryConfig(retry.NoRetry()),
	)
	return p, Settings{BaseURL: srv.URL + "/v1/", APIKey: "test-key"}
}

func TestGenerateText(t *testing.T) {
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("content-type"))
		assert.Equal(t, "prompt-caching-2024-07-31", r.Header.Get("anthropic-beta"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "claude-sonnet-4-5", gjson.GetBytes(body, "model").String())

		io.WriteString(w, `{"id":"msg_1","model":"claude-sonnet-4-5","content":[{"type":"text","text":"Hello!"}],"stop_reason":"end_turn","usage":{"input_tokens":8,"output_tokens":2}}`)
	})

	chunk, err := p.GenerateText(context.Background(), s, []core.UIMessage{core.TextMessage(core.RoleUser, "Hi")}, core.TextGenerationParams{
		Model:         sonnet,
		CustomHeaders: []core.CustomHeader{{Name: "anthropic-beta", Value: "prompt-caching-2024-07-31"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", chunk.Choices[0].Message.Text())
	assert.Equal(t, 10, chunk.Usage.TotalTokens)
}

func TestGenerateTextVendorError(t *testing.T) {
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: too large"}}`)
	})

	_, err := p.GenerateText(context.Background(), s, []core.UIMessage{core.TextMessage(core.RoleUser, "Hi")}, core.TextGenerationParams{Model: sonnet})
	ae, ok := moderr.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)
	assert.Equal(t, "invalid_request_error", ae.Type)
	assert.Equal(t, "max_tokens: too large", ae.Message)
	assert.Contains(t, ae.Body, "max_tokens: too large")
}

func TestStreamTextEndToEnd(t *testing.T) {
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())
		assert.Equal(t, "text/event-stream", r.Header.Get("accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, strings.Join([]string{
			"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_s\",\"model\":\"claude-sonnet-4-5\",\"usage\":{\"input_tokens\":5,\"output_tokens\":1}}}\n",
			"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n",
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n",
			"event: content_block_stop\ndata: {\"type\":\"content_block_stop\",\"index\":0}\n",
			"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":3}}\n",
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n",
		}, "\n"))
	})

	stream, err := p.StreamText(context.Background(), s, []core.UIMessage{core.TextMessage(core.RoleUser, "Hi")}, core.TextGenerationParams{Model: sonnet})
	require.NoError(t, err)
	chunks, err := core.Collect(stream)
	require.NoError(t, err)

	var text strings.Builder
	for _, c := range chunks {
		for _, ch := range c.Choices {
			text.WriteString(ch.Delta.Text())
		}
	}
	assert.Equal(t, "Hello", text.String())
	assert.Len(t, chunks, 5)
}

func TestStreamTextCancelClosesConnection(t *testing.T) {
	released := make(chan struct{})
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"a\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.StreamText(ctx, s, []core.UIMessage{core.TextMessage(core.RoleUser, "Hi")}, core.TextGenerationParams{Model: sonnet})
	require.NoError(t, err)
	require.True(t, stream.Next())

	cancel()
	<-released
	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), context.Canceled)
	assert.False(t, stream.Next())
}

func TestListModelsPaging(t *testing.T) {
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		switch r.URL.Query().Get("after_id") {
		case "":
			io.WriteString(w, `{"data":[{"id":"claude-a","display_name":"Claude A"}],"has_more":true,"last_id":"claude-a"}`)
		case "claude-a":
			io.WriteString(w, `{"data":[{"id":"claude-b"}],"has_more":false,"last_id":"claude-b"}`)
		default:
			t.Errorf("unexpected page %q", r.URL.RawQuery)
		}
	})

	models, err := p.ListModels(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "Claude A", models[0].DisplayName)
	assert.Equal(t, "claude-b", models[1].DisplayName)
	assert.Equal(t, core.ModelTypeChat, models[1].Type)
}

func TestKeyRotation(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	p, s := newServerProvider(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("x-api-key"))
		mu.Unlock()
		io.WriteString(w, `{"data":[],"has_more":false}`)
	})
	s.APIKey = "k1, k2"

	for range 4 {
		_, err := p.ListModels(context.Background(), s)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"k1", "k2", "k1", "k2"}, seen)
}

func TestGenerateImageUnsupported(t *testing.T) {
	_, err := newTestProvider().GenerateImage(context.Background(), Settings{}, core.ImageGenerationParams{Prompt: "cat"})
	assert.ErrorIs(t, err, moderr.ErrUnsupportedOperation)
}
