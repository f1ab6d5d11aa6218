package claude

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/transport"
)

// contentBlock covers both full content blocks and streaming deltas.
type contentBlock struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	Thinking    string          `json:"thinking"`
	Signature   string          `json:"signature"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Input       json.RawMessage `json:"input"`
	PartialJSON string          `json:"partial_json"`
	Citations   []citation      `json:"citations"`
	Citation    *citation       `json:"citation"`
}

type citation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

type messageResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *usage         `json:"usage"`
}

// parseTokenUsage maps Anthropic usage. The vendor never reports a total.
func parseTokenUsage(u usage) core.TokenUsage {
	return core.TokenUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		CachedTokens:     u.CacheReadInputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

// parseContentBlocks converts content blocks, or the deltas of a streaming
// event, into parts. Server tool blocks are ignored.
func parseContentBlocks(blocks []contentBlock, now time.Time) ([]core.UIMessagePart, []core.UIMessageAnnotation, error) {
	var parts []core.UIMessagePart
	var annotations []core.UIMessageAnnotation
	addCitation := func(c citation) {
		if c.Type == "web_search_result_location" && c.URL != "" {
			annotations = append(annotations, core.URLCitation{Title: c.Title, URL: c.URL})
		}
	}
	for _, b := range blocks {
		switch b.Type {
		case "text", "text_delta":
			parts = append(parts, core.TextPart{Text: b.Text})
			for _, c := range b.Citations {
				addCitation(c)
			}
		case "citations_delta":
			if b.Citation != nil {
				addCitation(*b.Citation)
			}
		case "thinking", "thinking_delta", "signature_delta":
			parts = append(parts, core.ReasoningPart{
				Reasoning: b.Thinking,
				CreatedAt: now,
				Metadata:  core.Metadata(nil).With(core.MetaSignature, b.Signature),
			})
		case "redacted_thinking":
			return nil, nil, fmt.Errorf("anthropic %s: %w", b.Type, moderr.ErrUnsupportedContent)
		case "tool_use":
			parts = append(parts, core.ToolCallPart{
				ToolCallID: b.ID,
				ToolName:   b.Name,
				Arguments:  string(b.Input),
			})
		case "input_json_delta":
			parts = append(parts, core.ToolCallPart{Arguments: b.PartialJSON})
		}
	}
	return parts, annotations, nil
}

func (p *Provider) parseMessage(raw []byte) (core.MessageChunk, error) {
	var resp messageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.MessageChunk{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	parts, annotations, err := parseContentBlocks(resp.Content, p.now())
	if err != nil {
		return core.MessageChunk{}, err
	}
	chunk := core.MessageChunk{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []core.UIMessageChoice{{
			Message:      &core.UIMessage{Role: core.RoleAssistant, Parts: parts, Annotations: annotations},
			FinishReason: resp.StopReason,
		}},
	}
	if resp.Usage != nil {
		u := parseTokenUsage(*resp.Usage)
		chunk.Usage = &u
	}
	return chunk, nil
}

// streamDecoder keeps the message id and model from message_start so
// later chunks carry them. Deltas for server tool blocks are dropped along
// with the blocks themselves.
type streamDecoder struct {
	now     func() time.Time
	id      string
	model   string
	ignored map[int]bool
}

type streamEvent struct {
	Type         string           `json:"type"`
	Index        int              `json:"index"`
	Message      *messageResponse `json:"message"`
	ContentBlock *contentBlock    `json:"content_block"`
	Delta        json.RawMessage  `json:"delta"`
	Usage        *usage           `json:"usage"`
}

func (d *streamDecoder) decode(ev core.Event) (*core.MessageChunk, bool, error) {
	data := []byte(ev.Data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	kind := ev.Type
	if kind == "" || kind == "message" {
		kind = gjson.GetBytes(data, "type").String()
	}

	switch kind {
	case "ping", "content_block_stop":
		return nil, false, nil
	case "message_stop":
		return nil, true, nil
	case "error":
		if ae := transport.ParseError(data, providerName); ae != nil {
			return nil, false, ae
		}
		return nil, false, &moderr.APIError{Provider: providerName, Message: ev.Data}
	case "message_start", "content_block_start", "content_block_delta", "message_delta":
	default:
		return nil, false, nil
	}

	var se streamEvent
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, false, fmt.Errorf("decode anthropic %s event: %w", kind, err)
	}

	switch kind {
	case "message_start":
		if se.Message == nil {
			return nil, false, nil
		}
		d.id, d.model = se.Message.ID, se.Message.Model
		if se.Message.Usage == nil {
			return nil, false, nil
		}
		u := parseTokenUsage(*se.Message.Usage)
		return d.chunk(nil, &u), false, nil

	case "message_delta":
		var delta struct {
			StopReason string `json:"stop_reason"`
		}
		if len(se.Delta) > 0 {
			if err := json.Unmarshal(se.Delta, &delta); err != nil {
				return nil, false, fmt.Errorf("decode anthropic message_delta: %w", err)
			}
		}
		var u *core.TokenUsage
		if se.Usage != nil {
			parsed := parseTokenUsage(*se.Usage)
			u = &parsed
		}
		return d.chunk(&core.UIMessageChoice{
			Delta:        &core.UIMessage{Role: core.RoleAssistant},
			FinishReason: delta.StopReason,
		}, u), false, nil
	}

	// content_block_start and content_block_delta: the block and the delta
	// are parsed together as one synthetic block list.
	if d.ignored[se.Index] {
		return nil, false, nil
	}
	var blocks []contentBlock
	if se.ContentBlock != nil {
		cb := *se.ContentBlock
		if !knownBlock(cb.Type) {
			if d.ignored == nil {
				d.ignored = make(map[int]bool)
			}
			d.ignored[se.Index] = true
			return nil, false, nil
		}
		if cb.Type == "tool_use" && isEmptyObject(cb.Input) {
			cb.Input = nil
		}
		blocks = append(blocks, cb)
	}
	if len(se.Delta) > 0 {
		var db contentBlock
		if err := json.Unmarshal(se.Delta, &db); err != nil {
			return nil, false, fmt.Errorf("decode anthropic %s delta: %w", kind, err)
		}
		blocks = append(blocks, db)
	}
	parts, annotations, err := parseContentBlocks(blocks, d.now())
	if err != nil {
		return nil, false, err
	}
	if len(parts) == 0 && len(annotations) == 0 {
		return nil, false, nil
	}
	return d.chunk(&core.UIMessageChoice{
		Delta: &core.UIMessage{Role: core.RoleAssistant, Parts: parts, Annotations: annotations},
	}, nil), false, nil
}

func (d *streamDecoder) chunk(choice *core.UIMessageChoice, usage *core.TokenUsage) *core.MessageChunk {
	c := &core.MessageChunk{ID: d.id, Model: d.model, Usage: usage}
	if choice != nil {
		c.Choices = []core.UIMessageChoice{*choice}
	}
	return c
}

func knownBlock(kind string) bool {
	switch kind {
	case "text", "thinking", "redacted_thinking", "tool_use":
		return true
	}
	return false
}

func isEmptyObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("{}"))
}
