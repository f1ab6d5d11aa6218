package claude

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/media"
	"github.com/lizzyg/llmbridge/internal/util"
)

const defaultMaxTokens = 4096

type messagesRequest struct {
	Model       string           `json:"model"`
	System      []map[string]any `json:"system,omitempty"`
	Messages    []message        `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream,omitempty"`
	Temperature *float32         `json:"temperature,omitempty"`
	TopP        *float32         `json:"top_p,omitempty"`
	Thinking    map[string]any   `json:"thinking,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

type message struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

var webSearchTool = map[string]any{
	"type":     "web_search_20250305",
	"name":     "web_search",
	"max_uses": 5,
}

func (p *Provider) buildRequest(messages []core.UIMessage, params core.TextGenerationParams, stream bool) ([]byte, error) {
	req := messagesRequest{
		Model:     params.Model.ID,
		MaxTokens: defaultMaxTokens,
		Stream:    stream,
		TopP:      params.TopP,
	}
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		req.MaxTokens = *params.MaxTokens
	}

	// Anthropic rejects temperature while thinking is enabled.
	budget := params.ThinkingBudget
	level := core.ReasoningLevelFromBudget(budget)
	thinking := params.Model.HasAbility(core.AbilityReasoning)
	if !thinking || level == core.ReasoningOff {
		req.Temperature = params.Temperature
	}
	if thinking {
		switch level {
		case core.ReasoningOff:
			req.Thinking = map[string]any{"type": "disabled"}
		case core.ReasoningAuto:
			req.Thinking = map[string]any{"type": "enabled"}
		default:
			req.Thinking = map[string]any{"type": "enabled", "budget_tokens": *budget}
			if req.MaxTokens <= *budget {
				req.MaxTokens = *budget + defaultMaxTokens
			}
		}
	}

	req.System, req.Messages = p.buildMessages(messages)

	if params.Model.HasAbility(core.AbilityTool) {
		for _, t := range params.Tools {
			schema := t.Parameters
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			req.Tools = append(req.Tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schema,
			})
		}
	}
	if params.Model.HasTool(core.BuiltInSearch) && !params.ExternalSearch {
		req.Tools = append(req.Tools, webSearchTool)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode anthropic request: %w", err)
	}
	return util.MergeCustomBody(body, params.CustomBody)
}

// buildMessages splits system text out of the conversation. Each tool
// result becomes its own user message.
func (p *Provider) buildMessages(messages []core.UIMessage) ([]map[string]any, []message) {
	var system []map[string]any
	var out []message
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			for _, part := range m.Parts {
				if t, ok := part.(core.TextPart); ok && t.Text != "" {
					system = append(system, textBlock(t.Text))
				}
			}
		case core.RoleTool:
			for _, part := range m.Parts {
				r, ok := part.(core.ToolResultPart)
				if !ok {
					continue
				}
				out = append(out, message{Role: "user", Content: []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": r.ToolCallID,
					"content":     string(r.Content),
				}}})
			}
		case core.RoleUser, core.RoleAssistant:
			blocks := p.buildBlocks(m)
			if len(blocks) > 0 {
				out = append(out, message{Role: string(m.Role), Content: blocks})
			}
		}
	}
	return system, out
}

func (p *Provider) buildBlocks(m core.UIMessage) []map[string]any {
	var blocks []map[string]any
	for _, part := range m.Parts {
		switch v := part.(type) {
		case core.TextPart:
			if v.Text == "" && m.Role == core.RoleAssistant {
				continue
			}
			blocks = append(blocks, textBlock(v.Text))
		case core.ImagePart:
			blocks = append(blocks, p.imageBlock(v.URL))
		case core.DocumentPart:
			if b, ok := p.documentBlock(v); ok {
				blocks = append(blocks, b)
			}
		case core.ReasoningPart:
			if m.Role != core.RoleAssistant {
				continue
			}
			b := map[string]any{"type": "thinking", "thinking": v.Reasoning}
			if sig := v.Metadata.Get(core.MetaSignature); sig != "" {
				b["signature"] = sig
			}
			blocks = append(blocks, b)
		case core.ToolCallPart:
			if m.Role != core.RoleAssistant {
				continue
			}
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    v.ToolCallID,
				"name":  v.ToolName,
				"input": util.ToolArguments(v.Arguments),
			})
		case core.VideoPart, core.AudioPart:
			p.logger.Debug("anthropic: skipping unsupported media part", slog.String("role", string(m.Role)))
		}
	}
	return blocks
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func (p *Provider) imageBlock(ref string) map[string]any {
	if media.IsRemote(ref) {
		return map[string]any{"type": "image", "source": map[string]any{"type": "url", "url": ref}}
	}
	enc, err := media.Encode(ref, "image/png")
	if err != nil {
		p.logger.Warn("anthropic: image encoding failed, sending empty text instead", slog.String("error", err.Error()))
		return textBlock("")
	}
	return map[string]any{"type": "image", "source": map[string]any{
		"type":       "base64",
		"media_type": enc.MimeType,
		"data":       enc.Data,
	}}
}

func (p *Provider) documentBlock(d core.DocumentPart) (map[string]any, bool) {
	mimeType := d.MimeType
	if mimeType == "" {
		mimeType = media.MimeFromName(d.FileName, media.MimeFromName(d.URL, ""))
	}
	if mimeType != "application/pdf" {
		p.logger.Debug("anthropic: skipping non-pdf document", slog.String("file", d.FileName), slog.String("mime", mimeType))
		return nil, false
	}
	if media.IsRemote(d.URL) {
		return map[string]any{"type": "document", "source": map[string]any{"type": "url", "url": d.URL}}, true
	}
	enc, err := media.Encode(d.URL, mimeType)
	if err != nil {
		p.logger.Warn("anthropic: document encoding failed, sending empty text instead", slog.String("error", err.Error()))
		return textBlock(""), true
	}
	return map[string]any{"type": "document", "source": map[string]any{
		"type":       "base64",
		"media_type": "application/pdf",
		"data":       enc.Data,
	}}, true
}
