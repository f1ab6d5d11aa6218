package google

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/transport"
)

// draftImageNote replaces images the model produced while thinking.
const draftImageNote = "[Draft Image]"

type generateResponse struct {
	ResponseID    string         `json:"responseId"`
	ModelVersion  string         `json:"modelVersion"`
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Index             int                `json:"index"`
	Content           *candidateContent  `json:"content"`
	FinishReason      string             `json:"finishReason"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
}

type candidateContent struct {
	Role  string            `json:"role"`
	Parts []json.RawMessage `json:"parts"`
}

type groundingMetadata struct {
	GroundingChunks []struct {
		Web *struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web"`
	} `json:"groundingChunks"`
}

type usageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

// parseUsageMeta counts thought tokens as completion tokens. The vendor
// total is used when reported and derived otherwise.
func parseUsageMeta(u usageMetadata) core.TokenUsage {
	out := core.TokenUsage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount + u.ThoughtsTokenCount,
		CachedTokens:     u.CachedContentTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

type partKind int

const (
	partUnknown partKind = iota
	partText
	partFunctionCall
	partInlineData
)

// wirePart is a content part as sent by the vendor. Exactly one payload
// field is expected; kind reports which, by precedence.
type wirePart struct {
	Text             *string       `json:"text"`
	Thought          bool          `json:"thought"`
	ThoughtSignature string        `json:"thoughtSignature"`
	FunctionCall     *functionCall `json:"functionCall"`
	InlineData       *inlineData   `json:"inlineData"`
}

type functionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (w wirePart) kind() partKind {
	switch {
	case w.Text != nil:
		return partText
	case w.FunctionCall != nil:
		return partFunctionCall
	case w.InlineData != nil:
		return partInlineData
	}
	return partUnknown
}

func newToolCallID() string { return "call_" + uuid.NewString() }

func (p *Provider) parsePart(raw json.RawMessage, now time.Time) (core.UIMessagePart, error) {
	var w wirePart
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode google part: %w", err)
	}
	sig := core.Metadata(nil).With(core.MetaThoughtSignature, w.ThoughtSignature)

	switch w.kind() {
	case partText:
		if w.Thought {
			return core.ReasoningPart{Reasoning: *w.Text, CreatedAt: now, Metadata: sig}, nil
		}
		return core.TextPart{Text: *w.Text, Metadata: sig}, nil

	case partFunctionCall:
		fc := w.FunctionCall
		id := fc.ID
		if id == "" {
			id = p.newID()
		}
		args := "{}"
		if len(bytes.TrimSpace(fc.Args)) > 0 {
			var buf bytes.Buffer
			if err := json.Compact(&buf, fc.Args); err != nil {
				return nil, fmt.Errorf("decode google function call args: %w", err)
			}
			args = buf.String()
		}
		return core.ToolCallPart{ToolCallID: id, ToolName: fc.Name, Arguments: args, Metadata: sig}, nil

	case partInlineData:
		if w.Thought {
			return core.ReasoningPart{Reasoning: draftImageNote, CreatedAt: now, Metadata: sig}, nil
		}
		mimeType := w.InlineData.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return core.ImagePart{
			URL:      "data:" + mimeType + ";base64," + w.InlineData.Data,
			Metadata: sig,
		}, nil
	}
	return nil, fmt.Errorf("google part with fields [%s]: %w", fieldNames(raw), moderr.ErrUnknownPart)
}

func fieldNames(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return ""
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

func parseGrounding(g *groundingMetadata) []core.UIMessageAnnotation {
	if g == nil {
		return nil
	}
	var out []core.UIMessageAnnotation
	for _, c := range g.GroundingChunks {
		if c.Web != nil && c.Web.URI != "" {
			out = append(out, core.URLCitation{Title: c.Web.Title, URL: c.Web.URI})
		}
	}
	return out
}

func (p *Provider) parseCandidate(c candidate, now time.Time) (*core.UIMessage, error) {
	msg := &core.UIMessage{Role: core.RoleAssistant, Annotations: parseGrounding(c.GroundingMetadata)}
	if c.Content == nil {
		return msg, nil
	}
	for _, raw := range c.Content.Parts {
		part, err := p.parsePart(raw, now)
		if err != nil {
			return nil, err
		}
		msg.Parts = append(msg.Parts, part)
	}
	return msg, nil
}

// parseResponse turns every candidate into a choice. In streaming mode
// candidates without content are skipped and choices carry deltas.
func (p *Provider) parseResponse(resp generateResponse, streaming bool) (core.MessageChunk, error) {
	chunk := core.MessageChunk{ID: resp.ResponseID, Model: resp.ModelVersion}
	now := p.now()
	for i, c := range resp.Candidates {
		msg, err := p.parseCandidate(c, now)
		if err != nil {
			return core.MessageChunk{}, err
		}
		index := c.Index
		if index == 0 {
			index = i
		}
		choice := core.UIMessageChoice{Index: index, FinishReason: c.FinishReason}
		if streaming {
			if len(msg.Parts) == 0 && len(msg.Annotations) == 0 {
				continue
			}
			choice.Delta = msg
		} else {
			choice.Message = msg
		}
		chunk.Choices = append(chunk.Choices, choice)
	}
	if resp.UsageMetadata != nil {
		u := parseUsageMeta(*resp.UsageMetadata)
		chunk.Usage = &u
	}
	return chunk, nil
}

// decodeEvent handles one streamed event. Each event carries a complete
// response object; the stream ends when the server closes it.
func (p *Provider) decodeEvent(ev core.Event) (*core.MessageChunk, bool, error) {
	data := bytes.TrimSpace([]byte(ev.Data))
	if len(data) == 0 {
		return nil, false, nil
	}
	if string(data) == transport.DoneEvent {
		return nil, true, nil
	}
	if ae := transport.ParseError(data, providerName); ae != nil {
		return nil, false, ae
	}
	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("decode google stream event: %w", err)
	}
	chunk, err := p.parseResponse(resp, true)
	if err != nil {
		return nil, false, err
	}
	if len(chunk.Choices) == 0 && chunk.Usage == nil {
		return nil, false, nil
	}
	return &chunk, false, nil
}
