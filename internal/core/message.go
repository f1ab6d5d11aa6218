package core

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Metadata keys understood by the adapters.
const (
	// MetaSignature carries an Anthropic thinking signature. It must be sent
	// back untouched when the reasoning block is replayed.
	MetaSignature = "signature"
	// MetaThoughtSignature carries Gemini's opaque thought signature.
	MetaThoughtSignature = "thoughtSignature"
)

// Metadata holds vendor pass-through values attached to a part.
type Metadata map[string]string

// Get is safe on a nil map.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// With returns m with key set, allocating when m is nil. Empty values are not stored.
func (m Metadata) With(key, value string) Metadata {
	if value == "" {
		return m
	}
	if m == nil {
		m = Metadata{}
	}
	m[key] = value
	return m
}

// UIMessage is one turn of a conversation in vendor-neutral form.
type UIMessage struct {
	Role        Role
	Parts       []UIMessagePart
	Annotations []UIMessageAnnotation
}

// TextMessage builds a message with a single text part.
func TextMessage(role Role, text string) UIMessage {
	return UIMessage{Role: role, Parts: []UIMessagePart{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (m UIMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool call parts in order.
func (m UIMessage) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			out = append(out, tc)
		}
	}
	return out
}

// UIMessagePart is implemented by the part variants below and nothing else.
type UIMessagePart interface {
	isPart()
}

type TextPart struct {
	Text     string
	Metadata Metadata
}

// ImagePart references an image by http(s) URL, data: URL, file:// URL or local path.
type ImagePart struct {
	URL      string
	Metadata Metadata
}

type VideoPart struct {
	URL string
}

type AudioPart struct {
	URL string
}

type DocumentPart struct {
	URL      string
	FileName string
	MimeType string
}

// ToolCallPart is a model's request to invoke a tool. Arguments is the JSON
// encoded input; for streamed fragments it is a partial JSON string and both
// ToolCallID and ToolName are empty.
type ToolCallPart struct {
	ToolCallID string
	ToolName   string
	Arguments  string
	Metadata   Metadata
}

type ToolResultPart struct {
	ToolCallID string
	ToolName   string
	Content    json.RawMessage
	Arguments  json.RawMessage
}

type ReasoningPart struct {
	Reasoning  string
	CreatedAt  time.Time
	FinishedAt time.Time
	Metadata   Metadata
}

func (TextPart) isPart()       {}
func (ImagePart) isPart()      {}
func (VideoPart) isPart()      {}
func (AudioPart) isPart()      {}
func (DocumentPart) isPart()   {}
func (ToolCallPart) isPart()   {}
func (ToolResultPart) isPart() {}
func (ReasoningPart) isPart()  {}

// UIMessageAnnotation is attached to a message independently of its parts.
type UIMessageAnnotation interface {
	isAnnotation()
}

// URLCitation is a source reported by search grounding.
type URLCitation struct {
	Title string
	URL   string
}

func (URLCitation) isAnnotation() {}

// MessageChunk is one vendor response, or one streaming event.
type MessageChunk struct {
	ID      string
	Model   string
	Choices []UIMessageChoice
	Usage   *TokenUsage
}

// UIMessageChoice carries either a complete Message (blocking calls) or a
// Delta (streaming), never both.
type UIMessageChoice struct {
	Index        int
	Delta        *UIMessage
	Message      *UIMessage
	FinishReason string
}

// TokenUsage is reported in tokens. TotalTokens is derived when the vendor omits it.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	TotalTokens      int
}

// Merge folds a later usage report into u. Vendors repeat cumulative counts
// across events, so each field keeps the larger value. Events may report
// prompt and completion counts separately, so the total is never less than
// their sum.
func (u TokenUsage) Merge(other TokenUsage) TokenUsage {
	m := TokenUsage{
		PromptTokens:     max(u.PromptTokens, other.PromptTokens),
		CompletionTokens: max(u.CompletionTokens, other.CompletionTokens),
		CachedTokens:     max(u.CachedTokens, other.CachedTokens),
		TotalTokens:      max(u.TotalTokens, other.TotalTokens),
	}
	m.TotalTokens = max(m.TotalTokens, m.PromptTokens+m.CompletionTokens)
	return m
}
