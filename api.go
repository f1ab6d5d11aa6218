// Package llmbridge talks to Anthropic Claude and Google Gemini/Vertex through
// one message model. Configure providers and models in config.yaml, build a
// Router and address models by their configured key.
package llmbridge

import (
	"encoding/json"
	"fmt"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/util"
)

type (
	Role                  = core.Role
	Metadata              = core.Metadata
	UIMessage             = core.UIMessage
	UIMessagePart         = core.UIMessagePart
	TextPart              = core.TextPart
	ImagePart             = core.ImagePart
	VideoPart             = core.VideoPart
	AudioPart             = core.AudioPart
	DocumentPart          = core.DocumentPart
	ToolCallPart          = core.ToolCallPart
	ToolResultPart        = core.ToolResultPart
	ReasoningPart         = core.ReasoningPart
	UIMessageAnnotation   = core.UIMessageAnnotation
	URLCitation           = core.URLCitation
	MessageChunk          = core.MessageChunk
	UIMessageChoice       = core.UIMessageChoice
	TokenUsage            = core.TokenUsage
	Model                 = core.Model
	Tool                  = core.Tool
	CustomHeader          = core.CustomHeader
	CustomBody            = core.CustomBody
	TextGenerationParams  = core.TextGenerationParams
	ImageGenerationParams = core.ImageGenerationParams
	ImageGenerationItem   = core.ImageGenerationItem
	ImageGenerationResult = core.ImageGenerationResult
)

const (
	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleTool      = core.RoleTool
)

// TextMessage builds a message with a single text part.
func TextMessage(role Role, text string) UIMessage { return core.TextMessage(role, text) }

// NewTool describes a tool whose arguments decode into T. The parameter
// schema is reflected from T's json tags.
func NewTool[T any](name, description string) (Tool, error) {
	schema, err := util.GenerateJSONSchema(new(T))
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return Tool{Name: name, Description: description, Parameters: schema}, nil
}

// ParseToolArguments decodes a tool call's arguments into T, repairing
// slightly malformed JSON when needed.
func ParseToolArguments[T any](call ToolCallPart) (T, error) {
	var out T
	raw := call.Arguments
	if raw == "" {
		raw = "{}"
	}
	err := json.Unmarshal([]byte(raw), &out)
	if err == nil {
		return out, nil
	}
	if repaired, ok := util.RepairJSON(raw); ok {
		var fixed T
		if err2 := json.Unmarshal([]byte(repaired), &fixed); err2 == nil {
			return fixed, nil
		}
	}
	return out, fmt.Errorf("tool %s arguments: %w", call.ToolName, err)
}

// ToolResult answers a tool call with v encoded as JSON.
func ToolResult(call ToolCallPart, v any) (ToolResultPart, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ToolResultPart{}, fmt.Errorf("tool %s result: %w", call.ToolName, err)
	}
	return ToolResultPart{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Content:    b,
		Arguments:  util.ToolArguments(call.Arguments),
	}, nil
}
