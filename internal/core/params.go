package core

import (
	"encoding/json"
	"slices"
)

type ModelType string

const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeImage     ModelType = "image"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

type Ability string

const (
	AbilityTool      Ability = "tool"
	AbilityReasoning Ability = "reasoning"
)

// BuiltInTool is a vendor-hosted tool enabled per model.
type BuiltInTool string

const (
	BuiltInSearch     BuiltInTool = "search"
	BuiltInURLContext BuiltInTool = "url_context"
)

// Model describes a vendor model as configured or as listed by the vendor.
type Model struct {
	ID               string
	DisplayName      string
	Type             ModelType
	InputModalities  []Modality
	OutputModalities []Modality
	Abilities        []Ability
	Tools            []BuiltInTool
}

func (m Model) HasAbility(a Ability) bool { return slices.Contains(m.Abilities, a) }
func (m Model) HasTool(t BuiltInTool) bool { return slices.Contains(m.Tools, t) }
func (m Model) OutputsModality(x Modality) bool { return slices.Contains(m.OutputModalities, x) }

// Tool is a caller-defined function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type CustomHeader struct {
	Name  string
	Value string
}

// CustomBody is merged into the generated request body. Object values are
// merged key by key into existing objects; any other value replaces what is there.
type CustomBody struct {
	Key   string
	Value json.RawMessage
}

type TextGenerationParams struct {
	Model       Model
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Tools       []Tool
	// ThinkingBudget nil means automatic, 0 disables reasoning.
	ThinkingBudget *int
	// ExternalSearch is set when another search provider serves this
	// conversation and the vendor's built-in search must not be added.
	ExternalSearch bool
	CustomHeaders  []CustomHeader
	CustomBody     []CustomBody
}

type ImageGenerationParams struct {
	Model          Model
	Prompt         string
	NumberOfImages int
	AspectRatio    string
	CustomHeaders  []CustomHeader
	CustomBody     []CustomBody
}

type ImageGenerationItem struct {
	Data     string // base64
	MimeType string
}

type ImageGenerationResult struct {
	Items []ImageGenerationItem
}

// ReasoningLevel is the discrete form of a thinking budget.
type ReasoningLevel string

const (
	ReasoningOff    ReasoningLevel = "off"
	ReasoningAuto   ReasoningLevel = "auto"
	ReasoningLow    ReasoningLevel = "low"
	ReasoningMedium ReasoningLevel = "medium"
	ReasoningHigh   ReasoningLevel = "high"
)

// Budget upper bounds for each level.
const (
	BudgetLow    = 1024
	BudgetMedium = 16000
	BudgetHigh   = 32000
)

// ReasoningLevelFromBudget maps a token budget to a level. A nil or negative
// budget is automatic.
func ReasoningLevelFromBudget(budget *int) ReasoningLevel {
	switch {
	case budget == nil || *budget < 0:
		return ReasoningAuto
	case *budget == 0:
		return ReasoningOff
	case *budget <= BudgetLow:
		return ReasoningLow
	case *budget <= BudgetMedium:
		return ReasoningMedium
	default:
		return ReasoningHigh
	}
}
