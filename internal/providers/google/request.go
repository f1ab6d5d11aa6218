package google

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/media"
	"github.com/lizzyg/llmbridge/internal/util"
)

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []map[string]any  `json:"tools,omitempty"`
	SafetySettings    []safetySetting   `json:"safetySettings"`
}

type content struct {
	Role  string           `json:"role,omitempty"`
	Parts []map[string]any `json:"parts"`
}

type generationConfig struct {
	Temperature        *float32        `json:"temperature,omitempty"`
	TopP               *float32        `json:"topP,omitempty"`
	MaxOutputTokens    *int            `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	ThinkingConfig     *thinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig        *imageConfig    `json:"imageConfig,omitempty"`
}

func (c *generationConfig) empty() bool {
	return c.Temperature == nil && c.TopP == nil && c.MaxOutputTokens == nil &&
		len(c.ResponseModalities) == 0 && c.ThinkingConfig == nil && c.ImageConfig == nil
}

type thinkingConfig struct {
	IncludeThoughts bool   `json:"includeThoughts"`
	ThinkingBudget  *int   `json:"thinkingBudget,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

var safetyOff = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "OFF"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "OFF"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "OFF"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "OFF"},
}

var (
	gemini25Pro = regexp.MustCompile(`2\.5.*pro`)
	gemini3     = regexp.MustCompile(`gemini-3`)
)

// thinkingLevels maps reasoning levels for models that take a level instead
// of a budget. Medium deliberately shares the high setting.
var thinkingLevels = map[core.ReasoningLevel]string{
	core.ReasoningLow:    "low",
	core.ReasoningMedium: "high",
	core.ReasoningHigh:   "high",
}

func (p *Provider) buildRequest(messages []core.UIMessage, params core.TextGenerationParams) ([]byte, error) {
	model := params.Model
	imageOutput := model.OutputsModality(core.ModalityImage)

	req := generateRequest{SafetySettings: safetyOff}
	cfg := &generationConfig{
		Temperature:     params.Temperature,
		TopP:            params.TopP,
		MaxOutputTokens: params.MaxTokens,
	}
	if imageOutput {
		cfg.ResponseModalities = []string{"TEXT", "IMAGE"}
	}
	if model.HasAbility(core.AbilityReasoning) {
		cfg.ThinkingConfig = buildThinking(model.ID, params.ThinkingBudget)
	}
	if !cfg.empty() {
		req.GenerationConfig = cfg
	}

	var system []map[string]any
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			for _, part := range m.Parts {
				if t, ok := part.(core.TextPart); ok && t.Text != "" {
					system = append(system, map[string]any{"text": t.Text})
				}
			}
			continue
		}
		if c, ok := p.buildContent(m); ok {
			req.Contents = append(req.Contents, c)
		}
	}
	if len(system) > 0 && !imageOutput {
		req.SystemInstruction = &content{Parts: system}
	}

	req.Tools = buildTools(params)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode google request: %w", err)
	}
	return util.MergeCustomBody(body, params.CustomBody)
}

func buildThinking(modelID string, budget *int) *thinkingConfig {
	level := core.ReasoningLevelFromBudget(budget)
	tc := &thinkingConfig{IncludeThoughts: level != core.ReasoningOff}
	id := strings.ToLower(modelID)
	switch {
	case gemini3.MatchString(id):
		tc.ThinkingLevel = thinkingLevels[level]
	case level == core.ReasoningAuto:
	case level == core.ReasoningOff && gemini25Pro.MatchString(id):
		// 2.5 Pro cannot turn thinking off; leave the budget to the vendor.
	default:
		b := *budget
		tc.ThinkingBudget = &b
	}
	return tc
}

// buildTools returns built-in tools when the model offers them, otherwise
// the caller's function declarations. The vendor rejects mixing the two.
func buildTools(params core.TextGenerationParams) []map[string]any {
	model := params.Model
	var tools []map[string]any
	if model.HasTool(core.BuiltInSearch) && !params.ExternalSearch {
		tools = append(tools, map[string]any{"google_search": map[string]any{}})
	}
	if model.HasTool(core.BuiltInURLContext) {
		tools = append(tools, map[string]any{"url_context": map[string]any{}})
	}
	if len(tools) > 0 || !model.HasAbility(core.AbilityTool) || len(params.Tools) == 0 {
		return tools
	}
	decls := make([]map[string]any, 0, len(params.Tools))
	for _, t := range params.Tools {
		d := map[string]any{"name": t.Name, "description": t.Description}
		if schema := cleanSchema(t.Parameters); schema != nil {
			d["parameters"] = schema
		}
		decls = append(decls, d)
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

func (p *Provider) buildContent(m core.UIMessage) (content, bool) {
	role := "user"
	if m.Role == core.RoleAssistant {
		role = "model"
	}
	var parts []map[string]any
	for _, part := range m.Parts {
		switch v := part.(type) {
		case core.TextPart:
			if v.Text == "" {
				continue
			}
			parts = append(parts, withSignature(map[string]any{"text": v.Text}, v.Metadata))
		case core.ImagePart:
			parts = append(parts, p.mediaPart(v.URL, "image/png"))
		case core.VideoPart:
			parts = append(parts, p.mediaPart(v.URL, "video/mp4"))
		case core.AudioPart:
			parts = append(parts, p.mediaPart(v.URL, "audio/mpeg"))
		case core.DocumentPart:
			mimeType := v.MimeType
			if mimeType == "" {
				mimeType = media.MimeFromName(v.FileName, "application/pdf")
			}
			parts = append(parts, p.mediaPart(v.URL, mimeType))
		case core.ToolCallPart:
			if m.Role != core.RoleAssistant {
				continue
			}
			parts = append(parts, withSignature(map[string]any{
				"functionCall": map[string]any{
					"name": v.ToolName,
					"args": util.ToolArguments(v.Arguments),
				},
			}, v.Metadata))
		case core.ToolResultPart:
			result := v.Content
			if len(result) == 0 {
				result = json.RawMessage("null")
			}
			parts = append(parts, map[string]any{
				"functionResponse": map[string]any{
					"name":     v.ToolName,
					"response": map[string]any{"result": result},
				},
			})
		}
	}
	if len(parts) == 0 {
		return content{}, false
	}
	return content{Role: role, Parts: parts}, true
}

func withSignature(part map[string]any, md core.Metadata) map[string]any {
	if sig := md.Get(core.MetaThoughtSignature); sig != "" {
		part["thoughtSignature"] = sig
	}
	return part
}

func (p *Provider) mediaPart(ref, fallbackMime string) map[string]any {
	if media.IsRemote(ref) {
		return map[string]any{"fileData": map[string]any{
			"mimeType": media.MimeFromName(ref, fallbackMime),
			"fileUri":  ref,
		}}
	}
	enc, err := media.Encode(ref, fallbackMime)
	if err != nil {
		p.logger.Warn("google: media encoding failed, sending empty text instead", slog.String("error", err.Error()))
		return map[string]any{"text": ""}
	}
	return map[string]any{"inlineData": map[string]any{
		"mimeType": enc.MimeType,
		"data":     enc.Data,
	}}
}

// unsupportedSchemaKeys are rejected by the function declaration schema.
var unsupportedSchemaKeys = map[string]bool{
	"const":                true,
	"exclusiveMaximum":     true,
	"exclusiveMinimum":     true,
	"format":               true,
	"additionalProperties": true,
	"enum":                 true,
	"$schema":              true,
	"$id":                  true,
	"$defs":                true,
}

// cleanSchema strips unsupported keywords at every level. Property names
// are kept even when they collide with a keyword.
func cleanSchema(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return cleanValue(v)
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			switch {
			case unsupportedSchemaKeys[k]:
				delete(t, k)
			case k == "properties":
				if props, ok := child.(map[string]any); ok {
					for name, prop := range props {
						props[name] = cleanValue(prop)
					}
				}
			default:
				t[k] = cleanValue(child)
			}
		}
		return t
	case []any:
		for i := range t {
			t[i] = cleanValue(t[i])
		}
		return t
	}
	return v
}
