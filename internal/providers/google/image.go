package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/media"
	"github.com/lizzyg/llmbridge/internal/util"
)

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount int    `json:"sampleCount"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

// GenerateImage calls Imagen's predict method for imagen models. Other
// models are asked for image output through generateContent.
func (p *Provider) GenerateImage(ctx context.Context, s Settings, params core.ImageGenerationParams) (core.ImageGenerationResult, error) {
	ctx, cancel := p.http.WithRequestTimeout(ctx)
	defer cancel()

	if !strings.HasPrefix(strings.TrimPrefix(params.Model.ID, "models/"), "imagen") {
		return p.generateNativeImage(ctx, s, params)
	}

	n := params.NumberOfImages
	if n <= 0 {
		n = 1
	}
	body, err := json.Marshal(predictRequest{
		Instances:  []predictInstance{{Prompt: params.Prompt}},
		Parameters: predictParameters{SampleCount: n, AspectRatio: params.AspectRatio},
	})
	if err != nil {
		return core.ImageGenerationResult{}, fmt.Errorf("encode imagen request: %w", err)
	}
	if body, err = util.MergeCustomBody(body, params.CustomBody); err != nil {
		return core.ImageGenerationResult{}, err
	}

	raw, err := p.post(ctx, s, endpoint(s, params.Model.ID, "predict", nil), body, params.CustomHeaders)
	if err != nil {
		return core.ImageGenerationResult{}, err
	}
	var resp predictResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.ImageGenerationResult{}, fmt.Errorf("decode imagen response: %w", err)
	}
	var out core.ImageGenerationResult
	for _, pr := range resp.Predictions {
		if pr.BytesBase64Encoded == "" {
			continue
		}
		mimeType := pr.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		out.Items = append(out.Items, core.ImageGenerationItem{Data: pr.BytesBase64Encoded, MimeType: mimeType})
	}
	return out, nil
}

func (p *Provider) generateNativeImage(ctx context.Context, s Settings, params core.ImageGenerationParams) (core.ImageGenerationResult, error) {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []map[string]any{{"text": params.Prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
		SafetySettings: safetyOff,
	}
	if params.AspectRatio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: params.AspectRatio}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return core.ImageGenerationResult{}, fmt.Errorf("encode google image request: %w", err)
	}
	if body, err = util.MergeCustomBody(body, params.CustomBody); err != nil {
		return core.ImageGenerationResult{}, err
	}

	raw, err := p.post(ctx, s, endpoint(s, params.Model.ID, "generateContent", nil), body, params.CustomHeaders)
	if err != nil {
		return core.ImageGenerationResult{}, err
	}
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return core.ImageGenerationResult{}, fmt.Errorf("decode google response: %w", err)
	}
	chunk, err := p.parseResponse(resp, false)
	if err != nil {
		return core.ImageGenerationResult{}, err
	}
	var out core.ImageGenerationResult
	for _, c := range chunk.Choices {
		for _, part := range c.Message.Parts {
			img, ok := part.(core.ImagePart)
			if !ok {
				continue
			}
			enc, err := media.Encode(img.URL, "image/png")
			if err != nil {
				return core.ImageGenerationResult{}, err
			}
			out.Items = append(out.Items, core.ImageGenerationItem{Data: enc.Data, MimeType: enc.MimeType})
		}
	}
	return out, nil
}
