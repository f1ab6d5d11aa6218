package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
)

type modelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

type publisherModelList struct {
	PublisherModels []struct {
		Name string `json:"name"`
	} `json:"publisherModels"`
	NextPageToken string `json:"nextPageToken"`
}

// ListModels pages through the catalog. Gemini API models that support
// neither generateContent nor embedContent are dropped; Vertex reports no
// capabilities, so every publisher model is listed as chat unless its id
// names an embedding model.
func (p *Provider) ListModels(ctx context.Context, s Settings) ([]core.Model, error) {
	ctx, cancel := p.http.WithRequestTimeout(ctx)
	defer cancel()

	var out []core.Model
	token := ""
	for {
		q := url.Values{"pageSize": {"100"}}
		if token != "" {
			q.Set("pageToken", token)
		}
		var target string
		if s.Vertex {
			target = vertexRoot(s) + "/v1beta1/publishers/google/models?" + q.Encode()
		} else {
			root := DefaultBaseURL
			if s.BaseURL != "" {
				root = strings.TrimRight(s.BaseURL, "/")
			}
			target = root + "/models?" + q.Encode()
		}

		raw, err := p.get(ctx, s, target)
		if err != nil {
			return nil, err
		}
		var next string
		if s.Vertex {
			var page publisherModelList
			if err := json.Unmarshal(raw, &page); err != nil {
				return nil, fmt.Errorf("decode vertex models: %w", err)
			}
			for _, m := range page.PublisherModels {
				id := path.Base(m.Name)
				typ := core.ModelTypeChat
				if strings.Contains(id, "embedding") {
					typ = core.ModelTypeEmbedding
				}
				out = append(out, listedModel(id, "", typ))
			}
			next = page.NextPageToken
		} else {
			var page modelList
			if err := json.Unmarshal(raw, &page); err != nil {
				return nil, fmt.Errorf("decode google models: %w", err)
			}
			for _, m := range page.Models {
				var typ core.ModelType
				switch {
				case slices.Contains(m.SupportedGenerationMethods, "generateContent"):
					typ = core.ModelTypeChat
				case slices.Contains(m.SupportedGenerationMethods, "embedContent"):
					typ = core.ModelTypeEmbedding
				default:
					continue
				}
				out = append(out, listedModel(strings.TrimPrefix(m.Name, "models/"), m.DisplayName, typ))
			}
			next = page.NextPageToken
		}
		if next == "" || next == token {
			return out, nil
		}
		token = next
	}
}

func listedModel(id, name string, typ core.ModelType) core.Model {
	if name == "" {
		name = id
	}
	return core.Model{
		ID:               id,
		DisplayName:      name,
		Type:             typ,
		InputModalities:  []core.Modality{core.ModalityText, core.ModalityImage},
		OutputModalities: []core.Modality{core.ModalityText},
	}
}

func (p *Provider) get(ctx context.Context, s Settings, target string) ([]byte, error) {
	resp, err := p.http.Send(ctx, providerName, s.Proxy, p.retry, func(ctx context.Context) (*http.Request, error) {
		return p.newRequest(ctx, s, http.MethodGet, target, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var buf json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&buf); err != nil {
		return nil, fmt.Errorf("read google response: %w", err)
	}
	return buf, nil
}
