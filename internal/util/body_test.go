package util

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizzyg/llmbridge/internal/core"
)

func TestMergeCustomBody(t *testing.T) {
	base := []byte(`{"model":"m","generationConfig":{"temperature":1,"topP":0.9},"contents":[]}`)

	tests := []struct {
		name    string
		entries []core.CustomBody
		want    string
	}{
		{
			name:    "deep merge keeps siblings",
			entries: []core.CustomBody{{Key: "generationConfig", Value: json.RawMessage(`{"topK":5,"temperature":0.2}`)}},
			want:    `{"model":"m","generationConfig":{"temperature":0.2,"topP":0.9,"topK":5},"contents":[]}`,
		},
		{
			name:    "scalar override",
			entries: []core.CustomBody{{Key: "model", Value: json.RawMessage(`"other"`)}},
			want:    `{"model":"other","generationConfig":{"temperature":1,"topP":0.9},"contents":[]}`,
		},
		{
			name:    "new field",
			entries: []core.CustomBody{{Key: "cached_content", Value: json.RawMessage(`{"name":"c1"}`)}},
			want:    `{"model":"m","generationConfig":{"temperature":1,"topP":0.9},"contents":[],"cached_content":{"name":"c1"}}`,
		},
		{
			name:    "dotted key is literal",
			entries: []core.CustomBody{{Key: "a.b", Value: json.RawMessage(`1`)}},
			want:    `{"model":"m","generationConfig":{"temperature":1,"topP":0.9},"contents":[],"a.b":1}`,
		},
		{
			name:    "invalid json stored as string",
			entries: []core.CustomBody{{Key: "note", Value: json.RawMessage(`hello`)}},
			want:    `{"model":"m","generationConfig":{"temperature":1,"topP":0.9},"contents":[],"note":"hello"}`,
		},
		{
			name:    "blank key ignored",
			entries: []core.CustomBody{{Key: " ", Value: json.RawMessage(`1`)}},
			want:    string(base),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeCustomBody(append([]byte(nil), base...), tt.entries)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
