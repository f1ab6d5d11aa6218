package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizzyg/llmbridge/internal/core"
)

const sampleConfig = `
llm:
  http:
    timeout: 45s
    requests_per_second: 2.5
    burst: 3
  retry:
    max_attempts: 2
    base_delay: 10ms
  providers:
    claude:
      api_key: ${LLMBRIDGE_TEST_CLAUDE_KEY}
    gemini:
      kind: google
      api_key: "k1,k2"
      proxy: http://127.0.0.1:8080
    vertex:
      kind: google
      vertex:
        enabled: true
        project_id: proj
        location: global
        service_account_email: sa@proj.iam.gserviceaccount.com
        private_key: ${LLMBRIDGE_TEST_PEM}
  models:
    sonnet:
      provider: claude
      model: claude-sonnet-4-5
      abilities: [tool, reasoning]
      input_modalities: [text, image]
      tools: [search]
    flash-image:
      provider: gemini
      model: gemini-2.5-flash-image
      display_name: Flash Image
      output_modalities: [text, image]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	t.Setenv("LLM_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("LLMBRIDGE_TEST_CLAUDE_KEY", "sk-ant")
	t.Setenv("LLMBRIDGE_TEST_PEM", "pem-data")
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.HTTP.Timeout)
	assert.InDelta(t, 2.5, cfg.HTTP.RequestsPerSecond, 1e-9)
	assert.Equal(t, 3, cfg.HTTP.Burst)
	require.NotNil(t, cfg.Retry)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Retry.BaseDelay)

	assert.Equal(t, "sk-ant", cfg.Providers["claude"].APIKey)
	assert.Equal(t, KindClaude, cfg.ProviderKind("claude"))
	assert.Equal(t, KindGoogle, cfg.ProviderKind("gemini"))
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Providers["gemini"].Proxy)

	v := cfg.Providers["vertex"].Vertex
	assert.True(t, v.Enabled)
	assert.Equal(t, "global", v.Location)
	assert.Equal(t, "pem-data", v.PrivateKey)

	sonnet := cfg.Models["sonnet"].CoreModel()
	assert.Equal(t, "claude-sonnet-4-5", sonnet.ID)
	assert.Equal(t, "claude-sonnet-4-5", sonnet.DisplayName)
	assert.Equal(t, core.ModelTypeChat, sonnet.Type)
	assert.True(t, sonnet.HasAbility(core.AbilityReasoning))
	assert.True(t, sonnet.HasTool(core.BuiltInSearch))
	assert.Equal(t, []core.Modality{core.ModalityText}, sonnet.OutputModalities)

	img := cfg.Models["flash-image"].CoreModel()
	assert.Equal(t, "Flash Image", img.DisplayName)
	assert.True(t, img.OutputsModality(core.ModalityImage))
	assert.Equal(t, []core.Modality{core.ModalityText}, img.InputModalities)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LLMBRIDGE_TEST_CLAUDE_KEY", "from-file")
	t.Setenv("LLM__PROVIDERS__claude__api_key", "from-env")
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Providers["claude"].APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	const name = "LLMBRIDGE_TEST_DOTENV_KEY"
	require.NoError(t, os.Unsetenv(name))
	t.Cleanup(func() { os.Unsetenv(name) })

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(name+"=dotenv-value\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  providers:
    claude:
      api_key: ${LLMBRIDGE_TEST_DOTENV_KEY}
  models:
    m:
      provider: claude
      model: claude-haiku-4-5
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-value", cfg.Providers["claude"].APIKey)
}

func TestLoadCached(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	t.Setenv("LLM_CONFIG_PATH", writeConfig(t, sampleConfig))
	a, err := Load()
	require.NoError(t, err)
	b, err := Load()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr string
	}{
		{
			name:    "unknown kind",
			cfg:     LLMConfig{Providers: map[string]ProviderConfig{"x": {Kind: "openai"}}},
			wantErr: `provider "x": unknown kind "openai"`,
		},
		{
			name: "missing provider",
			cfg: LLMConfig{
				Providers: map[string]ProviderConfig{"claude": {}},
				Models:    map[string]ModelConfig{"m": {Provider: "gemini", Model: "g"}},
			},
			wantErr: `model "m": provider "gemini" is not configured`,
		},
		{
			name:    "vertex without project",
			cfg:     LLMConfig{Providers: map[string]ProviderConfig{"v": {Kind: "google", Vertex: VertexConfig{Enabled: true}}}},
			wantErr: "vertex.project_id is required",
		},
		{
			name: "missing model id",
			cfg: LLMConfig{
				Providers: map[string]ProviderConfig{"claude": {}},
				Models:    map[string]ModelConfig{"m": {Provider: "claude"}},
			},
			wantErr: `model "m": model id is required`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	ok := LLMConfig{
		Providers: map[string]ProviderConfig{"claude": {}, "g": {Kind: "Google"}},
		Models:    map[string]ModelConfig{"m": {Provider: "g", Model: "gemini-2.5-flash"}},
	}
	assert.NoError(t, ok.Validate())
}

func TestResolveEnvString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		env      map[string]string
		expected string
	}{
		{"replaces set environment variable", "api-${API_KEY}-suffix", map[string]string{"API_KEY": "test123"}, "api-test123-suffix"},
		{"handles empty environment variable", "prefix-${EMPTY_VAR}-suffix", map[string]string{"EMPTY_VAR": ""}, "prefix--suffix"},
		{"handles unset environment variable", "prefix-${LLMBRIDGE_UNSET_VAR}-suffix", nil, "prefix--suffix"},
		{"handles multiple variables", "${HOST}:${PORT}", map[string]string{"HOST": "localhost", "PORT": "8080"}, "localhost:8080"},
		{"no substitution needed", "no-vars-here", nil, "no-vars-here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := resolveEnvString(tt.input); got != tt.expected {
				t.Errorf("resolveEnvString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
