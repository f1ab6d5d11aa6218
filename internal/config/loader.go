package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/lizzyg/llmbridge/internal/core"
	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

// Provider kinds understood by the factory.
const (
	KindClaude = "claude"
	KindGoogle = "google"
)

// LLMConfig is the root config structure.
type LLMConfig struct {
	HTTP      HTTPConfig                `koanf:"http"`
	Retry     *retry.Config             `koanf:"retry"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Models    map[string]ModelConfig    `koanf:"models"`
}

// HTTPConfig tunes the shared HTTP transport. Zero values keep the defaults.
type HTTPConfig struct {
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// ProviderConfig holds vendor connection settings. Kind defaults to the
// provider's key in the providers map.
type ProviderConfig struct {
	Kind    string       `koanf:"kind"`
	BaseURL string       `koanf:"base_url"`
	APIKey  string       `koanf:"api_key"`
	Proxy   string       `koanf:"proxy"`
	Vertex  VertexConfig `koanf:"vertex"`
}

// VertexConfig switches a google provider to Vertex AI with service account auth.
type VertexConfig struct {
	Enabled             bool   `koanf:"enabled"`
	ProjectID           string `koanf:"project_id"`
	Location            string `koanf:"location"`
	ServiceAccountEmail string `koanf:"service_account_email"`
	PrivateKey          string `koanf:"private_key"`
}

// ModelConfig defines a single model entry in config.
type ModelConfig struct {
	Provider         string   `koanf:"provider"`
	Model            string   `koanf:"model"`
	DisplayName      string   `koanf:"display_name"`
	Type             string   `koanf:"type"`
	Abilities        []string `koanf:"abilities"`
	InputModalities  []string `koanf:"input_modalities"`
	OutputModalities []string `koanf:"output_modalities"`
	Tools            []string `koanf:"tools"`
}

// CoreModel converts the entry into the model description the adapters use.
func (m ModelConfig) CoreModel() core.Model {
	out := core.Model{
		ID:          m.Model,
		DisplayName: m.DisplayName,
		Type:        core.ModelType(m.Type),
	}
	if out.DisplayName == "" {
		out.DisplayName = m.Model
	}
	if out.Type == "" {
		out.Type = core.ModelTypeChat
	}
	for _, a := range m.Abilities {
		out.Abilities = append(out.Abilities, core.Ability(strings.ToLower(a)))
	}
	for _, x := range m.InputModalities {
		out.InputModalities = append(out.InputModalities, core.Modality(strings.ToLower(x)))
	}
	for _, x := range m.OutputModalities {
		out.OutputModalities = append(out.OutputModalities, core.Modality(strings.ToLower(x)))
	}
	if len(out.InputModalities) == 0 {
		out.InputModalities = []core.Modality{core.ModalityText}
	}
	if len(out.OutputModalities) == 0 {
		out.OutputModalities = []core.Modality{core.ModalityText}
	}
	for _, t := range m.Tools {
		out.Tools = append(out.Tools, core.BuiltInTool(strings.ToLower(t)))
	}
	return out
}

// ProviderKind returns the configured kind, falling back to the provider name.
func (c *LLMConfig) ProviderKind(name string) string {
	p := c.Providers[name]
	if p.Kind != "" {
		return strings.ToLower(p.Kind)
	}
	return strings.ToLower(name)
}

// Validate checks that every model points at a known provider of a known kind.
func (c *LLMConfig) Validate() error {
	var errs []error
	for _, name := range sortedKeys(c.Providers) {
		switch kind := c.ProviderKind(name); kind {
		case KindClaude, KindGoogle:
		default:
			errs = append(errs, fmt.Errorf("provider %q: unknown kind %q", name, kind))
		}
		p := c.Providers[name]
		if p.Vertex.Enabled && p.Vertex.ProjectID == "" {
			errs = append(errs, fmt.Errorf("provider %q: vertex.project_id is required", name))
		}
	}
	for _, key := range sortedKeys(c.Models) {
		m := c.Models[key]
		if m.Model == "" {
			errs = append(errs, fmt.Errorf("model %q: model id is required", key))
		}
		if _, ok := c.Providers[m.Provider]; !ok {
			errs = append(errs, fmt.Errorf("model %q: provider %q is not configured", key, m.Provider))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	loadOnce sync.Once
	loaded   *LLMConfig
	loadErr  error
)

// Load loads configuration from the default location. Load is safe for repeated calls.
//
// Priority:
// 1. LLM_CONFIG_PATH if set
// 2. ./config.yaml
func Load() (*LLMConfig, error) {
	loadOnce.Do(func() {
		path := os.Getenv("LLM_CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
		loaded, loadErr = LoadFile(path)
	})
	return loaded, loadErr
}

// LoadFile reads path without caching. A .env file next to the config or in
// the working directory is loaded first; variables already set are kept.
func LoadFile(path string) (*LLMConfig, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	// Environment overrides: LLM__PROVIDERS__claude__api_key=...
	// Double underscore splits levels.
	if err := k.Load(kenv.Provider("LLM__", "__", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg LLMConfig
	if err := k.Unmarshal("llm", &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	resolveEnvVars(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(paths ...string) error {
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolveEnvVars resolves ${VAR} patterns in config string fields
func resolveEnvVars(cfg *LLMConfig) {
	for name, p := range cfg.Providers {
		p.Kind = resolveEnvString(p.Kind)
		p.BaseURL = resolveEnvString(p.BaseURL)
		p.APIKey = resolveEnvString(p.APIKey)
		p.Proxy = resolveEnvString(p.Proxy)
		p.Vertex.ProjectID = resolveEnvString(p.Vertex.ProjectID)
		p.Vertex.Location = resolveEnvString(p.Vertex.Location)
		p.Vertex.ServiceAccountEmail = resolveEnvString(p.Vertex.ServiceAccountEmail)
		p.Vertex.PrivateKey = resolveEnvString(p.Vertex.PrivateKey)
		cfg.Providers[name] = p
	}
	for key, model := range cfg.Models {
		model.Provider = resolveEnvString(model.Provider)
		model.Model = resolveEnvString(model.Model)
		cfg.Models[key] = model
	}
}

// resolveEnvString replaces ${VAR} with the variable's value; unset variables expand to "".
func resolveEnvString(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
