package visionrouter

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigYAML []byte

// Config is the provider catalog and quota table.
type Config struct {
	DefaultModel string           `yaml:"default_model"`
	Providers    []ProviderConfig `yaml:"providers"`

	// Generation is the quota table of text generation and research
	// calls. It is metered apart from vision. Empty disables it.
	Generation GenerationConfig `yaml:"generation"`
}

// GenerationConfig declares the generation providers and the unlimited
// provider over-quota requests are moved to.
type GenerationConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       []GenerationProviderConfig `yaml:"providers"`
}

// GenerationProviderConfig declares one generation provider and its
// per-tier limits.
type GenerationProviderConfig struct {
	Key     string          `yaml:"key"`
	Name    string          `yaml:"name"`
	Purpose string          `yaml:"purpose"`
	Limits  map[Tier]Limits `yaml:"limits"`
}

// ProviderConfig declares one provider, its per-tier limits and its models.
type ProviderConfig struct {
	Key     string          `yaml:"key"`
	Name    string          `yaml:"name"`
	Purpose string          `yaml:"purpose"`
	Limits  map[Tier]Limits `yaml:"limits"`
	Models  []ModelConfig   `yaml:"models"`
}

// ModelConfig declares a model served by the enclosing provider.
type ModelConfig struct {
	ID   string    `yaml:"id"`
	Name string    `yaml:"name"`
	Tier ModelTier `yaml:"tier"`
}

// DefaultConfig returns the built-in catalog.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultConfigYAML)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("visionrouter: read config: %w", err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(data))))
}

// ParseConfig parses and validates a YAML document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("visionrouter: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("visionrouter: config: at least one provider is required")
	}

	keys := make(map[string]bool, len(c.Providers))
	models := make(map[string]string)
	for i, p := range c.Providers {
		if p.Key == "" {
			return fmt.Errorf("visionrouter: config: providers[%d]: key is required", i)
		}
		if keys[p.Key] {
			return fmt.Errorf("visionrouter: config: duplicate provider key %q", p.Key)
		}
		keys[p.Key] = true

		if _, ok := p.Limits[TierFree]; !ok {
			return fmt.Errorf("visionrouter: config: provider %q: limits for tier %q are required", p.Key, TierFree)
		}

		for j, m := range p.Models {
			if m.ID == "" {
				return fmt.Errorf("visionrouter: config: provider %q: models[%d]: id is required", p.Key, j)
			}
			if owner, dup := models[m.ID]; dup {
				return fmt.Errorf("visionrouter: config: model %q declared by both %q and %q", m.ID, owner, p.Key)
			}
			models[m.ID] = p.Key

			if m.Tier != ModelFree && m.Tier != ModelPaid {
				return fmt.Errorf("visionrouter: config: model %q: invalid tier %q", m.ID, m.Tier)
			}
		}
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("visionrouter: config: default_model is required")
	}
	owner, ok := models[c.DefaultModel]
	if !ok {
		return fmt.Errorf("visionrouter: config: default model %q is not in the catalog", c.DefaultModel)
	}
	for _, p := range c.Providers {
		if p.Key == owner && !p.Limits[TierFree].IsUnlimited() {
			return fmt.Errorf("visionrouter: config: default model %q: provider %q must be unlimited for tier %q",
				c.DefaultModel, owner, TierFree)
		}
	}

	return c.Generation.Validate()
}

// Validate checks the generation table. An empty table is valid.
func (g GenerationConfig) Validate() error {
	if len(g.Providers) == 0 {
		if g.DefaultProvider != "" {
			return fmt.Errorf("visionrouter: config: generation: default_provider set without providers")
		}
		return nil
	}

	var def *GenerationProviderConfig
	keys := make(map[string]bool, len(g.Providers))
	for i := range g.Providers {
		p := &g.Providers[i]
		if p.Key == "" {
			return fmt.Errorf("visionrouter: config: generation: providers[%d]: key is required", i)
		}
		if keys[p.Key] {
			return fmt.Errorf("visionrouter: config: generation: duplicate provider key %q", p.Key)
		}
		keys[p.Key] = true
		if _, ok := p.Limits[TierFree]; !ok {
			return fmt.Errorf("visionrouter: config: generation: provider %q: limits for tier %q are required", p.Key, TierFree)
		}
		if p.Key == g.DefaultProvider {
			def = p
		}
	}

	if def == nil {
		return fmt.Errorf("visionrouter: config: generation: default provider %q is not declared", g.DefaultProvider)
	}
	if !def.Limits[TierFree].IsUnlimited() {
		return fmt.Errorf("visionrouter: config: generation: default provider %q must be unlimited for tier %q",
			def.Key, TierFree)
	}
	return nil
}
