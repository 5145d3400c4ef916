package guardrail

import (
	"fmt"
	"os"

	"github.com/newsforge-ai/gatekeeper/internal/analyzer"
	"gopkg.in/yaml.v3"
)

// Defaults applied to guardrail specs that omit the fields.
const (
	DefaultThreshold        = 0.8
	DefaultExtremeThreshold = 0.9
)

// Spec declares one guardrail in the chain config file. Every recognized
// option is an explicit field with a documented default; nothing is read
// out of loose maps at runtime.
type Spec struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Categories       []string `yaml:"categories"`
	Threshold        *float64 `yaml:"threshold"`         // nil = DefaultThreshold
	ExtremeThreshold *float64 `yaml:"extreme_threshold"` // nil = DefaultExtremeThreshold
	UseModerationAPI bool     `yaml:"use_moderation_api"`
	UseLLMJudge      bool     `yaml:"use_llm_judge"`
	// Patterns overrides or extends the built-in per-category patterns.
	// Keys are category labels, values case-insensitive regexes.
	Patterns map[string][]string `yaml:"patterns"`
}

// EffectiveThreshold resolves the flagging threshold.
func (s *Spec) EffectiveThreshold() float64 {
	if s.Threshold == nil {
		return DefaultThreshold
	}
	return *s.Threshold
}

// EffectiveExtremeThreshold resolves the unconditional-block ceiling.
func (s *Spec) EffectiveExtremeThreshold() float64 {
	if s.ExtremeThreshold == nil {
		return DefaultExtremeThreshold
	}
	return *s.ExtremeThreshold
}

// Config is the chain definition loaded from YAML.
type Config struct {
	Guardrails []Spec `yaml:"guardrails"`
}

// DefaultConfig returns the single standard content-safety guardrail over
// the built-in categories and patterns.
func DefaultConfig() *Config {
	return &Config{
		Guardrails: []Spec{
			{
				Name:        "content_safety",
				Description: "Detects and filters harmful or inappropriate content",
				Categories:  analyzer.DefaultCategories(),
			},
		},
	}
}

// LoadConfig reads a chain definition from path. A missing file yields
// DefaultConfig; a present but invalid file is an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	if len(cfg.Guardrails) == 0 {
		return DefaultConfig(), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("LoadConfig: %w", err)
	}
	return &cfg, nil
}

// Validate checks the config at construction time so bad definitions fail
// at startup, not mid-pipeline.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Guardrails))
	for i := range c.Guardrails {
		s := &c.Guardrails[i]
		if s.Name == "" {
			return fmt.Errorf("guardrail %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("guardrail %q: duplicate name", s.Name)
		}
		seen[s.Name] = true

		if t := s.EffectiveThreshold(); t < 0 || t > 1 {
			return fmt.Errorf("guardrail %q: threshold %v outside [0,1]", s.Name, t)
		}
		if t := s.EffectiveExtremeThreshold(); t < 0 || t > 1 {
			return fmt.Errorf("guardrail %q: extreme_threshold %v outside [0,1]", s.Name, t)
		}
		if len(s.Categories) == 0 {
			s.Categories = analyzer.DefaultCategories()
		}
	}
	return nil
}

// PatternTable merges the built-in patterns with a spec's overrides: a
// category listed in the spec replaces the default list for that category.
func (s *Spec) PatternTable() map[string][]string {
	table := analyzer.DefaultPatterns()
	for category, patterns := range s.Patterns {
		table[category] = patterns
	}
	return table
}
