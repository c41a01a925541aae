// Package config declares models, agents and linear flows in YAML.
//
//	logging:
//	  level: info
//	  format: json
//	models:
//	  fast:
//	    provider: openai
//	    model: gpt-4o-mini
//	    temperature: 0.2
//	agents:
//	  classifier:
//	    model: fast
//	    prompt: "Classify: {{.Arg.Text}}"
//	    input_type: Ticket
//	    output_type: Category
//	flows:
//	  support:
//	    steps: [classifier, responder]
//
// Type and tool names are resolved against the registries passed to Build.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentpipe/logging"
)

// Supported model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// Config is the root of a configuration file.
type Config struct {
	Logging LoggingConfig          `yaml:"logging,omitempty"`
	Models  map[string]ModelConfig `yaml:"models"`
	Agents  map[string]AgentConfig `yaml:"agents"`
	Flows   map[string]FlowConfig  `yaml:"flows,omitempty"`
}

// LoggingConfig selects the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level,omitempty"`
	Format    string `yaml:"format,omitempty"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// ModelConfig describes one model connection.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Temperature keeps the provider default when omitted.
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	// Responses feeds the mock provider: prompt -> canned reply.
	Responses map[string]string `yaml:"responses,omitempty"`
}

// AgentConfig describes one agent.
type AgentConfig struct {
	Model            string   `yaml:"model"`
	Description      string   `yaml:"description,omitempty"`
	Prompt           string   `yaml:"prompt,omitempty"`
	Instruction      string   `yaml:"instruction,omitempty"`
	InputType        string   `yaml:"input_type,omitempty"`
	OutputType       string   `yaml:"output_type,omitempty"`
	Tools            []string `yaml:"tools,omitempty"`
	MaxIterations    int      `yaml:"max_iterations,omitempty"`
	MaxParallelTools int      `yaml:"max_parallel_tools,omitempty"`
}

// FlowConfig describes a linear flow over configured agents.
type FlowConfig struct {
	Steps []string `yaml:"steps"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency. Type and tool
// references are checked by Build.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging: unsupported format %q", c.Logging.Format))
	}

	for _, id := range sortedKeys(c.Models) {
		m := c.Models[id]

		switch m.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
			if m.Model == "" {
				errs = append(errs, fmt.Errorf("model %s: model is required", id))
			}
		case ProviderMock:
		case "":
			errs = append(errs, fmt.Errorf("model %s: provider is required", id))
		default:
			errs = append(errs, fmt.Errorf("model %s: unsupported provider %q", id, m.Provider))
		}

		if t := m.Temperature; t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, fmt.Errorf("model %s: temperature must be between 0 and 2, got %g", id, *t))
		}

		if m.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("model %s: max_tokens must be non-negative, got %d", id, m.MaxTokens))
		}
	}

	for _, name := range sortedKeys(c.Agents) {
		a := c.Agents[name]

		if a.Model == "" {
			errs = append(errs, fmt.Errorf("agent %s: model is required", name))
		} else if _, ok := c.Models[a.Model]; !ok {
			errs = append(errs, fmt.Errorf("agent %s: unknown model %q", name, a.Model))
		}

		if a.InputType != "" && a.Prompt == "" {
			errs = append(errs, fmt.Errorf("agent %s: prompt is required when input_type is set", name))
		}

		if a.MaxIterations < 0 {
			errs = append(errs, fmt.Errorf("agent %s: max_iterations must be non-negative, got %d", name, a.MaxIterations))
		}
	}

	for _, name := range sortedKeys(c.Flows) {
		f := c.Flows[name]

		if len(f.Steps) == 0 {
			errs = append(errs, fmt.Errorf("flow %s: at least one step is required", name))
		}

		for _, step := range f.Steps {
			if _, ok := c.Agents[step]; !ok {
				errs = append(errs, fmt.Errorf("flow %s: unknown agent %q", name, step))
			}
		}
	}

	return errors.Join(errs...)
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() (*logging.StructuredLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.AddSource = c.Logging.AddSource

	if c.Logging.Format != "" {
		cfg.Format = c.Logging.Format
	}

	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	cfg.Level = level

	return logging.NewLogger(cfg), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
