// Package config loads ntbk settings from defaults, a YAML file and the
// environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/ntbk/internal/degrade"
	"github.com/fentz26/ntbk/internal/models"
	"github.com/fentz26/ntbk/internal/store"
	"github.com/fentz26/ntbk/internal/tools"
)

// EnvPrefix prefixes every environment override, e.g. NTBK_AGENT_BASE_URL.
const EnvPrefix = "NTBK_"

// Config is the complete runtime configuration.
type Config struct {
	Agent    AgentConfig    `koanf:"agent"`
	Defaults DefaultsConfig `koanf:"defaults"`
	Store    store.Config   `koanf:"store"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Tools    tools.Config   `koanf:"tools"`
}

// AgentConfig describes how to reach the remote agent service. An empty
// BaseURL runs fully offline on fallback templates.
type AgentConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"omitempty,url"`
	APIKey        string        `koanf:"api_key"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"gte=1"`
	BackoffBase   time.Duration `koanf:"backoff_base" validate:"gt=0"`
	BackoffCap    time.Duration `koanf:"backoff_cap" validate:"gtefield=BackoffBase"`
	PollInterval  time.Duration `koanf:"poll_interval" validate:"gt=0"`
	HealthTTL     time.Duration `koanf:"health_ttl" validate:"gte=0"`
	MaxConcurrent int           `koanf:"max_concurrent" validate:"gte=1"`
}

// DefaultsConfig is the agent config applied when a request carries none.
type DefaultsConfig struct {
	Model          string  `koanf:"model" validate:"required"`
	Temperature    float64 `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `koanf:"max_tokens" validate:"gt=0"`
	TimeoutSeconds int     `koanf:"timeout_seconds" validate:"gte=0"`
}

// ServerConfig configures the HTTP control plane.
type ServerConfig struct {
	Listen string `koanf:"listen" validate:"required,hostname_port"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxAttempts:   degrade.DefaultMaxAttempts,
			BackoffBase:   degrade.DefaultBackoffBase,
			BackoffCap:    degrade.DefaultBackoffCap,
			PollInterval:  2 * time.Second,
			HealthTTL:     degrade.DefaultHealthTTL,
			MaxConcurrent: 4,
		},
		Defaults: DefaultsConfig{
			Model:          "default",
			Temperature:    0.7,
			MaxTokens:      1024,
			TimeoutSeconds: models.DefaultTimeoutSeconds,
		},
		Store: store.Config{
			Driver: store.DriverMemory,
			Path:   filepath.Join(homeDir(), "data", "ntbk.db"),
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7466",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tools: *tools.DefaultConfig(),
	}
}

// AgentDefaults builds a validated agent config from the defaults section.
func (c *Config) AgentDefaults() (models.AgentConfig, error) {
	d := c.Defaults
	return models.NewAgentConfig(d.Model, d.Temperature, d.MaxTokens, d.TimeoutSeconds)
}

// Policy builds the degradation policy from the agent section.
func (c *Config) Policy() *degrade.Policy {
	return &degrade.Policy{
		MaxAttempts: c.Agent.MaxAttempts,
		BackoffBase: c.Agent.BackoffBase,
		BackoffCap:  c.Agent.BackoffCap,
	}
}

// DefaultPath is the config file read when none is given explicitly.
func DefaultPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ntbk"
	}
	return filepath.Join(home, ".ntbk")
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("invalid tools config: %w", err)
	}
	return nil
}
