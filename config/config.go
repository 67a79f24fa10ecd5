package config

import (
	"os"
	"path/filepath"

	"github.com/lumen-mentor/lumen/errors"
	"gopkg.in/yaml.v3"
)

// FilesystemAccess restricts what the operator's file tools may touch.
// Patterns use doublestar globs.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// ModelRate holds the per-million-token prices used to derive turn cost.
type ModelRate struct {
	InputUSD  float64 `yaml:"input_usd"`
	OutputUSD float64 `yaml:"output_usd"`
}

// RateLimit gates how often a single user may start a new turn.
type RateLimit struct {
	TurnsPerMinute float64 `yaml:"turns_per_minute"`
	Burst          int     `yaml:"burst"`
}

type Config struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini, bedrock
	Model    string `yaml:"model"`

	// DataDir holds the sqlite store, logs, and review output.
	DataDir string `yaml:"data_dir"`

	// ContentKey encrypts message content at rest. Any non-empty passphrase
	// works; it is stretched to an AES key. Empty disables encryption.
	ContentKey string `yaml:"content_key"`

	// OperatorLoopBudget caps model round-trips within one operator turn.
	OperatorLoopBudget int `yaml:"operator_loop_budget"`

	Rates     map[string]ModelRate `yaml:"rates"`
	RateLimit RateLimit            `yaml:"rate_limit"`

	AllowedCommands  []string         `yaml:"allowed_commands"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`

	Debug bool `yaml:"debug"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".lumen", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".lumen", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".lumen"
	}
	if c.OperatorLoopBudget <= 0 {
		c.OperatorLoopBudget = 16
	}
	if c.RateLimit.TurnsPerMinute <= 0 {
		c.RateLimit.TurnsPerMinute = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 3
	}
	// The store and logs never belong in the operator's reach.
	c.FilesystemAccess.Hidden = appendMissing(c.FilesystemAccess.Hidden, ".lumen", ".lumen/**")
}

// RateFor returns the pricing for a model, or zero rates when unknown.
// Unknown models still accumulate token counts; only cost stays at zero.
func (c *Config) RateFor(model string) ModelRate {
	return c.Rates[model]
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, giving a simple merge
	// where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

func appendMissing(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
