package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	History HistoryConfig `yaml:"history"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type GatewayConfig struct {
	Listen          string `yaml:"listen"`
	ChatURL         string `yaml:"chat_url"`
	ExecutionURL    string `yaml:"execution_url"`
	RedisURL        string `yaml:"redis_url"`
	JanitorSchedule string `yaml:"janitor_schedule"`
}

type HistoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AuthConfig struct {
	// TokenEnv names the environment variable holding the bearer token.
	// The token itself is issued by an external collaborator and never
	// lives in the config file.
	TokenEnv string `yaml:"token_env"`
	UserID   string `yaml:"user_id"`
}

type LogConfig struct {
	File string `yaml:"file"`
}

func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = "orbital.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%s not found (hint: run `orbital init`): %w", strings.TrimSpace(path), err)
		}
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", strings.TrimSpace(path), err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Gateway.Listen) == "" {
		c.Gateway.Listen = "127.0.0.1:8787"
	}
	if strings.TrimSpace(c.Gateway.ChatURL) == "" {
		c.Gateway.ChatURL = "ws://" + c.Gateway.Listen + "/chat"
	}
	if strings.TrimSpace(c.Gateway.ExecutionURL) == "" {
		c.Gateway.ExecutionURL = "ws://" + c.Gateway.Listen + "/exec"
	}
	if strings.TrimSpace(c.Gateway.JanitorSchedule) == "" {
		c.Gateway.JanitorSchedule = "*/5 * * * *"
	}
	if c.History.TimeoutSeconds <= 0 {
		c.History.TimeoutSeconds = 15
	}
	if strings.TrimSpace(c.Auth.TokenEnv) == "" {
		c.Auth.TokenEnv = "ORBITAL_TOKEN"
	}
}

// Token resolves the bearer token from the configured environment
// variable. Empty when unset; the caller decides whether that is fatal.
func (c Config) Token() string {
	return strings.TrimSpace(os.Getenv(strings.TrimSpace(c.Auth.TokenEnv)))
}
