package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orbital.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "history:\n  base_url: http://api.example.com\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Listen != "127.0.0.1:8787" {
		t.Fatalf("default listen not applied: %q", cfg.Gateway.Listen)
	}
	if cfg.Gateway.ChatURL != "ws://127.0.0.1:8787/chat" {
		t.Fatalf("chat url not derived: %q", cfg.Gateway.ChatURL)
	}
	if cfg.Gateway.ExecutionURL != "ws://127.0.0.1:8787/exec" {
		t.Fatalf("execution url not derived: %q", cfg.Gateway.ExecutionURL)
	}
	if cfg.Gateway.JanitorSchedule != "*/5 * * * *" {
		t.Fatalf("default janitor schedule not applied: %q", cfg.Gateway.JanitorSchedule)
	}
	if cfg.History.TimeoutSeconds != 15 {
		t.Fatalf("default history timeout not applied: %d", cfg.History.TimeoutSeconds)
	}
	if cfg.Auth.TokenEnv != "ORBITAL_TOKEN" {
		t.Fatalf("default token env not applied: %q", cfg.Auth.TokenEnv)
	}
	if cfg.History.BaseURL != "http://api.example.com" {
		t.Fatalf("explicit value overwritten: %q", cfg.History.BaseURL)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
gateway:
  listen: 0.0.0.0:9000
  chat_url: wss://gw.example.com/chat
  janitor_schedule: "0 * * * *"
auth:
  token_env: MY_TOKEN
  user_id: u-42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Listen != "0.0.0.0:9000" {
		t.Fatalf("listen overridden: %q", cfg.Gateway.Listen)
	}
	if cfg.Gateway.ChatURL != "wss://gw.example.com/chat" {
		t.Fatalf("chat url overridden: %q", cfg.Gateway.ChatURL)
	}
	// execution_url was not set, so it derives from the explicit listen.
	if cfg.Gateway.ExecutionURL != "ws://0.0.0.0:9000/exec" {
		t.Fatalf("execution url not derived from listen: %q", cfg.Gateway.ExecutionURL)
	}
	if cfg.Auth.TokenEnv != "MY_TOKEN" || cfg.Auth.UserID != "u-42" {
		t.Fatalf("auth section not parsed: %+v", cfg.Auth)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "gateway: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("ORBITAL_TEST_TOKEN", "  secret  ")

	cfg := Config{Auth: AuthConfig{TokenEnv: "ORBITAL_TEST_TOKEN"}}
	if got := cfg.Token(); got != "secret" {
		t.Fatalf("token not trimmed from env: %q", got)
	}
}
