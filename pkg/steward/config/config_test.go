package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", cfg.Model)
	}
	if cfg.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q, want America/New_York", cfg.Timezone)
	}
	if cfg.RecentMessagesLimit != 30 {
		t.Errorf("RecentMessagesLimit = %d, want 30", cfg.RecentMessagesLimit)
	}
	if cfg.ContextWindowTokens != 200000 {
		t.Errorf("ContextWindowTokens = %d, want 200000", cfg.ContextWindowTokens)
	}
	if cfg.Heartbeat.SkipWindow != 5*time.Minute {
		t.Errorf("Heartbeat.SkipWindow = %v, want 5m", cfg.Heartbeat.SkipWindow)
	}
	if cfg.Hindsight.BankID != "stateful-agent" {
		t.Errorf("Hindsight.BankID = %q, want stateful-agent", cfg.Hindsight.BankID)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steward.yaml")
	yaml := "model: from-yaml\ntimezone: UTC\nrecent_messages_limit: 10\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/steward")
	t.Setenv("OPENAI_MODEL_NAME", "from-env")
	t.Setenv("RECENT_MESSAGES_LIMIT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "from-env" {
		t.Errorf("Model = %q, want env value to win", cfg.Model)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want yaml value", cfg.Timezone)
	}
	if cfg.RecentMessagesLimit != 10 {
		t.Errorf("RecentMessagesLimit = %d, want yaml value 10", cfg.RecentMessagesLimit)
	}
}

func TestUserIDResolution(t *testing.T) {
	tests := []struct {
		name      string
		hindsight string
		fallback  string
		want      string
	}{
		{"hindsight wins", "hs:alice", "other:bob", "hs:alice"},
		{"fallback when no hindsight", "", "other:bob", "other:bob"},
		{"default when neither", "", "", "local:user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HINDSIGHT_USER_ID", tt.hindsight)
			t.Setenv("DEFAULT_USER_ID", tt.fallback)

			cfg := DefaultConfig()
			applyEnv(cfg)
			if cfg.DefaultUserID != tt.want {
				t.Errorf("DefaultUserID = %q, want %q", cfg.DefaultUserID, tt.want)
			}
		})
	}
}

func TestPortOverridesAddress(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GATEWAY_ADDR", "")

	cfg := DefaultConfig()
	applyEnv(cfg)
	if cfg.Gateway.Address != ":9090" {
		t.Errorf("Gateway.Address = %q, want :9090", cfg.Gateway.Address)
	}
}
