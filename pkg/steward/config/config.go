// Package config – config.go defines all configuration structures for the
// Steward agent runtime and loads them from the environment with an optional
// YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration.
type Config struct {
	// Model is the chat model name (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// API configures the OpenAI-compatible endpoint.
	API APIConfig `yaml:"api"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `yaml:"database_url"`

	// Timezone is the agent's timezone (e.g. "America/New_York").
	// All prompt timestamps and day boundaries use this zone.
	Timezone string `yaml:"timezone"`

	// RecentMessagesLimit is the floor of recent messages kept in context.
	RecentMessagesLimit int `yaml:"recent_messages_limit"`

	// ContextWindowTokens is the token safety cap for loaded history.
	ContextWindowTokens int `yaml:"context_window_tokens"`

	// DefaultUserID is the stable identity used when a turn has no explicit
	// user (e.g. "local:user" or "discord:1234").
	DefaultUserID string `yaml:"default_user_id"`

	// DefaultChannelType is the channel label for local/HTTP turns.
	DefaultChannelType string `yaml:"default_channel_type"`

	// UserDisplayName is the label stored on user messages from the HTTP API.
	UserDisplayName string `yaml:"user_display_name"`

	// DataDir holds runtime state files (activity sentinel, logs).
	DataDir string `yaml:"data_dir"`

	// Heartbeat configures the autonomous wake-up loop.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Hindsight configures the episodic memory service.
	Hindsight HindsightConfig `yaml:"hindsight"`

	// Discord configures the Discord ingress channel.
	Discord DiscordConfig `yaml:"discord"`

	// Telegram configures the Telegram ingress channel.
	Telegram TelegramConfig `yaml:"telegram"`

	// Gateway configures the HTTP API server.
	Gateway GatewayConfig `yaml:"gateway"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds the LLM endpoint configuration.
type APIConfig struct {
	// APIKey is the bearer token for the endpoint.
	APIKey string `yaml:"api_key"`

	// BaseURL is the OpenAI-compatible base URL (default https://api.openai.com/v1).
	BaseURL string `yaml:"base_url"`
}

// HeartbeatConfig configures the heartbeat loop.
type HeartbeatConfig struct {
	// Enabled turns the in-process heartbeat ticker on/off.
	Enabled bool `yaml:"enabled"`

	// Interval is the time between heartbeat ticks.
	Interval time.Duration `yaml:"interval"`

	// WakeHour is the earliest hour heartbeats run (agent timezone).
	WakeHour int `yaml:"wake_hour"`

	// SleepHour is the hour heartbeats stop running (agent timezone).
	SleepHour int `yaml:"sleep_hour"`

	// SkipWindow skips a heartbeat if the user chatted within this window.
	SkipWindow time.Duration `yaml:"skip_window"`

	// PromptFile optionally overrides the default heartbeat prompt.
	PromptFile string `yaml:"prompt_file"`
}

// HindsightConfig configures the episodic memory client.
type HindsightConfig struct {
	// Enabled turns retain/recall/reflect on or off.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the Hindsight server URL.
	BaseURL string `yaml:"base_url"`

	// BankID is the memory bank to retain into and recall from.
	BankID string `yaml:"bank_id"`

	// UserID is the identity tag applied to retained memories.
	UserID string `yaml:"user_id"`
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	// Token is the bot token from the Discord Developer Portal.
	Token string `yaml:"token"`

	// ChannelID is the channel the bot listens on. Empty disables Discord.
	ChannelID string `yaml:"channel_id"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	// Token is the bot token from @BotFather.
	Token string `yaml:"token"`

	// ChatID is the chat the bot listens on. Zero disables Telegram.
	ChatID int64 `yaml:"chat_id"`
}

// GatewayConfig configures the HTTP API server.
type GatewayConfig struct {
	// Address is the listen address (default ":8000").
	Address string `yaml:"address"`

	// AuthToken enables Bearer auth when non-empty.
	AuthToken string `yaml:"auth_token"`

	// CORSOrigins lists extra allowed origins beyond the local dashboard.
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`

	// File optionally duplicates log output to a file. Rotated once at
	// open when it exceeds the size cap.
	File string `yaml:"file"`
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:               "gpt-4o-mini",
		Timezone:            "America/New_York",
		RecentMessagesLimit: 30,
		ContextWindowTokens: 200000,
		DefaultUserID:       "local:user",
		DefaultChannelType:  "local",
		UserDisplayName:     "User",
		DataDir:             "./data",
		Heartbeat: HeartbeatConfig{
			Enabled:    false,
			Interval:   60 * time.Minute,
			WakeHour:   5,
			SleepHour:  22,
			SkipWindow: 5 * time.Minute,
		},
		Hindsight: HindsightConfig{
			Enabled: true,
			BaseURL: "http://localhost:8888",
			BankID:  "stateful-agent",
		},
		Gateway: GatewayConfig{
			Address: ":8000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML file,
// then environment variables (which always win). A .env file in the working
// directory is loaded first, best effort.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if yamlPath == "" {
		if _, err := os.Stat("steward.yaml"); err == nil {
			yamlPath = "steward.yaml"
		}
	}
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required. Set it in .env (e.g. from Railway)")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

// Location resolves the agent timezone. Falls back to UTC if the zone
// cannot be loaded (Load validates it, so this only matters for
// zero-value configs in tests).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// applyEnv overrides config fields from environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Model, "OPENAI_MODEL_NAME")
	setString(&cfg.API.APIKey, "OPENAI_API_KEY")
	setString(&cfg.API.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Timezone, "AGENT_TIMEZONE")
	setInt(&cfg.RecentMessagesLimit, "RECENT_MESSAGES_LIMIT")
	setInt(&cfg.ContextWindowTokens, "CONTEXT_WINDOW_TOKENS")
	setString(&cfg.DefaultChannelType, "DEFAULT_CHANNEL_TYPE")
	setString(&cfg.UserDisplayName, "USER_DISPLAY_NAME")
	setString(&cfg.DataDir, "STEWARD_DATA_DIR")

	// Identity: prefer the Hindsight user ID so memories and history
	// carry the same tag, then the explicit default, then local:user.
	if v := strings.TrimSpace(os.Getenv("HINDSIGHT_USER_ID")); v != "" {
		cfg.DefaultUserID = v
	} else if v := strings.TrimSpace(os.Getenv("DEFAULT_USER_ID")); v != "" {
		cfg.DefaultUserID = v
	}

	setBool(&cfg.Heartbeat.Enabled, "HEARTBEAT_ENABLED")
	if v, ok := lookupInt("HEARTBEAT_INTERVAL_MINUTES"); ok {
		cfg.Heartbeat.Interval = time.Duration(v) * time.Minute
	}
	setInt(&cfg.Heartbeat.WakeHour, "HEARTBEAT_WAKE_HOUR")
	setInt(&cfg.Heartbeat.SleepHour, "HEARTBEAT_SLEEP_HOUR")
	if v, ok := lookupInt("HEARTBEAT_SKIP_WINDOW_MINUTES"); ok {
		cfg.Heartbeat.SkipWindow = time.Duration(v) * time.Minute
	}
	setString(&cfg.Heartbeat.PromptFile, "HEARTBEAT_PROMPT_FILE")

	setBool(&cfg.Hindsight.Enabled, "HINDSIGHT_ENABLED")
	setString(&cfg.Hindsight.BaseURL, "HINDSIGHT_BASE_URL")
	setString(&cfg.Hindsight.BankID, "HINDSIGHT_BANK_ID")
	setString(&cfg.Hindsight.UserID, "HINDSIGHT_USER_ID")

	setString(&cfg.Discord.Token, "DISCORD_BOT_TOKEN")
	setString(&cfg.Discord.ChannelID, "DISCORD_CHANNEL_ID")

	setString(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}

	setString(&cfg.Gateway.Address, "GATEWAY_ADDR")
	if v := os.Getenv("PORT"); v != "" {
		cfg.Gateway.Address = ":" + v
	}
	setString(&cfg.Gateway.AuthToken, "GATEWAY_AUTH_TOKEN")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Gateway.CORSOrigins = append(cfg.Gateway.CORSOrigins, o)
			}
		}
	}

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.File, "LOG_FILE")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookupInt(key); ok {
		*dst = v
	}
}

func lookupInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func setBool(dst *bool, key string) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return
	}
	*dst = v == "true" || v == "1" || v == "yes"
}
