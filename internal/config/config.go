package config

import (
	"fmt"
	"time"
)

// Config is the full runtime configuration. Values come from an optional
// JSON5 config file overlaid with ATTACHE_* environment variables (env wins).
// Secrets are expected from the environment only.
type Config struct {
	Owner        OwnerConfig        `json:"owner"`
	Telegram     TelegramConfig     `json:"telegram"`
	Discord      DiscordConfig      `json:"discord"`
	Providers    ProvidersConfig    `json:"providers"`
	Database     DatabaseConfig     `json:"database"`
	Classify     ClassifyConfig     `json:"classify"`
	Schedule     ScheduleConfig     `json:"schedule"`
	Conversation ConversationConfig `json:"conversation"`
	Persona      PersonaConfig      `json:"persona"`
	Tracing      TracingConfig      `json:"tracing"`
}

// OwnerConfig identifies the single human the daemon serves.
type OwnerConfig struct {
	ID       int64  `json:"id"`       // Telegram user id of the owner
	Timezone string `json:"timezone"` // IANA zone, e.g. "Europe/Moscow"
}

// UpstreamAccount is one monitored chat account.
type UpstreamAccount struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// TelegramConfig covers both the owner-facing control bot and the
// upstream listener accounts.
type TelegramConfig struct {
	BotToken  string            `json:"bot_token"`
	Upstreams []UpstreamAccount `json:"upstreams"`
	Proxy     string            `json:"proxy"` // optional proxy URL for both directions
}

// DiscordConfig enables the optional secondary upstream listener.
type DiscordConfig struct {
	Token string `json:"token"`
	Label string `json:"label"`
}

// ProvidersConfig holds the two LLM backends. Anthropic is the primary;
// the OpenAI-compatible backend is the fallback and by default does not
// serve tool-use requests.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `json:"anthropic"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Mode      string          `json:"mode"` // initial backend: "primary" or "fallback"
}

type AnthropicConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	JudgeModel     string `json:"judge_model"`
	AssistantModel string `json:"assistant_model"`
}

type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	JudgeModel     string `json:"judge_model"`
	AssistantModel string `json:"assistant_model"`
	Tools          bool   `json:"tools"` // allow the conversation loop on this backend
}

// DatabaseConfig: the DSN decides the driver. postgres:// DSNs use pgx,
// sqlite: DSNs use the embedded sqlite driver (development mode).
type DatabaseConfig struct {
	DSN      string `json:"-"`
	MinConns int    `json:"min_conns"`
	MaxConns int    `json:"max_conns"`
}

// ClassifyConfig tunes the confidence pipeline.
type ClassifyConfig struct {
	HighThreshold    int           `json:"high_threshold"`     // strictly above → HIGH band
	LowThreshold     int           `json:"low_threshold"`      // strictly below → LOW band
	UrgentDailyLimit int           `json:"urgent_daily_limit"` // urgent prompts per day
	ContextWindow    int           `json:"context_window"`     // chat messages fed to the judge
	DeferDelay       time.Duration `json:"-"`                  // MEDIUM deferred-prompt delay
}

// ScheduleConfig holds the wall-clock hours (owner zone) of the daily jobs.
type ScheduleConfig struct {
	BriefingHour int           `json:"briefing_hour"`
	DeadlineHour int           `json:"deadline_hour"`
	BatchHour    int           `json:"batch_hour"`
	DigestHour   int           `json:"digest_hour"`
	WeeklyHour   int           `json:"weekly_hour"` // runs on Sunday
	Heartbeat    time.Duration `json:"-"`
}

// ConversationConfig bounds the owner dialogue loop.
type ConversationConfig struct {
	HistoryWindow int `json:"history_window"` // turns loaded as context
	MaxToolRounds int `json:"max_tool_rounds"`
}

// PersonaConfig points at the static system-prompt file. When Watch is set
// the file is hot-reloaded on change.
type PersonaConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

// TracingConfig enables the optional OTLP trace exporter.
type TracingConfig struct {
	Endpoint string `json:"endpoint"` // host:port of an OTLP collector; empty = disabled
	Protocol string `json:"protocol"` // "grpc" (default) or "http"
	Insecure bool   `json:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Owner: OwnerConfig{
			Timezone: "UTC",
		},
		Providers: ProvidersConfig{
			Anthropic: AnthropicConfig{
				JudgeModel:     "claude-haiku-4-5",
				AssistantModel: "claude-sonnet-4-5",
			},
			OpenAI: OpenAIConfig{
				JudgeModel:     "gpt-4o-mini",
				AssistantModel: "gpt-4o",
			},
			Mode: "primary",
		},
		Database: DatabaseConfig{
			MinConns: 2,
			MaxConns: 10,
		},
		Classify: ClassifyConfig{
			HighThreshold:    80,
			LowThreshold:     50,
			UrgentDailyLimit: 10,
			ContextWindow:    10,
			DeferDelay:       5 * time.Minute,
		},
		Schedule: ScheduleConfig{
			BriefingHour: 9,
			DeadlineHour: 14,
			BatchHour:    17,
			DigestHour:   21,
			WeeklyHour:   10,
			Heartbeat:    5 * time.Minute,
		},
		Conversation: ConversationConfig{
			HistoryWindow: 20,
			MaxToolRounds: 5,
		},
		Persona: PersonaConfig{
			Path: "persona.md",
		},
		Tracing: TracingConfig{
			Protocol: "grpc",
		},
	}
}

// Location resolves the owner's IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Owner.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Owner.Timezone)
}

// Validate refuses startup on missing mandatory values.
func (c *Config) Validate() error {
	if c.Owner.ID == 0 {
		return fmt.Errorf("owner id is not set (ATTACHE_OWNER_ID)")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("control bot token is not set (ATTACHE_TELEGRAM_TOKEN)")
	}
	if len(c.Telegram.Upstreams) == 0 && c.Discord.Token == "" {
		return fmt.Errorf("no upstream account configured (ATTACHE_UPSTREAM_TOKEN or ATTACHE_DISCORD_TOKEN)")
	}
	for i, u := range c.Telegram.Upstreams {
		if u.Token == "" {
			return fmt.Errorf("upstream account %d has an empty token", i)
		}
	}
	if c.Providers.Anthropic.APIKey == "" && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("no LLM backend configured (ATTACHE_ANTHROPIC_API_KEY)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is not set (ATTACHE_DB_DSN)")
	}
	if c.Classify.LowThreshold < 0 || c.Classify.HighThreshold > 100 ||
		c.Classify.LowThreshold > c.Classify.HighThreshold {
		return fmt.Errorf("confidence thresholds out of order: low=%d high=%d",
			c.Classify.LowThreshold, c.Classify.HighThreshold)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid owner timezone %q: %w", c.Owner.Timezone, err)
	}
	switch c.Providers.Mode {
	case "primary", "fallback":
	default:
		return fmt.Errorf("providers.mode must be primary or fallback, got %q", c.Providers.Mode)
	}
	return nil
}
