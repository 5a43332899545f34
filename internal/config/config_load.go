package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: the defaults plus env are enough
// for a fully env-driven deployment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v := os.Getenv("ATTACHE_OWNER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Owner.ID = id
		}
	}
	envStr("ATTACHE_TZ", &c.Owner.Timezone)

	envStr("ATTACHE_TELEGRAM_TOKEN", &c.Telegram.BotToken)
	envStr("ATTACHE_TELEGRAM_PROXY", &c.Telegram.Proxy)
	if v := os.Getenv("ATTACHE_UPSTREAM_ACCOUNTS"); v != "" {
		c.Telegram.Upstreams = parseUpstreams(v)
	} else if v := os.Getenv("ATTACHE_UPSTREAM_TOKEN"); v != "" {
		label := os.Getenv("ATTACHE_UPSTREAM_LABEL")
		if label == "" {
			label = "primary"
		}
		c.Telegram.Upstreams = []UpstreamAccount{{Label: label, Token: v}}
	}

	envStr("ATTACHE_DISCORD_TOKEN", &c.Discord.Token)
	if c.Discord.Token != "" && c.Discord.Label == "" {
		c.Discord.Label = "discord"
	}

	envStr("ATTACHE_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("ATTACHE_ANTHROPIC_BASE_URL", &c.Providers.Anthropic.BaseURL)
	envStr("ATTACHE_JUDGE_MODEL", &c.Providers.Anthropic.JudgeModel)
	envStr("ATTACHE_ASSISTANT_MODEL", &c.Providers.Anthropic.AssistantModel)
	envStr("ATTACHE_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("ATTACHE_OPENAI_BASE_URL", &c.Providers.OpenAI.BaseURL)
	envStr("ATTACHE_AI_MODE", &c.Providers.Mode)

	envStr("ATTACHE_DB_DSN", &c.Database.DSN)
	envInt("ATTACHE_DB_MAX_CONNS", &c.Database.MaxConns)

	envInt("ATTACHE_CONFIDENCE_HIGH", &c.Classify.HighThreshold)
	envInt("ATTACHE_CONFIDENCE_LOW", &c.Classify.LowThreshold)
	envInt("ATTACHE_URGENT_DAILY_LIMIT", &c.Classify.UrgentDailyLimit)
	envInt("ATTACHE_CONTEXT_WINDOW", &c.Classify.ContextWindow)
	if v := os.Getenv("ATTACHE_DEFER_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Classify.DeferDelay = d
		}
	}

	envInt("ATTACHE_BRIEFING_HOUR", &c.Schedule.BriefingHour)
	envInt("ATTACHE_DEADLINE_HOUR", &c.Schedule.DeadlineHour)
	envInt("ATTACHE_BATCH_HOUR", &c.Schedule.BatchHour)
	envInt("ATTACHE_DIGEST_HOUR", &c.Schedule.DigestHour)
	envInt("ATTACHE_WEEKLY_HOUR", &c.Schedule.WeeklyHour)

	envInt("ATTACHE_HISTORY_WINDOW", &c.Conversation.HistoryWindow)
	envInt("ATTACHE_MAX_TOOL_ROUNDS", &c.Conversation.MaxToolRounds)

	envStr("ATTACHE_PERSONA_PATH", &c.Persona.Path)

	envStr("ATTACHE_OTLP_ENDPOINT", &c.Tracing.Endpoint)
	envStr("ATTACHE_OTLP_PROTOCOL", &c.Tracing.Protocol)
}

// parseUpstreams parses "label=token,label2=token2". The separator is "="
// because Telegram tokens themselves contain a colon. A bare token without
// a label gets a positional name.
func parseUpstreams(raw string) []UpstreamAccount {
	var out []UpstreamAccount
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, token, found := strings.Cut(part, "=")
		if !found || token == "" {
			out = append(out, UpstreamAccount{Label: fmt.Sprintf("account%d", i+1), Token: part})
			continue
		}
		out = append(out, UpstreamAccount{Label: label, Token: token})
	}
	return out
}
