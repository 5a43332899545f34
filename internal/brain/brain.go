// Package brain is the single gateway for LLM traffic. It owns backend
// selection (primary vs fallback), the one-shot switch to the alternate
// backend when the active one is exhausted, token/cost accounting and the
// cheap judge tier used by the classifier and the task tracker.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/attache/internal/providers"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// Backend modes. "primary" routes to the Anthropic provider, "fallback" to
// the OpenAI-compatible one. The choice is persisted in settings so it
// survives restarts.
const (
	ModePrimary  = "primary"
	ModeFallback = "fallback"
)

const (
	tierJudge     = "judge"
	tierAssistant = "assistant"

	judgeMaxTokens = 1024

	heartbeatModule = "brain"
)

// Models names the model per tier for one backend.
type Models struct {
	Judge     string
	Assistant string
}

// Config wires a Brain. Primary or Fallback may be nil when the backend is
// not configured; at least one must be present.
type Config struct {
	Primary        providers.Provider
	Fallback       providers.Provider
	PrimaryModels  Models
	FallbackModels Models
	Mode           string             // initial mode, ModePrimary when empty
	OwnerID        int64              // marks the owner's lines when rendering dialogues
	Settings       store.SettingStore // nil = mode not persisted
	Health         store.HealthStore  // nil = no heartbeat
	Heartbeat      time.Duration
}

// Usage is the cumulative token/cost ledger since process start.
type Usage struct {
	Calls        int
	InputTokens  int
	OutputTokens int
	Cost         float64 // estimated USD
	LastCost     float64 // estimate of the most recent call
}

// Brain fronts the two LLM backends.
type Brain struct {
	primary        providers.Provider
	fallback       providers.Provider
	primaryModels  Models
	fallbackModels Models
	ownerID        int64
	settings       store.SettingStore
	health         store.HealthStore
	heartbeat      time.Duration

	modeMu sync.RWMutex
	mode   string

	usageMu sync.Mutex
	usage   Usage
}

// New builds a Brain. Mode defaults to primary; when only the fallback
// backend is configured it becomes the active one regardless of mode.
func New(cfg Config) *Brain {
	mode := cfg.Mode
	if mode != ModePrimary && mode != ModeFallback {
		mode = ModePrimary
	}
	hb := cfg.Heartbeat
	if hb <= 0 {
		hb = 5 * time.Minute
	}
	return &Brain{
		primary:        cfg.Primary,
		fallback:       cfg.Fallback,
		primaryModels:  cfg.PrimaryModels,
		fallbackModels: cfg.FallbackModels,
		ownerID:        cfg.OwnerID,
		settings:       cfg.Settings,
		health:         cfg.Health,
		heartbeat:      hb,
		mode:           mode,
	}
}

// LoadMode restores the persisted backend choice. Call once after the store
// is ready; absence or errors leave the configured mode in place.
func (b *Brain) LoadMode(ctx context.Context) {
	if b.settings == nil {
		return
	}
	v, err := b.settings.GetSetting(ctx, store.SettingAIMode)
	if err != nil || (v != ModePrimary && v != ModeFallback) {
		return
	}
	b.modeMu.Lock()
	b.mode = v
	b.modeMu.Unlock()
}

// Mode returns the active backend mode.
func (b *Brain) Mode() string {
	b.modeMu.RLock()
	defer b.modeMu.RUnlock()
	return b.mode
}

// SetMode switches the active backend and persists the choice.
func (b *Brain) SetMode(ctx context.Context, mode string) error {
	if mode != ModePrimary && mode != ModeFallback {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if mode == ModePrimary && b.primary == nil {
		return fmt.Errorf("primary backend is not configured")
	}
	if mode == ModeFallback && b.fallback == nil {
		return fmt.Errorf("fallback backend is not configured")
	}
	b.modeMu.Lock()
	b.mode = mode
	b.modeMu.Unlock()
	if b.settings != nil {
		if err := b.settings.SetSetting(ctx, store.SettingAIMode, mode); err != nil {
			return fmt.Errorf("persist mode: %w", err)
		}
	}
	slog.Info("llm backend switched", "mode", mode)
	return nil
}

// ModeLabel renders the active backend for the owner, e.g.
// "primary (anthropic, claude-sonnet-4-5)".
func (b *Brain) ModeLabel() string {
	active, _ := b.pick()
	if active == nil {
		return "no backend configured"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Mode(), active.Name(), b.modelFor(active, tierAssistant))
}

// SupportsTools reports whether the active backend accepts tool definitions.
func (b *Brain) SupportsTools() bool {
	active, _ := b.pick()
	return active != nil && active.SupportsTools()
}

// Usage returns a snapshot of the cumulative ledger.
func (b *Brain) Usage() Usage {
	b.usageMu.Lock()
	defer b.usageMu.Unlock()
	return b.usage
}

// Chat runs an assistant-tier call with the active backend, falling back to
// the alternate once when the active one fails after its own retries.
func (b *Brain) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return b.chatTier(ctx, tierAssistant, req)
}

// Generate is a plain assistant-tier completion without tools, used by the
// scheduled briefing/digest composers.
func (b *Brain) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := providers.ChatRequest{
		Messages:  []providers.Message{{Role: "user", Content: user}},
		MaxTokens: maxTokens,
	}
	if system != "" {
		req.System = []providers.SystemBlock{{Text: system}}
	}
	resp, err := b.chatTier(ctx, tierAssistant, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// judgeChat runs a deterministic cheap-tier completion.
func (b *Brain) judgeChat(ctx context.Context, system, user string) (string, error) {
	temp := 0.0
	req := providers.ChatRequest{
		Messages:    []providers.Message{{Role: "user", Content: user}},
		MaxTokens:   judgeMaxTokens,
		Temperature: &temp,
	}
	if system != "" {
		req.System = []providers.SystemBlock{{Text: system}}
	}
	resp, err := b.chatTier(ctx, tierJudge, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (b *Brain) chatTier(ctx context.Context, tier string, req providers.ChatRequest) (*providers.ChatResponse, error) {
	active, alternate := b.pick()
	if active == nil {
		return nil, fmt.Errorf("no LLM backend configured")
	}
	if req.Model == "" {
		req.Model = b.modelFor(active, tier)
	}

	resp, err := b.call(ctx, active, req)
	if err == nil {
		return resp, nil
	}
	if alternate == nil || ctx.Err() != nil {
		return nil, err
	}
	if len(req.Tools) > 0 && !alternate.SupportsTools() {
		return nil, err
	}

	slog.Warn("llm backend failed, trying alternate",
		"from", active.Name(), "to", alternate.Name(), "error", err)
	req.Model = b.modelFor(alternate, tier)
	resp, altErr := b.call(ctx, alternate, req)
	if altErr != nil {
		// Surface the original failure; the alternate was best-effort.
		return nil, err
	}
	return resp, nil
}

func (b *Brain) call(ctx context.Context, p providers.Provider, req providers.ChatRequest) (*providers.ChatResponse, error) {
	ctx, span := otel.Tracer("attache/brain").Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	start := time.Now()
	resp, err := p.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.output_tokens", resp.Usage.CompletionTokens),
		)
	}
	span.SetStatus(codes.Ok, "")

	b.record(req.Model, resp.Usage)
	slog.Debug("llm call",
		"provider", p.Name(), "model", req.Model,
		"duration", time.Since(start).Round(time.Millisecond),
		"finish", resp.FinishReason)
	return resp, nil
}

// pick returns the active backend and the alternate per the current mode.
// A missing backend never becomes active.
func (b *Brain) pick() (active, alternate providers.Provider) {
	if b.Mode() == ModeFallback && b.fallback != nil {
		return b.fallback, b.primary
	}
	if b.primary != nil {
		return b.primary, b.fallback
	}
	return b.fallback, nil
}

func (b *Brain) modelFor(p providers.Provider, tier string) string {
	models := b.primaryModels
	if p == b.fallback {
		models = b.fallbackModels
	}
	m := models.Assistant
	if tier == tierJudge {
		m = models.Judge
	}
	if m == "" {
		m = p.DefaultModel()
	}
	return m
}

// Per-MTok (input, output) USD prices, matched by substring. Unknown models
// fall back to the sonnet rate.
var modelPrices = []struct {
	match string
	in    float64
	out   float64
}{
	{"haiku", 0.80, 4.0},
	{"opus", 15.0, 75.0},
	{"sonnet", 3.0, 15.0},
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.0},
}

func estimateCost(model string, in, out int) float64 {
	inPrice, outPrice := 3.0, 15.0
	lower := strings.ToLower(model)
	for _, p := range modelPrices {
		if strings.Contains(lower, p.match) {
			inPrice, outPrice = p.in, p.out
			break
		}
	}
	return (float64(in)*inPrice + float64(out)*outPrice) / 1_000_000
}

func (b *Brain) record(model string, u *providers.Usage) {
	b.usageMu.Lock()
	defer b.usageMu.Unlock()
	b.usage.Calls++
	if u == nil {
		b.usage.LastCost = 0
		return
	}
	cost := estimateCost(model, u.PromptTokens, u.CompletionTokens)
	b.usage.InputTokens += u.PromptTokens
	b.usage.OutputTokens += u.CompletionTokens
	b.usage.Cost += cost
	b.usage.LastCost = cost
}

// RunHeartbeat upserts the brain heartbeat until ctx is cancelled. Run it
// under the supervisor's errgroup.
func (b *Brain) RunHeartbeat(ctx context.Context) error {
	if b.health == nil {
		<-ctx.Done()
		return nil
	}
	tick := time.NewTicker(b.heartbeat)
	defer tick.Stop()
	beat := func() {
		if err := b.health.UpsertHeartbeat(ctx, heartbeatModule, "ok", "", time.Now().UTC()); err != nil {
			slog.Warn("brain heartbeat failed", "error", err)
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			beat()
		}
	}
}
