// Package supervisor assembles and runs the daemon. It validates
// configuration, opens the store, builds every component in dependency
// order with explicit wiring, then drives the long-lived loops under one
// errgroup until the context is cancelled. Teardown happens in reverse:
// the loops drain first, the control bot and persona close next, the
// store closes last.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/attache/internal/bootstrap"
	"github.com/nextlevelbuilder/attache/internal/bot"
	"github.com/nextlevelbuilder/attache/internal/brain"
	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/channels/discord"
	"github.com/nextlevelbuilder/attache/internal/channels/telegram"
	"github.com/nextlevelbuilder/attache/internal/classifier"
	"github.com/nextlevelbuilder/attache/internal/config"
	"github.com/nextlevelbuilder/attache/internal/conversation"
	"github.com/nextlevelbuilder/attache/internal/ingest"
	"github.com/nextlevelbuilder/attache/internal/providers"
	"github.com/nextlevelbuilder/attache/internal/scheduler"
	"github.com/nextlevelbuilder/attache/internal/store/sqldb"
	"github.com/nextlevelbuilder/attache/internal/tasks"
	"github.com/nextlevelbuilder/attache/internal/tools"
	"github.com/nextlevelbuilder/attache/internal/tracing"
	"github.com/nextlevelbuilder/attache/internal/watchdog"
)

// Daemon owns one run of the whole process.
type Daemon struct {
	cfg     *config.Config
	version string
}

func New(cfg *config.Config, version string) *Daemon {
	return &Daemon{cfg: cfg, version: version}
}

// Run brings the daemon up and blocks until ctx is cancelled or a
// component fails fatally. A clean shutdown returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	stopTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    "attache",
		ServiceVersion: d.version,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := stopTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	st, err := sqldb.Open(cfg.Database.DSN, cfg.Database.MinConns, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var primary, fallback providers.Provider
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		var opts []providers.AnthropicOption
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		primary = providers.NewAnthropicProvider(key, opts...)
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		fallback = providers.NewOpenAIProvider(key, cfg.Providers.OpenAI.BaseURL,
			cfg.Providers.OpenAI.AssistantModel, cfg.Providers.OpenAI.Tools)
	}

	ai := brain.New(brain.Config{
		Primary:  primary,
		Fallback: fallback,
		PrimaryModels: brain.Models{
			Judge:     cfg.Providers.Anthropic.JudgeModel,
			Assistant: cfg.Providers.Anthropic.AssistantModel,
		},
		FallbackModels: brain.Models{
			Judge:     cfg.Providers.OpenAI.JudgeModel,
			Assistant: cfg.Providers.OpenAI.AssistantModel,
		},
		Mode:      cfg.Providers.Mode,
		OwnerID:   cfg.Owner.ID,
		Settings:  st,
		Health:    st,
		Heartbeat: cfg.Schedule.Heartbeat,
	})
	ai.LoadMode(ctx)

	// Everything below sends owner notices through the control bot, which
	// is built last. The proxy closes the loop.
	notify := &lateNotifier{}

	engine := tasks.NewEngine(tasks.Config{
		Store:    st,
		Notifier: notify,
		Location: loc,
	})
	tracker := tasks.NewTracker(tasks.TrackerConfig{
		Tasks:    st,
		Messages: st,
		Judge:    ai,
		Notifier: notify,
	})
	clf := classifier.New(classifier.Config{
		Store:            st,
		Tasks:            engine,
		Judge:            ai,
		Notifier:         notify,
		OwnerID:          cfg.Owner.ID,
		High:             cfg.Classify.HighThreshold,
		Low:              cfg.Classify.LowThreshold,
		UrgentDailyLimit: cfg.Classify.UrgentDailyLimit,
		ContextWindow:    cfg.Classify.ContextWindow,
		DeferDelay:       cfg.Classify.DeferDelay,
		Location:         loc,
	})

	registry := tools.NewRegistry()
	registry.Register(tools.NewCreateTaskTool(engine, loc))
	registry.Register(tools.NewListTasksTool(engine, loc))
	registry.Register(tools.NewCompleteTaskTool(engine, loc))
	registry.Register(tools.NewCancelTaskTool(engine))
	registry.Register(tools.NewUpdateTaskTool(engine, loc))
	registry.Register(tools.NewSearchMemoryTool(st, loc))
	registry.Register(tools.NewChatSummaryTool(st, loc))
	registry.Register(tools.NewManageWhitelistTool(st))
	registry.Register(tools.NewUpdatePreferencesTool(st))

	if seeded, err := bootstrap.EnsurePersonaFile(cfg.Persona.Path); err != nil {
		slog.Warn("persona template seeding failed", "path", cfg.Persona.Path, "error", err)
	} else if seeded {
		slog.Info("seeded persona template", "path", cfg.Persona.Path)
	}
	persona, err := conversation.LoadPersona(cfg.Persona.Path, cfg.Persona.Watch)
	if err != nil {
		return fmt.Errorf("load persona: %w", err)
	}
	defer persona.Close()

	accounts := make([]string, 0, len(cfg.Telegram.Upstreams)+1)
	for _, up := range cfg.Telegram.Upstreams {
		accounts = append(accounts, up.Label)
	}
	discordLabel := cfg.Discord.Label
	if discordLabel == "" {
		discordLabel = "discord"
	}
	if cfg.Discord.Token != "" {
		accounts = append(accounts, discordLabel)
	}

	convo := conversation.New(conversation.Config{
		Brain:         ai,
		Registry:      registry,
		Store:         st,
		Tasks:         engine,
		Persona:       persona,
		Accounts:      accounts,
		ScheduleNote:  scheduleNote(cfg.Schedule),
		Location:      loc,
		HistoryWindow: cfg.Conversation.HistoryWindow,
		MaxToolRounds: cfg.Conversation.MaxToolRounds,
	})

	sched := scheduler.New(scheduler.Config{
		Store:        st,
		Brain:        ai,
		Tasks:        engine,
		Tracker:      tracker,
		Batch:        clf,
		Notifier:     notify,
		OwnerID:      cfg.Owner.ID,
		BriefingHour: cfg.Schedule.BriefingHour,
		DeadlineHour: cfg.Schedule.DeadlineHour,
		BatchHour:    cfg.Schedule.BatchHour,
		DigestHour:   cfg.Schedule.DigestHour,
		WeeklyHour:   cfg.Schedule.WeeklyHour,
		Heartbeat:    cfg.Schedule.Heartbeat,
		Location:     loc,
	})
	dog := watchdog.New(watchdog.Config{
		Store:    st,
		Notifier: notify,
		Interval: cfg.Schedule.Heartbeat,
	})

	ctrl, err := bot.New(bot.Config{
		Token:      cfg.Telegram.BotToken,
		Proxy:      cfg.Telegram.Proxy,
		OwnerID:    cfg.Owner.ID,
		Store:      st,
		Tasks:      engine,
		Tracker:    tracker,
		Classifier: clf,
		Convo:      convo,
		Brain:      ai,
		Summary:    sched.Summary,
		Accounts:   accounts,
		Heartbeat:  cfg.Schedule.Heartbeat,
		Location:   loc,
	})
	if err != nil {
		return fmt.Errorf("control bot: %w", err)
	}
	defer ctrl.Close()
	notify.bind(ctrl.Notifier())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return clf.Run(gctx) })
	g.Go(func() error { return ai.RunHeartbeat(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return dog.Run(gctx) })

	for _, up := range cfg.Telegram.Upstreams {
		up := up
		runner := newIngestRunner(up.Label, st, notify, func() (ingestSession, error) {
			l, err := telegram.New(telegram.Config{
				Token:   up.Token,
				Account: up.Label,
				Proxy:   cfg.Telegram.Proxy,
			})
			if err != nil {
				return ingestSession{}, err
			}
			r := ingest.New(ingest.Config{
				Listener:   l,
				Store:      st,
				Classifier: clf,
				Tracker:    tracker,
				Notifier:   notify,
				OwnerID:    cfg.Owner.ID,
				Heartbeat:  cfg.Schedule.Heartbeat,
			})
			return ingestSession{run: r.Run, close: l.Close}, nil
		})
		g.Go(func() error { return runner.run(gctx) })
	}
	if cfg.Discord.Token != "" {
		runner := newIngestRunner(discordLabel, st, notify, func() (ingestSession, error) {
			l, err := discord.New(discord.Config{
				Token:   cfg.Discord.Token,
				Account: discordLabel,
			})
			if err != nil {
				return ingestSession{}, err
			}
			r := ingest.New(ingest.Config{
				Listener:   l,
				Store:      st,
				Classifier: clf,
				Tracker:    tracker,
				Notifier:   notify,
				OwnerID:    cfg.Owner.ID,
				Heartbeat:  cfg.Schedule.Heartbeat,
			})
			return ingestSession{run: r.Run, close: l.Close}, nil
		})
		g.Go(func() error { return runner.run(gctx) })
	}

	slog.Info("daemon up",
		"version", d.version,
		"owner", cfg.Owner.ID,
		"accounts", accounts,
		"mode", ai.ModeLabel())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("daemon stopped")
	return nil
}

// scheduleNote renders the daily schedule for the dialogue state block.
func scheduleNote(s config.ScheduleConfig) string {
	return fmt.Sprintf("брифинг %02d:00, контроль дедлайнов %02d:00, batch-review %02d:00, дайджест %02d:00, недельный обзор вс %02d:00",
		s.BriefingHour, s.DeadlineHour, s.BatchHour, s.DigestHour, s.WeeklyHour)
}

// lateNotifier defers sink binding until the control bot exists. The
// components built before the bot hold this proxy; nothing sends through
// it until the loops start, which happens after bind.
type lateNotifier struct {
	mu   sync.RWMutex
	sink bus.Notifier
}

func (n *lateNotifier) bind(sink bus.Notifier) {
	n.mu.Lock()
	n.sink = sink
	n.mu.Unlock()
}

func (n *lateNotifier) Notify(ctx context.Context, note bus.Notification) error {
	n.mu.RLock()
	sink := n.sink
	n.mu.RUnlock()
	if sink == nil {
		return fmt.Errorf("notifier is not bound")
	}
	return sink.Notify(ctx, note)
}

var _ bus.Notifier = (*lateNotifier)(nil)
