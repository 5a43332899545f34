// Package watchdog watches module heartbeats and tells the owner when a
// module goes quiet. Each outage gets at most three alerts, then silence
// until the module recovers; recovery is announced once. Alert texts
// carry an operator instruction matched against the module's last
// recorded error.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	// maxMissedBeats missed intervals mark a module as down.
	maxMissedBeats = 3
	// maxAlerts per outage, then quiet until recovery.
	maxAlerts = 3

	heartbeatModule = "watchdog"
)

// defaultModules is the monitored set when the config names none.
var defaultModules = []string{"listener", "bot", "brain", "scheduler"}

// Store reads module health and records the watchdog's own pulse.
type Store interface {
	AllHealth(ctx context.Context) ([]store.HealthCheck, error)
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
}

// Config wires the watchdog.
type Config struct {
	Store    Store
	Notifier bus.Notifier
	Modules  []string
	Interval time.Duration // expected heartbeat cadence, also the scan cadence
	Now      func() time.Time
}

// Watchdog tracks per-module outage state between scans.
type Watchdog struct {
	store    Store
	notifier bus.Notifier
	modules  []string
	interval time.Duration
	now      func() time.Time

	alerts map[string]int
	down   map[string]bool
}

// New builds a watchdog with config defaults filled in.
func New(cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Modules) == 0 {
		cfg.Modules = defaultModules
	}
	return &Watchdog{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		modules:  cfg.Modules,
		interval: cfg.Interval,
		now:      cfg.Now,
		alerts:   make(map[string]int),
		down:     make(map[string]bool),
	}
}

// Run scans once per interval until ctx is cancelled. The first scan
// waits a full interval so freshly started modules have beaten at least
// once and stale rows from a previous run cannot trigger boot alerts.
func (w *Watchdog) Run(ctx context.Context) error {
	slog.Info("watchdog started", "modules", w.modules, "interval", w.interval)
	w.beat(ctx)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("watchdog stopped")
			return nil
		case <-tick.C:
			w.scan(ctx)
			w.beat(ctx)
		}
	}
}

func (w *Watchdog) beat(ctx context.Context) {
	if err := w.store.UpsertHeartbeat(ctx, heartbeatModule, "ok", "", w.now().UTC()); err != nil {
		slog.Warn("watchdog heartbeat failed", "error", err)
	}
}

// scan compares every monitored module's last heartbeat against the
// down threshold and drives the alert/recovery transitions.
func (w *Watchdog) scan(ctx context.Context) {
	health, err := w.store.AllHealth(ctx)
	if err != nil {
		slog.Error("health scan failed", "error", err)
		return
	}
	byModule := make(map[string]store.HealthCheck, len(health))
	for _, h := range health {
		byModule[h.Module] = h
	}

	now := w.now().UTC()
	for _, name := range w.modules {
		h, ok := byModule[name]
		if !ok {
			// Never beaten. Either just started or not configured; both
			// are someone else's problem.
			continue
		}
		elapsed := now.Sub(h.Timestamp)
		if elapsed >= time.Duration(maxMissedBeats)*w.interval {
			w.alertDown(ctx, name, &h, elapsed)
			continue
		}
		if w.down[name] {
			delete(w.down, name)
			delete(w.alerts, name)
			slog.Info("module recovered", "module", name)
			w.notify(ctx, fmt.Sprintf("Модуль %s восстановился.", name))
		}
		if h.Status != "ok" && h.Error != "" {
			slog.Warn("module reported error", "module", name, "error", h.Error)
		}
	}
}

func (w *Watchdog) alertDown(ctx context.Context, name string, h *store.HealthCheck, elapsed time.Duration) {
	w.down[name] = true
	if w.alerts[name] >= maxAlerts {
		return
	}
	w.alerts[name]++

	errText := h.Error
	if errText == "" {
		errText = "Неизвестная ошибка"
	}
	slog.Error("module down", "module", name, "silent_for", elapsed.Round(time.Minute), "error", errText)

	text := fmt.Sprintf(
		"ПРОБЛЕМА: Модуль %s не отвечает (%d мин).\nОшибка: \"%s\"\n\n%s\n\nУведомление %d/%d (больше не повторю до восстановления).",
		name, int(elapsed.Minutes()), errText, instructionFor(errText), w.alerts[name], maxAlerts)
	w.notify(ctx, text)
}

func (w *Watchdog) notify(ctx context.Context, text string) {
	if err := w.notifier.Notify(ctx, bus.Notification{Text: text, Plain: true}); err != nil {
		slog.Error("watchdog notify failed", "error", err)
	}
}

// instruction pairs a known error substring with what the owner should do.
// Checked in order; the first match wins.
var instructions = []struct {
	substr string
	text   string
}{
	{"session expired",
		"Telegram отклонил авторизацию аккаунта.\n" +
			"Без этого чтение чатов не работает.\n\n" +
			"ЧТО ДЕЛАТЬ:\n" +
			"1. Проверь токен аккаунта в конфиге\n" +
			"2. Перезапусти демон\n" +
			"3. Listener переподключится автоматически."},
	{"connection refused",
		"База данных не принимает подключения.\n\n" +
			"ЧТО ДЕЛАТЬ:\n" +
			"1. Проверь, запущен ли сервер БД\n" +
			"2. Подожди 30 сек, модули переподключатся автоматически."},
	{"rate limit",
		"API вернул ошибку лимита запросов.\n" +
			"Подожди 60 секунд, автоповтор сработает.\n" +
			"Если повторяется — проверь режим через /mode."},
	{"disk space",
		"Диск заполнен.\n\n" +
			"ЧТО ДЕЛАТЬ:\n" +
			"1. Освободи место на сервере\n" +
			"2. Размер БД видно через /admin."},
	{"timeout",
		"Модель не ответила вовремя.\n\n" +
			"ЧТО ДЕЛАТЬ:\n" +
			"1. Проверь режим: /mode\n" +
			"2. Переключи на резервный: напиши «переключи на резервный»\n" +
			"3. Или подожди — возможно, временная перегрузка."},
}

// instructionFor finds the operator instruction for an error text.
func instructionFor(errText string) string {
	lower := strings.ToLower(errText)
	for _, in := range instructions {
		if strings.Contains(lower, in.substr) {
			return in.text
		}
	}
	return "Инструкция не найдена для этой ошибки.\nСкопируй текст ошибки и проверь логи демона."
}
