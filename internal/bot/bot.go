// Package bot is the owner-facing Telegram control surface: commands,
// inline-button callbacks, free-text conversation routing and the
// Notifier sink all other components send through.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/attache/internal/brain"
	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// requestButton is the single persistent reply-keyboard button.
const requestButton = "Запрос"

// Store is the persistence slice the control surface reads and writes.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetIDSet(ctx context.Context, key string) ([]int64, error)
	SetIDSet(ctx context.Context, key string, ids []int64) error
	AllHealth(ctx context.Context) ([]store.HealthCheck, error)
	GetStats(ctx context.Context) (*store.Stats, error)
	KnownChats(ctx context.Context, limit int) ([]store.ChatActivity, error)
	SetFeedbackReason(ctx context.Context, id int64, reason string) error
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
}

// TaskOps is the task-engine slice behind the task buttons and /tasks.
type TaskOps interface {
	Complete(ctx context.Context, id int64) (*store.Task, *store.Task, error)
	Cancel(ctx context.Context, id int64) error
	Postpone(ctx context.Context, id int64, days int) (*store.Task, error)
	Active(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error)
}

// TrackOps is the tracked-task slice behind the wait button.
type TrackOps interface {
	Snooze(ctx context.Context, id int64) error
}

// ClassifyOps resolves classification buttons and batch actions.
type ClassifyOps interface {
	ConfirmAuto(ctx context.Context, msgID int64) (int64, error)
	RejectAuto(ctx context.Context, msgID int64) (int64, int64, error)
	UpgradeToTask(ctx context.Context, msgID int64) (*store.Task, bool, int64, error)
	ConfirmItem(ctx context.Context, queueID int64) (*store.Task, bool, error)
	RejectItem(ctx context.Context, queueID int64) error
	UnresolvedItems(ctx context.Context) ([]store.ConfidenceItem, error)
	BatchConfirmAll(ctx context.Context) (int, error)
	BatchRejectAll(ctx context.Context) (int, error)
}

// Converser runs the owner dialogue loop.
type Converser interface {
	Reply(ctx context.Context, text string) (*bus.Notification, error)
	ReplyPhoto(ctx context.Context, caption string, photo []byte) (*bus.Notification, error)
}

// ModeOps is the LLM backend switchboard.
type ModeOps interface {
	Mode() string
	ModeLabel() string
	SetMode(ctx context.Context, mode string) error
	Usage() brain.Usage
}

// Config wires the control bot.
type Config struct {
	Token      string
	Proxy      string
	OwnerID    int64
	Store      Store
	Tasks      TaskOps
	Tracker    TrackOps
	Classifier ClassifyOps
	Convo      Converser
	Brain      ModeOps
	// Summary builds the on-demand /summary text; wired from the scheduler.
	Summary   func(ctx context.Context) (string, error)
	Accounts  []string
	Heartbeat time.Duration
	Location  *time.Location
	Now       func() time.Time
}

// Bot polls the control chat and serves the owner.
type Bot struct {
	api        *telego.Bot
	token      string
	ownerID    int64
	store      Store
	tasks      TaskOps
	tracker    TrackOps
	classifier ClassifyOps
	convo      Converser
	brain      ModeOps
	summary    func(ctx context.Context) (string, error)
	accounts   []string
	heartbeat  time.Duration
	loc        *time.Location
	now        func() time.Time

	notifier *Notifier
	feedback *feedbackRegistry

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// New creates the control bot and its Notifier.
func New(cfg Config) (*Bot, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	api, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create control bot: %w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Bot{
		api:        api,
		token:      cfg.Token,
		ownerID:    cfg.OwnerID,
		store:      cfg.Store,
		tasks:      cfg.Tasks,
		tracker:    cfg.Tracker,
		classifier: cfg.Classifier,
		convo:      cfg.Convo,
		brain:      cfg.Brain,
		summary:    cfg.Summary,
		accounts:   cfg.Accounts,
		heartbeat:  cfg.Heartbeat,
		loc:        cfg.Location,
		now:        cfg.Now,
		notifier:   NewNotifier(api, cfg.OwnerID),
		feedback:   newFeedbackRegistry(cfg.Now),
	}, nil
}

// Notifier exposes the outbound sink for wiring into other components.
func (b *Bot) Notifier() *Notifier {
	return b.notifier
}

// Run begins long polling and blocks until the context is cancelled or
// the update stream dies.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("starting control bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.mu.Lock()
	b.stop = cancel
	b.done = done
	b.mu.Unlock()
	defer close(done)
	defer cancel()

	updates, err := b.api.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("control bot connected", "username", b.api.Username())

	go b.runHeartbeat(pollCtx)

	for {
		select {
		case <-pollCtx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if pollCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("control bot updates stream closed")
			}
			switch {
			case update.Message != nil:
				b.handleMessage(pollCtx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(pollCtx, update.CallbackQuery)
			}
		}
	}
}

// Close cancels polling and waits for the update loop to exit so that
// Telegram releases the getUpdates lock before a new instance starts.
func (b *Bot) Close() error {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			slog.Warn("control bot polling did not exit within timeout")
		}
	}
	return nil
}

// handleMessage routes one owner message. Anything from another user is
// dropped without effect.
func (b *Bot) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.From.ID != b.ownerID {
		return
	}

	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/"):
		b.handleCommand(ctx, text)
	case b.offerForwardedChat(ctx, msg):
		// Forwarded group/channel message: whitelist offer sent.
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case text == requestButton:
		b.send(ctx, "Что хочешь узнать? Пиши вопрос.")
	case text != "":
		b.handleFreeText(ctx, text)
	}
}

// send is a plain-text convenience wrapper over the notifier.
func (b *Bot) send(ctx context.Context, text string) {
	if err := b.notifier.Notify(ctx, bus.Notification{Text: text, Plain: true}); err != nil {
		slog.Error("owner send failed", "error", err)
	}
}

func (b *Bot) sendTyping(ctx context.Context) {
	action := tu.ChatAction(tu.ID(b.ownerID), telego.ChatActionTyping)
	_ = b.api.SendChatAction(ctx, action)
}

// runHeartbeat upserts the bot module heartbeat for as long as polling
// runs.
func (b *Bot) runHeartbeat(ctx context.Context) {
	beat := func() {
		hbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := b.store.UpsertHeartbeat(hbCtx, "bot", "ok", "", b.now().UTC()); err != nil {
			slog.Warn("bot heartbeat failed", "error", err)
		}
	}
	beat()
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}
