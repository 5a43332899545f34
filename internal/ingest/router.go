// Package ingest turns raw upstream chat events into persisted messages
// and downstream work: classification dispatch, new-contact notices and
// tracked-task rechecks. Events of one chat are handled in arrival order;
// chats proceed independently.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	// classifyMinRunes gates classification: anything this short is noise
	// ("ок", "да", "+").
	classifyMinRunes = 5

	setCacheTTL   = 60 * time.Second
	titleCacheTTL = 5 * time.Minute
)

// Listener is the upstream transport contract. Adapters deliver normalized
// events until the context is cancelled.
type Listener interface {
	Start(ctx context.Context, handler bus.EventHandler) error
	// ChatTitle resolves a chat id to its current title, for events that
	// arrive without one.
	ChatTitle(ctx context.Context, chatID int64) (string, error)
	Close() error
}

// Store is the persistence slice the router writes.
type Store interface {
	SaveMessage(ctx context.Context, m *store.Message) (int64, bool, error)
	MarkProcessed(ctx context.Context, id int64) error
	GetIDSet(ctx context.Context, key string) ([]int64, error)
	EnsureContact(ctx context.Context, c *store.Contact) (bool, error)
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
}

// Classifier receives persisted private messages.
type Classifier interface {
	Process(ctx context.Context, m *store.Message) error
}

// Tracker is poked on non-owner chat activity.
type Tracker interface {
	OnChatActivity(ctx context.Context, chatID int64)
}

// Config wires a Router.
type Config struct {
	Listener   Listener
	Store      Store
	Classifier Classifier
	Tracker    Tracker // nil disables activity pokes
	Notifier   bus.Notifier
	OwnerID    int64
	Heartbeat  time.Duration
	Now        func() time.Time
}

// Router filters, persists and dispatches upstream events.
type Router struct {
	listener   Listener
	store      Store
	classifier Classifier
	tracker    Tracker
	notifier   bus.Notifier
	ownerID    int64
	heartbeat  time.Duration
	now        func() time.Time

	sets   *setCache
	titles *titleCache

	queues *chatQueues
}

func New(cfg Config) *Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 5 * time.Minute
	}
	r := &Router{
		listener:   cfg.Listener,
		store:      cfg.Store,
		classifier: cfg.Classifier,
		tracker:    cfg.Tracker,
		notifier:   cfg.Notifier,
		ownerID:    cfg.OwnerID,
		heartbeat:  cfg.Heartbeat,
		now:        cfg.Now,
		sets:       newSetCache(cfg.Store, setCacheTTL, cfg.Now),
		titles:     newTitleCache(cfg.Listener, titleCacheTTL, cfg.Now),
	}
	r.queues = newChatQueues(r.process)
	return r
}

// Run starts the listener and blocks until it stops. The listener heartbeat
// runs for exactly as long as the listener does, so a dead connection shows
// up as heartbeat staleness.
func (r *Router) Run(ctx context.Context) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.runHeartbeat(hbCtx)
	return r.listener.Start(ctx, r.Handle)
}

// Handle enqueues one upstream event. It never blocks the listener: the
// event joins its chat's FIFO queue and is processed on a queue goroutine.
func (r *Router) Handle(ctx context.Context, ev bus.Event) {
	r.queues.enqueue(ctx, ev)
}

// process is the per-event pipeline. Errors are logged and swallowed; the
// message stays unprocessed and is never retried.
func (r *Router) process(ctx context.Context, ev bus.Event) {
	if r.drop(ctx, ev) {
		return
	}

	text := ev.Text
	if text == "" && ev.Media != bus.MediaNone {
		text = fmt.Sprintf("[%s]", ev.Media)
	}
	if text == "" {
		return
	}

	title := r.resolveTitle(ctx, ev)
	msg := &store.Message{
		UpstreamMsgID: ev.MsgID,
		ChatID:        ev.ChatID,
		ChatTitle:     title,
		SenderID:      ev.Sender.ID,
		SenderName:    ev.Sender.Name,
		Text:          text,
		Media:         string(ev.Media),
		Timestamp:     ev.Timestamp,
		Account:       ev.Account,
	}
	id, inserted, err := r.store.SaveMessage(ctx, msg)
	if err != nil {
		slog.Error("message not persisted", "chat_id", ev.ChatID, "msg_id", ev.MsgID, "error", err)
		return
	}
	if !inserted {
		// Replay of an already-captured update.
		return
	}
	msg.ID = id

	if ev.ChatKind == bus.ChatGroup {
		r.noticeNewContact(ctx, ev, title)
	}
	if r.tracker != nil && ev.Sender.ID != r.ownerID {
		go r.tracker.OnChatActivity(ctx, ev.ChatID)
	}

	if r.shouldClassify(ev, text) {
		go func() {
			if err := r.classifier.Process(ctx, msg); err != nil {
				slog.Error("classification failed", "message_id", msg.ID, "error", err)
			}
			r.markProcessed(ctx, msg.ID)
		}()
		return
	}
	r.markProcessed(ctx, msg.ID)
}

// drop applies the hard filters and the monitored/blacklist policy.
func (r *Router) drop(ctx context.Context, ev bus.Event) bool {
	switch {
	case ev.ChatKind == bus.ChatChannel, ev.Sender.IsChannel:
		return true // channel reposts
	case ev.Media == bus.MediaSticker:
		return true
	case ev.Media == bus.MediaAnimation && ev.Text == "":
		return true // silent GIF
	case ev.Sender.IsBot && ev.ChatKind == bus.ChatPrivate:
		return true
	}

	monitored := (ev.ChatKind == bus.ChatPrivate && !ev.Sender.IsBot) ||
		r.sets.contains(ctx, store.SettingWhitelist, ev.ChatID)
	if !monitored {
		return true
	}
	if r.sets.contains(ctx, store.SettingBlacklist, ev.ChatID) ||
		r.sets.contains(ctx, store.SettingBlacklist, ev.Sender.ID) {
		return true
	}
	return false
}

// shouldClassify gates the judge: private traffic only, long enough to
// carry intent, and never the owner's own control chat with the listener.
func (r *Router) shouldClassify(ev bus.Event, text string) bool {
	if ev.ChatKind != bus.ChatPrivate {
		return false
	}
	if ev.ChatID == r.ownerID || ev.Sender.ID == r.ownerID {
		return false
	}
	return utf8.RuneCountInString(text) > classifyMinRunes
}

// noticeNewContact sends the one-time "new contact" notification for a
// first-seen sender in a monitored group.
func (r *Router) noticeNewContact(ctx context.Context, ev bus.Event, title string) {
	if ev.Sender.ID == r.ownerID || ev.Sender.IsBot || ev.Sender.IsChannel {
		return
	}
	created, err := r.store.EnsureContact(ctx, &store.Contact{
		Account:    ev.Account,
		SenderID:   ev.Sender.ID,
		SenderName: ev.Sender.Name,
		ChatID:     ev.ChatID,
		FirstSeen:  r.now().UTC(),
	})
	if err != nil {
		slog.Warn("contact upsert failed", "sender_id", ev.Sender.ID, "error", err)
		return
	}
	if !created {
		return
	}
	where := title
	if where == "" {
		where = fmt.Sprintf("чате %d", ev.ChatID)
	}
	n := bus.Notification{
		Text: fmt.Sprintf("👋 Новый контакт: <b>%s</b> в «%s»", ev.Sender.Name, where),
		Keyboard: [][]bus.Button{{
			{Label: "👁 Следить", Intent: bus.ContactMonitor{ContactID: ev.Sender.ID}},
			{Label: "💾 Запомнить", Intent: bus.ContactSave{ContactID: ev.Sender.ID}},
			{Label: "🚫 Игнор", Intent: bus.ContactIgnore{ContactID: ev.Sender.ID}},
		}},
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		slog.Warn("new contact notice failed", "error", err)
	}
}

func (r *Router) resolveTitle(ctx context.Context, ev bus.Event) string {
	if ev.ChatTitle != "" {
		return ev.ChatTitle
	}
	if ev.ChatKind == bus.ChatPrivate {
		return ev.Sender.Name
	}
	return r.titles.resolve(ctx, ev.ChatID)
}

func (r *Router) markProcessed(ctx context.Context, id int64) {
	if err := r.store.MarkProcessed(ctx, id); err != nil {
		slog.Warn("mark processed failed", "message_id", id, "error", err)
	}
}

func (r *Router) runHeartbeat(ctx context.Context) {
	tick := time.NewTicker(r.heartbeat)
	defer tick.Stop()
	beat := func() {
		if err := r.store.UpsertHeartbeat(ctx, "listener", "ok", "", r.now().UTC()); err != nil {
			slog.Warn("listener heartbeat failed", "error", err)
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat()
		}
	}
}
