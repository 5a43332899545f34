// Package classifier runs inbound private messages through the cheap judge
// tier and acts on the confidence verdict: HIGH creates the task outright,
// MEDIUM queues an owner prompt (deferred five minutes unless urgent), LOW
// sends an informational notice. Every owner verdict lands in the feedback
// journal.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/attache/internal/brain"
	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	extraTTL       = time.Hour
	previewLen     = 150
	resolveWindow  = 8                // follow-up messages checked before a deferred prompt
	resolveSlack   = 30 * time.Second // look slightly past the defer delay
	deferQueueSize = 64
)

// Confidence zones.
const (
	ZoneHigh   = "high"
	ZoneMedium = "medium"
	ZoneLow    = "low"
)

// Judge is the cheap-tier brain surface the classifier needs.
type Judge interface {
	ClassifyMessage(ctx context.Context, in brain.ClassifyInput) (*brain.Classification, error)
	CheckResolved(ctx context.Context, summary string, followups []store.Message) (bool, error)
}

// TaskEngine is the task lifecycle slice used on creations and rejections.
type TaskEngine interface {
	Create(ctx context.Context, t *store.Task) (*store.Task, bool, error)
	Cancel(ctx context.Context, id int64) error
}

// Store is the persistence slice the classifier needs.
type Store interface {
	RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]store.Message, error)
	ChatMessagesSince(ctx context.Context, chatID int64, since time.Time, limit int) ([]store.Message, error)
	AddConfidenceItem(ctx context.Context, it *store.ConfidenceItem) (int64, error)
	GetConfidenceItem(ctx context.Context, id int64) (*store.ConfidenceItem, error)
	UnresolvedConfidenceItems(ctx context.Context, limit int) ([]store.ConfidenceItem, error)
	ResolveConfidenceItem(ctx context.Context, id int64) (bool, error)
	ResolveConfidenceItems(ctx context.Context, ids []int64) ([]int64, error)
	AddFeedback(ctx context.Context, f *store.Feedback) (int64, error)
}

// Config wires a Classifier.
type Config struct {
	Store    Store
	Tasks    TaskEngine
	Judge    Judge
	Notifier bus.Notifier
	OwnerID  int64

	High             int // strictly above → auto-create
	Low              int // strictly below → informational
	UrgentDailyLimit int
	ContextWindow    int
	DeferDelay       time.Duration

	Location *time.Location
	Now      func() time.Time
}

// Classifier owns the confidence pipeline state: the urgent-prompt quota,
// the deferred-prompt queue and the short-lived classification-extra cache
// that lets feedback buttons reconstruct a task.
type Classifier struct {
	store    Store
	tasks    TaskEngine
	judge    Judge
	notifier bus.Notifier
	ownerID  int64

	high        int
	low         int
	urgentLimit int
	ctxWindow   int
	deferDelay  time.Duration

	loc *time.Location
	now func() time.Time

	deferCh chan deferred

	quotaMu   sync.Mutex
	quotaDay  string
	quotaUsed int

	extraMu sync.Mutex
	extras  map[int64]extraEntry
}

// Extra caches the judge verdict details behind a notice's buttons.
type Extra struct {
	Zone          string
	OriginalType  string
	DBType        store.TaskType
	Summary       string
	Who           string
	Deadline      *time.Time
	RemindAt      *time.Time
	Track         bool
	Confidence    int
	TaskID        int64 // HIGH: the auto-created task
	QueueID       int64 // MEDIUM: the confidence row
	ChatID        int64
	ChatTitle     string
	UpstreamMsgID int64 // source message's id in the upstream chat, for deep links
	SenderID      int64
	SenderName    string
	Account       string
}

type extraEntry struct {
	Extra
	expires time.Time
}

type deferred struct {
	queueID int64
	chatID  int64
	summary string
	text    string
	buttons [][]bus.Button
	firesAt time.Time
}

func New(cfg Config) *Classifier {
	if cfg.High <= 0 {
		cfg.High = 80
	}
	if cfg.Low <= 0 {
		cfg.Low = 50
	}
	if cfg.UrgentDailyLimit <= 0 {
		cfg.UrgentDailyLimit = 10
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 10
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Classifier{
		store:       cfg.Store,
		tasks:       cfg.Tasks,
		judge:       cfg.Judge,
		notifier:    cfg.Notifier,
		ownerID:     cfg.OwnerID,
		high:        cfg.High,
		low:         cfg.Low,
		urgentLimit: cfg.UrgentDailyLimit,
		ctxWindow:   cfg.ContextWindow,
		deferDelay:  cfg.DeferDelay,
		loc:         cfg.Location,
		now:         cfg.Now,
		deferCh:     make(chan deferred, deferQueueSize),
		extras:      make(map[int64]extraEntry),
	}
}

// Process classifies one persisted message and routes the verdict by zone.
// The caller (ingest) runs it asynchronously and logs errors.
func (c *Classifier) Process(ctx context.Context, m *store.Message) error {
	ctxMsgs, err := c.store.RecentChatMessages(ctx, m.ChatID, c.ctxWindow)
	if err != nil {
		slog.Warn("classification context unavailable", "chat_id", m.ChatID, "error", err)
		ctxMsgs = []store.Message{*m}
	}

	cls, err := c.judge.ClassifyMessage(ctx, brain.ClassifyInput{
		Text:        m.Text,
		SenderName:  m.SenderName,
		ChatTitle:   m.ChatTitle,
		OwnerSender: m.SenderID == c.ownerID,
		Context:     ctxMsgs,
	})
	if err != nil {
		return fmt.Errorf("judge: %w", err)
	}

	dbType := normalizeType(cls.Type)
	deadline := parseDeadline(cls.Deadline)
	track := cls.Type == "task_from_me" || cls.Type == "promise_incoming"
	var remindAt *time.Time
	if cls.Type == "task_for_me" || cls.Type == "promise_mine" {
		var r time.Time
		if deadline != nil {
			r = deadline.Add(-2 * time.Hour)
		} else {
			r = c.now().UTC().Add(24 * time.Hour)
		}
		remindAt = &r
	}
	who := cls.Who
	if who == "" {
		who = cls.Assignee
	}

	switch {
	case cls.Confidence > c.high:
		if dbType == "" {
			slog.Info("classified", "zone", ZoneHigh, "type", cls.Type,
				"confidence", cls.Confidence, "summary", preview(cls.Summary, 60))
			return nil
		}
		return c.autoCreate(ctx, m, cls, dbType, who, deadline, remindAt, track)
	case cls.Confidence >= c.low:
		if dbType == "" {
			slog.Debug("classified", "zone", ZoneMedium, "type", cls.Type, "confidence", cls.Confidence)
			return nil
		}
		return c.enqueueMedium(ctx, m, cls, dbType, who, deadline, remindAt, track)
	default:
		return c.notifyLow(ctx, m, cls, who, deadline)
	}
}

// autoCreate handles the HIGH zone: create the task (dedup inside the
// engine) and tell the owner what happened, with correct/wrong buttons.
func (c *Classifier) autoCreate(ctx context.Context, m *store.Message, cls *brain.Classification,
	dbType store.TaskType, who string, deadline, remindAt *time.Time, track bool) error {

	t := &store.Task{
		Type:            dbType,
		Description:     cls.Summary,
		Who:             who,
		Deadline:        deadline,
		RemindAt:        remindAt,
		Confidence:      cls.Confidence,
		Source:          "telegram:" + m.ChatTitle,
		SourceMsgID:     ptrNonZero(m.UpstreamMsgID),
		ChatID:          &m.ChatID,
		SenderID:        &m.SenderID,
		SenderName:      m.SenderName,
		Account:         m.Account,
		TrackCompletion: track,
	}
	created, isNew, err := c.tasks.Create(ctx, t)
	if err != nil {
		return err
	}
	if !isNew {
		slog.Info("duplicate task skipped", "zone", ZoneHigh, "existing_id", created.ID,
			"summary", preview(cls.Summary, 60))
		return nil
	}

	c.storeExtra(m.ID, Extra{
		Zone:          ZoneHigh,
		OriginalType:  cls.Type,
		DBType:        dbType,
		Summary:       cls.Summary,
		Who:           who,
		Deadline:      deadline,
		RemindAt:      remindAt,
		Track:         track,
		Confidence:    cls.Confidence,
		TaskID:        created.ID,
		ChatID:        m.ChatID,
		ChatTitle:     m.ChatTitle,
		UpstreamMsgID: m.UpstreamMsgID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		Account:       m.Account,
	})

	assignee := who
	if assignee == "" {
		assignee = "?"
	}
	text := fmt.Sprintf("🔔 <b>Авто-задача #%d</b> (%d%%)\n📝 %s\n👤 %s → %s\n🗂 %s\n📱 %s%s",
		created.ID, cls.Confidence, cls.Summary, m.SenderName, assignee,
		typeLabel(cls.Type), m.Account, messageLink(m.ChatID))
	buttons := [][]bus.Button{{
		{Label: "✅ Верно", Intent: bus.ClassifyCorrect{MessageID: m.ID}},
		{Label: "❌ Ошибка", Intent: bus.ClassifyWrong{MessageID: m.ID}},
	}}
	return c.notifier.Notify(ctx, bus.Notification{Text: text, Keyboard: buttons})
}

// enqueueMedium handles the MEDIUM zone: persist a confidence item, then
// prompt the owner. Urgent items prompt immediately (quota permitting),
// the rest wait out the defer delay with a self-resolution check first.
func (c *Classifier) enqueueMedium(ctx context.Context, m *store.Message, cls *brain.Classification,
	dbType store.TaskType, who string, deadline, remindAt *time.Time, track bool) error {

	queueID, err := c.store.AddConfidenceItem(ctx, &store.ConfidenceItem{
		MessageID:     m.ID,
		ChatID:        m.ChatID,
		SenderName:    m.SenderName,
		TextPreview:   preview(m.Text, previewLen),
		PredictedType: cls.Type,
		Confidence:    cls.Confidence,
		IsUrgent:      cls.Urgent,
	})
	if err != nil {
		return fmt.Errorf("enqueue confidence item: %w", err)
	}

	c.storeExtra(m.ID, Extra{
		Zone:          ZoneMedium,
		OriginalType:  cls.Type,
		DBType:        dbType,
		Summary:       cls.Summary,
		Who:           who,
		Deadline:      deadline,
		RemindAt:      remindAt,
		Track:         track,
		Confidence:    cls.Confidence,
		QueueID:       queueID,
		ChatID:        m.ChatID,
		ChatTitle:     m.ChatTitle,
		UpstreamMsgID: m.UpstreamMsgID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		Account:       m.Account,
	})

	if cls.Urgent {
		if !c.urgentAllowed() {
			slog.Info("urgent quota exhausted, queued silently", "queue_id", queueID)
			return nil
		}
		text := fmt.Sprintf("⚡️ <b>СРОЧНОЕ</b>: %s: «%s»\nУверенность: %d%%. Это %s?",
			m.SenderName, preview(m.Text, previewLen), cls.Confidence, confirmLabel(cls.Type))
		return c.notifier.Notify(ctx, bus.Notification{Text: text, Keyboard: confButtons(queueID)})
	}

	d := deferred{
		queueID: queueID,
		chatID:  m.ChatID,
		summary: cls.Summary,
		text: fmt.Sprintf("❓ <b>Похоже на задачу</b> (%d%%)\n📝 %s\n👤 %s\n🗂 %s\n📱 %s%s",
			cls.Confidence, cls.Summary, m.SenderName, typeLabel(cls.Type),
			m.Account, messageLink(m.ChatID)),
		buttons: confButtons(queueID),
		firesAt: c.now().Add(c.deferDelay),
	}
	select {
	case c.deferCh <- d:
		slog.Info("medium prompt deferred", "queue_id", queueID, "delay", c.deferDelay)
		return nil
	default:
		// The worker is saturated or not running; prompt right away rather
		// than lose the item until the evening batch.
		slog.Warn("deferral queue full, prompting immediately", "queue_id", queueID)
		return c.notifier.Notify(ctx, bus.Notification{Text: d.text, Keyboard: d.buttons})
	}
}

// notifyLow handles the LOW zone: an informational notice with a
// correct/upgrade button pair. Nothing is persisted beyond the message.
func (c *Classifier) notifyLow(ctx context.Context, m *store.Message, cls *brain.Classification,
	who string, deadline *time.Time) error {

	c.storeExtra(m.ID, Extra{
		Zone:          ZoneLow,
		OriginalType:  cls.Type,
		DBType:        store.TaskKindTask,
		Summary:       cls.Summary,
		Who:           who,
		Deadline:      deadline,
		Confidence:    cls.Confidence,
		ChatID:        m.ChatID,
		ChatTitle:     m.ChatTitle,
		UpstreamMsgID: m.UpstreamMsgID,
		SenderID:      m.SenderID,
		SenderName:    m.SenderName,
		Account:       m.Account,
	})

	text := fmt.Sprintf("ℹ️ <b>%s</b> (%d%%)\n📝 %s\n👤 %s\n📱 %s%s",
		typeLabel(cls.Type), cls.Confidence, cls.Summary, m.SenderName,
		m.Account, messageLink(m.ChatID))
	buttons := [][]bus.Button{{
		{Label: "✅ Верно", Intent: bus.ClassifyCorrect{MessageID: m.ID}},
		{Label: "📝 Это задача", Intent: bus.ClassifyUpgrade{MessageID: m.ID}},
	}}
	return c.notifier.Notify(ctx, bus.Notification{Text: text, Keyboard: buttons})
}

// Run drives the deferred MEDIUM prompts. Deferrals are in-process; a
// restart loses the timers but the queue rows survive for the evening batch.
func (c *Classifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-c.deferCh:
			go c.waitAndPrompt(ctx, d)
		}
	}
}

func (c *Classifier) waitAndPrompt(ctx context.Context, d deferred) {
	delay := time.Until(d.firesAt)
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
	c.promptDeferred(ctx, d)
}

// promptDeferred fires one deferred prompt unless the item resolved in the
// meantime, by the owner acting on it or by the dialogue itself.
func (c *Classifier) promptDeferred(ctx context.Context, d deferred) {
	item, err := c.store.GetConfidenceItem(ctx, d.queueID)
	if err == nil && item.Resolved {
		return
	}

	since := c.now().Add(-(c.deferDelay + resolveSlack))
	followups, err := c.store.ChatMessagesSince(ctx, d.chatID, since, resolveWindow)
	if err != nil {
		slog.Warn("self-resolution check skipped", "queue_id", d.queueID, "error", err)
	} else if len(followups) > 0 {
		resolved, err := c.judge.CheckResolved(ctx, d.summary, followups)
		if err != nil {
			slog.Warn("self-resolution check failed", "queue_id", d.queueID, "error", err)
		} else if resolved {
			if _, err := c.store.ResolveConfidenceItem(ctx, d.queueID); err != nil {
				slog.Warn("resolve self-resolved item", "queue_id", d.queueID, "error", err)
			}
			slog.Info("medium prompt suppressed, dialogue resolved it", "queue_id", d.queueID,
				"summary", preview(d.summary, 60))
			return
		}
	}

	if err := c.notifier.Notify(ctx, bus.Notification{Text: d.text, Keyboard: d.buttons}); err != nil {
		slog.Error("deferred prompt failed", "queue_id", d.queueID, "error", err)
	}
}

// urgentAllowed consumes one slot of the per-day urgent-prompt quota.
func (c *Classifier) urgentAllowed() bool {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	today := c.now().In(c.loc).Format("2006-01-02")
	if c.quotaDay != today {
		c.quotaDay = today
		c.quotaUsed = 0
	}
	if c.quotaUsed >= c.urgentLimit {
		return false
	}
	c.quotaUsed++
	return true
}

func (c *Classifier) storeExtra(msgID int64, e Extra) {
	c.extraMu.Lock()
	defer c.extraMu.Unlock()
	now := c.now()
	for id, ent := range c.extras {
		if now.After(ent.expires) {
			delete(c.extras, id)
		}
	}
	c.extras[msgID] = extraEntry{Extra: e, expires: now.Add(extraTTL)}
}

// takeExtra pops the cached verdict details for a message, if still fresh.
func (c *Classifier) takeExtra(msgID int64) (Extra, bool) {
	c.extraMu.Lock()
	defer c.extraMu.Unlock()
	ent, ok := c.extras[msgID]
	if !ok {
		return Extra{}, false
	}
	delete(c.extras, msgID)
	if c.now().After(ent.expires) {
		return Extra{}, false
	}
	return ent.Extra, true
}

func confButtons(queueID int64) [][]bus.Button {
	return [][]bus.Button{{
		{Label: "✅ Да, создать", Intent: bus.ConfidenceYes{ItemID: queueID}},
		{Label: "❌ Нет", Intent: bus.ConfidenceNo{ItemID: queueID}},
		{Label: "⏰ Позже", Intent: bus.ConfidenceLater{ItemID: queueID}},
	}}
}

var typeLabels = map[string]string{
	"task_from_me":     "Задача от вас",
	"task_for_me":      "Задача для вас",
	"promise_mine":     "Ваше обещание",
	"promise_incoming": "Чужое обещание",
	"info":             "Информация",
	"question":         "Вопрос",
	"spam":             "Спам/мусор",
}

func typeLabel(t string) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return t
}

// confirmLabel is the short noun used in "Это X?" prompts.
func confirmLabel(judgeType string) string {
	switch normalizeType(judgeType) {
	case store.TaskKindPromiseMine:
		return "моё обещание"
	case store.TaskKindPromiseIncoming:
		return "чужое обещание"
	default:
		return "задача"
	}
}

// normalizeType maps the judge's directional categories onto the stored
// task types. Empty means not task-like.
func normalizeType(judgeType string) store.TaskType {
	switch judgeType {
	case "task", "task_for_me", "task_from_me", "question":
		return store.TaskKindTask
	case "promise_mine":
		return store.TaskKindPromiseMine
	case "promise_incoming":
		return store.TaskKindPromiseIncoming
	default:
		return ""
	}
}

// parseDeadline converts the judge's YYYY-MM-DD into the stored date form
// (UTC midnight of the owner-local date).
func parseDeadline(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// messageLink renders a deep link to the source chat. Private chats open
// via tg://user; group links are built by the task layer where the original
// message id is known.
func messageLink(chatID int64) string {
	if chatID > 0 {
		return fmt.Sprintf(` <a href="tg://user?id=%d">📎</a>`, chatID)
	}
	return ""
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func ptrNonZero(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
