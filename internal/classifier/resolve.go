package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

var (
	// ErrStale means the cached verdict details behind a button expired
	// (1 h TTL) or were lost to a restart.
	ErrStale = errors.New("classification details expired")
	// ErrResolved means the confidence item was already acted on.
	ErrResolved = errors.New("confidence item already resolved")
)

// batchListLimit caps how many open items one review or batch action takes.
const batchListLimit = 50

// ConfirmAuto records "the classification was correct" for a HIGH or LOW
// notice. Returns the feedback row id for the follow-up reason capture.
func (c *Classifier) ConfirmAuto(ctx context.Context, msgID int64) (int64, error) {
	extra, ok := c.takeExtra(msgID)
	if !ok {
		return 0, ErrStale
	}
	return c.recordFeedback(ctx, msgID, extra.OriginalType, extra.OriginalType, extra.Confidence)
}

// RejectAuto records "the classification was wrong". On a HIGH notice the
// auto-created task is cancelled. Returns the cancelled task id (0 when
// none) and the feedback row id.
func (c *Classifier) RejectAuto(ctx context.Context, msgID int64) (int64, int64, error) {
	extra, ok := c.takeExtra(msgID)
	if !ok {
		return 0, 0, ErrStale
	}
	if extra.Zone == ZoneHigh && extra.TaskID != 0 {
		if err := c.tasks.Cancel(ctx, extra.TaskID); err != nil {
			return 0, 0, fmt.Errorf("cancel auto task #%d: %w", extra.TaskID, err)
		}
	}
	fid, err := c.recordFeedback(ctx, msgID, extra.OriginalType, "not_task", extra.Confidence)
	return extra.TaskID, fid, err
}

// UpgradeToTask turns a LOW informational notice into a real task.
// Returns the task, whether it was newly created (false = dedup hit) and
// the feedback row id.
func (c *Classifier) UpgradeToTask(ctx context.Context, msgID int64) (*store.Task, bool, int64, error) {
	extra, ok := c.takeExtra(msgID)
	if !ok {
		return nil, false, 0, ErrStale
	}
	t := &store.Task{
		Type:        store.TaskKindTask,
		Description: extra.Summary,
		Who:         extra.Who,
		Deadline:    extra.Deadline,
		Confidence:  100,
		Source:      "telegram:" + extra.ChatTitle,
		SourceMsgID: ptrNonZero(extra.UpstreamMsgID),
		SenderName:  extra.SenderName,
		Account:     extra.Account,
	}
	if extra.ChatID != 0 {
		t.ChatID = &extra.ChatID
	}
	if extra.SenderID != 0 {
		t.SenderID = &extra.SenderID
	}
	task, created, err := c.tasks.Create(ctx, t)
	if err != nil {
		return nil, false, 0, err
	}
	fid, err := c.recordFeedback(ctx, msgID, extra.OriginalType, "task", extra.Confidence)
	return task, created, fid, err
}

// ConfirmItem resolves one confidence item affirmatively and creates the
// task from it. Returns the task and whether it was newly created.
func (c *Classifier) ConfirmItem(ctx context.Context, queueID int64) (*store.Task, bool, error) {
	flipped, err := c.store.ResolveConfidenceItem(ctx, queueID)
	if err != nil {
		return nil, false, err
	}
	if !flipped {
		return nil, false, ErrResolved
	}
	item, err := c.store.GetConfidenceItem(ctx, queueID)
	if err != nil {
		return nil, false, err
	}
	return c.createFromItem(ctx, item)
}

// RejectItem resolves one confidence item negatively.
func (c *Classifier) RejectItem(ctx context.Context, queueID int64) error {
	flipped, err := c.store.ResolveConfidenceItem(ctx, queueID)
	if err != nil {
		return err
	}
	if !flipped {
		return ErrResolved
	}
	item, err := c.store.GetConfidenceItem(ctx, queueID)
	if err != nil {
		return err
	}
	if _, err := c.recordFeedback(ctx, item.MessageID, item.PredictedType, "not_task", item.Confidence); err != nil {
		slog.Warn("feedback write failed", "queue_id", queueID, "error", err)
	}
	return nil
}

// UnresolvedItems lists the open confidence items, oldest first, for the
// batch review and the pick flow.
func (c *Classifier) UnresolvedItems(ctx context.Context) ([]store.ConfidenceItem, error) {
	return c.store.UnresolvedConfidenceItems(ctx, batchListLimit)
}

// BatchConfirmAll resolves every open item as a task. Returns how many
// tasks were actually created (dedup hits don't count).
func (c *Classifier) BatchConfirmAll(ctx context.Context) (int, error) {
	items, err := c.store.UnresolvedConfidenceItems(ctx, batchListLimit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	flipped, err := c.store.ResolveConfidenceItems(ctx, itemIDs(items))
	if err != nil {
		return 0, err
	}
	won := make(map[int64]bool, len(flipped))
	for _, id := range flipped {
		won[id] = true
	}
	created := 0
	for i := range items {
		if !won[items[i].ID] {
			continue
		}
		if _, isNew, err := c.createFromItem(ctx, &items[i]); err != nil {
			slog.Error("batch confirm failed", "queue_id", items[i].ID, "error", err)
		} else if isNew {
			created++
		}
	}
	slog.Info("confidence batch confirmed", "items", len(flipped), "created", created)
	return created, nil
}

// BatchRejectAll resolves every open item negatively. Returns the count.
func (c *Classifier) BatchRejectAll(ctx context.Context) (int, error) {
	items, err := c.store.UnresolvedConfidenceItems(ctx, batchListLimit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	flipped, err := c.store.ResolveConfidenceItems(ctx, itemIDs(items))
	if err != nil {
		return 0, err
	}
	won := make(map[int64]bool, len(flipped))
	for _, id := range flipped {
		won[id] = true
	}
	for i := range items {
		if !won[items[i].ID] {
			continue
		}
		if _, err := c.recordFeedback(ctx, items[i].MessageID, items[i].PredictedType, "not_task", items[i].Confidence); err != nil {
			slog.Warn("feedback write failed", "queue_id", items[i].ID, "error", err)
		}
	}
	slog.Info("confidence batch rejected", "items", len(flipped))
	return len(flipped), nil
}

// SendBatchReview is the 17:00 job: one message listing the day's open
// doubts with all/none/pick actions. No open items, no message.
func (c *Classifier) SendBatchReview(ctx context.Context) error {
	items, err := c.store.UnresolvedConfidenceItems(ctx, batchListLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		slog.Info("confidence batch empty")
		return nil
	}

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, fmt.Sprintf("За сегодня я засомневался в %d сообщениях:\n", len(items)))
	for i, it := range items {
		when := ""
		if !it.CreatedAt.IsZero() {
			when = it.CreatedAt.In(c.loc).Format("15:04")
		}
		lines = append(lines, fmt.Sprintf("%d. [ ] %s (%s): «%s» — %s?",
			i+1, it.SenderName, when, preview(it.TextPreview, 80), confirmLabel(it.PredictedType)))
	}
	buttons := [][]bus.Button{{
		{Label: "Все задачи", Intent: bus.BatchAll{}},
		{Label: "Ничего", Intent: bus.BatchNone{}},
		{Label: "Выбрать", Intent: bus.BatchPick{}},
	}}
	return c.notifier.Notify(ctx, bus.Notification{
		Text:     strings.Join(lines, "\n"),
		Keyboard: buttons,
		Plain:    true,
	})
}

// createFromItem builds a task from a resolved confidence row, enriched by
// the cached extras when they are still around. Source records provenance
// as confidence:{id}; the owner's confirmation pins confidence at 100.
func (c *Classifier) createFromItem(ctx context.Context, item *store.ConfidenceItem) (*store.Task, bool, error) {
	dbType := normalizeType(item.PredictedType)
	if dbType == "" {
		dbType = store.TaskKindTask
	}
	t := &store.Task{
		Type:        dbType,
		Description: item.TextPreview,
		Confidence:  100,
		Source:      fmt.Sprintf("confidence:%d", item.ID),
		SenderName:  item.SenderName,
	}
	if item.ChatID != 0 {
		t.ChatID = &item.ChatID
	}
	if dbType == store.TaskKindPromiseIncoming {
		t.Who = item.SenderName
	}
	if extra, ok := c.takeExtra(item.MessageID); ok {
		if extra.Summary != "" {
			t.Description = extra.Summary
		}
		if extra.Who != "" {
			t.Who = extra.Who
		}
		t.Deadline = extra.Deadline
		t.RemindAt = extra.RemindAt
		t.TrackCompletion = extra.Track
		t.Account = extra.Account
		t.SourceMsgID = ptrNonZero(extra.UpstreamMsgID)
		if extra.SenderID != 0 {
			t.SenderID = &extra.SenderID
		}
	}

	task, created, err := c.tasks.Create(ctx, t)
	if err != nil {
		return nil, false, err
	}
	if _, err := c.recordFeedback(ctx, item.MessageID, item.PredictedType, item.PredictedType, item.Confidence); err != nil {
		slog.Warn("feedback write failed", "queue_id", item.ID, "error", err)
	}
	return task, created, nil
}

func (c *Classifier) recordFeedback(ctx context.Context, msgID int64, predicted, actual string, confidence int) (int64, error) {
	return c.store.AddFeedback(ctx, &store.Feedback{
		MessageID:           msgID,
		PredictedType:       predicted,
		ActualType:          actual,
		PredictedConfidence: confidence,
	})
}

func itemIDs(items []store.ConfidenceItem) []int64 {
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}
