package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/attache/internal/brain"
)

// feedbackTimeout bounds how long a "why?" prompt stays armed. The verdict
// itself is recorded when the button is pressed; an expired prompt only
// loses the reason, and the text is handled as a normal message.
const feedbackTimeout = 5 * time.Minute

type pendingFeedback struct {
	feedbackID int64
	armedAt    time.Time
}

// feedbackRegistry holds at most one pending reason prompt per user.
type feedbackRegistry struct {
	now func() time.Time

	mu sync.Mutex
	m  map[int64]pendingFeedback
}

func newFeedbackRegistry(now func() time.Time) *feedbackRegistry {
	return &feedbackRegistry{now: now, m: make(map[int64]pendingFeedback)}
}

// arm replaces any pending prompt for the user.
func (r *feedbackRegistry) arm(userID, feedbackID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[userID] = pendingFeedback{feedbackID: feedbackID, armedAt: r.now()}
}

// take removes and returns the pending feedback id; expired entries are
// dropped as if they were never armed.
func (r *feedbackRegistry) take(userID int64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[userID]
	if !ok {
		return 0, false
	}
	delete(r.m, userID)
	if r.now().Sub(p.armedAt) > feedbackTimeout {
		return 0, false
	}
	return p.feedbackID, true
}

// armFeedback stores the prompt state and asks the owner for the reason.
func (b *Bot) armFeedback(ctx context.Context, feedbackID int64, prompt string) {
	if feedbackID == 0 {
		return
	}
	b.feedback.arm(b.ownerID, feedbackID)
	b.send(ctx, prompt)
}

// handleFreeText is the default text path: a pending feedback reason wins,
// then plain-text mode switches, then the conversation loop.
func (b *Bot) handleFreeText(ctx context.Context, text string) {
	if fid, ok := b.feedback.take(b.ownerID); ok {
		if err := b.store.SetFeedbackReason(ctx, fid, text); err != nil {
			slog.Warn("feedback reason not saved", "id", fid, "error", err)
		}
		b.send(ctx, "👍 Принято")
		return
	}

	switch strings.ToLower(text) {
	case "переключи на резервный", "switch to fallback":
		b.switchMode(ctx, brain.ModeFallback)
		return
	case "переключи на основной", "switch to primary":
		b.switchMode(ctx, brain.ModePrimary)
		return
	}

	b.sendTyping(ctx)

	n, err := b.convo.Reply(ctx, text)
	if err != nil {
		slog.Error("conversation reply failed", "error", err)
		b.send(ctx, "Ошибка: "+err.Error())
		return
	}
	b.notify(ctx, *n)
}

// switchMode flips the LLM backend and confirms with the new label.
func (b *Bot) switchMode(ctx context.Context, mode string) {
	if err := b.brain.SetMode(ctx, mode); err != nil {
		b.send(ctx, "Не получилось переключить: "+err.Error())
		return
	}
	b.send(ctx, "Режим переключён на: "+b.brain.ModeLabel()+"\nДля возврата: /mode")
}
