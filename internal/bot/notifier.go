package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

const (
	// maxMessageRunes is Telegram's message length cap.
	maxMessageRunes = 4096

	// maxButtonWidth bounds inline button labels so two fit per row on a
	// phone screen.
	maxButtonWidth = 32
)

// Notifier delivers owner notifications through the control bot. It is
// the single outbound sink every component writes to.
type Notifier struct {
	bot     *telego.Bot
	chatID  int64
	limiter *rate.Limiter
}

// NewNotifier wraps a bot handle for the owner chat. Sends are paced at
// one per second with small bursts, under Telegram's per-chat limits.
func NewNotifier(b *telego.Bot, ownerID int64) *Notifier {
	return &Notifier{
		bot:     b,
		chatID:  ownerID,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// Notify renders and sends one notification. Long texts are split below
// the Telegram cap; the keyboard rides on the last part only.
func (n *Notifier) Notify(ctx context.Context, msg bus.Notification) error {
	parts := splitMessage(msg.Text, maxMessageRunes)
	for i, part := range parts {
		var markup *telego.InlineKeyboardMarkup
		if i == len(parts)-1 {
			markup = renderKeyboard(msg.Keyboard)
		}
		if err := n.send(ctx, part, markup, msg.Plain); err != nil {
			return err
		}
	}
	return nil
}

// send tries HTML parse mode first and silently retries plain when
// Telegram rejects the markup.
func (n *Notifier) send(ctx context.Context, text string, markup *telego.InlineKeyboardMarkup, plain bool) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	if !plain {
		params := &telego.SendMessageParams{
			ChatID:    tu.ID(n.chatID),
			Text:      text,
			ParseMode: "HTML",
		}
		if markup != nil {
			params.ReplyMarkup = markup
		}
		if _, err := n.bot.SendMessage(ctx, params); err == nil {
			return nil
		} else {
			slog.Debug("html send failed, retrying plain", "error", err)
		}
	}

	params := &telego.SendMessageParams{
		ChatID: tu.ID(n.chatID),
		Text:   text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	_, err := n.bot.SendMessage(ctx, params)
	return err
}

// splitMessage breaks text into parts of at most max runes, preferring
// newline boundaries, then spaces, then a hard cut.
func splitMessage(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= max {
			parts = append(parts, string(runes))
			break
		}
		window := runes[:max]
		cut := lastIndexRune(window, '\n')
		if cut <= 0 {
			cut = lastIndexRune(window, ' ')
		}
		if cut <= 0 {
			cut = max
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), " "))
		rest := runes[cut:]
		for len(rest) > 0 && (rest[0] == '\n' || rest[0] == ' ') {
			rest = rest[1:]
		}
		runes = rest
	}
	return parts
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// renderKeyboard turns intent buttons into Telegram inline markup.
// Buttons whose intent cannot be encoded are dropped with a log line.
func renderKeyboard(rows [][]bus.Button) *telego.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	markup := &telego.InlineKeyboardMarkup{}
	for _, row := range rows {
		btns := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			data, err := bus.EncodeIntent(btn.Intent)
			if err != nil {
				slog.Error("unencodable button intent", "label", btn.Label, "error", err)
				continue
			}
			btns = append(btns, telego.InlineKeyboardButton{
				Text:         buttonLabel(btn.Label, maxButtonWidth),
				CallbackData: data,
			})
		}
		if len(btns) > 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, btns)
		}
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}

// buttonLabel truncates by display width, not byte length, so CJK and
// emoji labels stay within one screen row.
func buttonLabel(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
