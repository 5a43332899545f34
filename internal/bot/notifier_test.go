package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

func TestSplitMessageShortPassesThrough(t *testing.T) {
	parts := splitMessage("короткий текст", 4096)
	if len(parts) != 1 || parts[0] != "короткий текст" {
		t.Fatalf("parts = %q", parts)
	}
}

func TestSplitMessagePrefersNewline(t *testing.T) {
	parts := splitMessage("строка один\nстрока два", 15)
	want := []string{"строка один", "строка два"}
	if len(parts) != 2 || parts[0] != want[0] || parts[1] != want[1] {
		t.Fatalf("parts = %q, want %q", parts, want)
	}
}

func TestSplitMessageFallsBackToSpace(t *testing.T) {
	parts := splitMessage("word1 word2 word3", 11)
	want := []string{"word1", "word2 word3"}
	if len(parts) != 2 || parts[0] != want[0] || parts[1] != want[1] {
		t.Fatalf("parts = %q, want %q", parts, want)
	}
}

func TestSplitMessageHardCutIsRuneSafe(t *testing.T) {
	parts := splitMessage("абвгдежзик", 4)
	want := []string{"абвг", "дежз", "ик"}
	if len(parts) != 3 {
		t.Fatalf("parts = %q, want %q", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("parts[%d] = %q, want %q", i, parts[i], want[i])
		}
		if !utf8.ValidString(parts[i]) {
			t.Errorf("parts[%d] is not valid UTF-8", i)
		}
	}
}

func TestSplitMessageEveryPartWithinLimit(t *testing.T) {
	long := strings.Repeat("слово и ещё немного текста\n", 600)
	parts := splitMessage(long, maxMessageRunes)
	if len(parts) < 2 {
		t.Fatalf("expected a split, got %d part(s)", len(parts))
	}
	for i, p := range parts {
		if n := utf8.RuneCountInString(p); n > maxMessageRunes {
			t.Errorf("part %d has %d runes", i, n)
		}
		if p == "" {
			t.Errorf("part %d is empty", i)
		}
	}
}

func TestRenderKeyboard(t *testing.T) {
	rows := [][]bus.Button{
		{
			{Label: "✅ #7", Intent: bus.ReviewDone{TaskID: 7}},
			{Label: "➡️ #7", Intent: bus.ReviewPostpone{TaskID: 7}},
		},
		{
			{Label: "Закрыть", Intent: bus.WhitelistClose{}},
		},
	}
	markup := renderKeyboard(rows)
	if markup == nil {
		t.Fatal("markup = nil")
	}
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(markup.InlineKeyboard))
	}
	if got := markup.InlineKeyboard[0][0].CallbackData; got != "review_done:7" {
		t.Errorf("callback data = %q, want review_done:7", got)
	}
	if got := markup.InlineKeyboard[0][1].CallbackData; got != "review_tomorrow:7" {
		t.Errorf("callback data = %q, want review_tomorrow:7", got)
	}
	if got := markup.InlineKeyboard[1][0].Text; got != "Закрыть" {
		t.Errorf("label = %q", got)
	}
}

func TestRenderKeyboardEmpty(t *testing.T) {
	if renderKeyboard(nil) != nil {
		t.Error("nil rows should render no markup")
	}
	if renderKeyboard([][]bus.Button{}) != nil {
		t.Error("empty rows should render no markup")
	}
}

func TestButtonLabelTruncation(t *testing.T) {
	if got := buttonLabel("короткая", maxButtonWidth); got != "короткая" {
		t.Errorf("short label changed: %q", got)
	}

	long := "очень длинное название чата для кнопки"
	got := buttonLabel(long, maxButtonWidth)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("long label not truncated: %q", got)
	}
	if n := utf8.RuneCountInString(got); n > maxButtonWidth {
		t.Errorf("truncated label has %d runes", n)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated label is not valid UTF-8: %q", got)
	}
}
