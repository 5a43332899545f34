package conversation

import (
	"log/slog"
	"regexp"
	"strings"
)

// sanitizeReply cleans model text before it reaches the owner. The fallback
// backend serves OpenAI-compatible endpoints whose models leak reasoning
// tags or tool-call markup into plain text content.
func sanitizeReply(s string) string {
	if s == "" {
		return s
	}
	original := s
	s = stripThinkingTags(s)
	s = stripToolMarkup(s)
	s = collapseDuplicateBlocks(s)
	s = strings.TrimSpace(s)
	if s != strings.TrimSpace(original) {
		slog.Debug("reply sanitized", "before", len(original), "after", len(s))
	}
	return s
}

var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(s string) string {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return s
	}
	for _, pat := range thinkingTagPatterns {
		s = pat.ReplaceAllString(s, "")
	}
	return s
}

// toolMarkupPattern matches XML-ish tool-call artifacts that some models
// emit as text instead of a proper tool call.
var toolMarkupPattern = regexp.MustCompile(`(?s)</?(?:tool_call|tool_use|function_call|invoke|parameter)[^>]*>`)

func stripToolMarkup(s string) string {
	lower := strings.ToLower(s)
	if !strings.Contains(lower, "<tool_") && !strings.Contains(lower, "<function_call") &&
		!strings.Contains(lower, "<invoke") && !strings.Contains(lower, "<parameter") {
		return s
	}
	cleaned := toolMarkupPattern.ReplaceAllString(s, "")
	if strings.TrimSpace(cleaned) == "" {
		slog.Warn("reply was entirely tool markup", "len", len(s))
	}
	return cleaned
}

// collapseDuplicateBlocks drops consecutive identical paragraphs. Retried
// generations on the fallback sometimes double the whole answer.
func collapseDuplicateBlocks(s string) string {
	blocks := strings.Split(s, "\n\n")
	if len(blocks) <= 1 {
		return s
	}
	out := blocks[:0:0]
	for _, b := range blocks {
		t := strings.TrimSpace(b)
		if t == "" {
			continue
		}
		if len(out) > 0 && t == strings.TrimSpace(out[len(out)-1]) {
			continue
		}
		out = append(out, b)
	}
	return strings.Join(out, "\n\n")
}
