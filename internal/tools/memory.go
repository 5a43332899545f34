package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

const (
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	defaultSummaryHours = 24
	defaultSummaryLimit = 30
	maxSummaryLimit     = 100
)

// formatMessages renders stored messages as prompt-friendly lines.
func formatMessages(msgs []store.Message, loc *time.Location) string {
	var sb strings.Builder
	for i := range msgs {
		m := &msgs[i]
		sb.WriteString("[")
		sb.WriteString(m.Timestamp.In(loc).Format("2006-01-02 15:04"))
		sb.WriteString("] ")
		if m.ChatTitle != "" {
			sb.WriteString(m.ChatTitle)
			sb.WriteString(" | ")
		}
		sb.WriteString(m.SenderName)
		sb.WriteString(": ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// --- search_memory ---

type SearchMemoryTool struct {
	store store.MessageStore
	loc   *time.Location
}

func NewSearchMemoryTool(s store.MessageStore, loc *time.Location) *SearchMemoryTool {
	return &SearchMemoryTool{store: s, loc: loc}
}

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Full-text search over all captured chat messages. Use to recall who said what and when."
}

func (t *SearchMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Words or a phrase to look for.",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": fmt.Sprintf("Max results (1-%d).", maxSearchLimit),
			},
		},
		"required": []string{"query"},
	}
}

func (t *SearchMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("query is required")
	}
	limit := defaultSearchLimit
	if n, ok := argInt64(args, "limit"); ok && n >= 1 && n <= maxSearchLimit {
		limit = int(n)
	}

	msgs, err := t.store.SearchMessages(ctx, query, limit)
	if err != nil {
		return ErrorResult("search failed: " + err.Error()).WithError(err)
	}
	if len(msgs) == 0 {
		return NewResult("no messages matched")
	}
	return NewResult(fmt.Sprintf("%d message(s):\n%s", len(msgs), formatMessages(msgs, t.loc)))
}

// --- get_chat_summary ---

type ChatSummaryTool struct {
	store store.MessageStore
	loc   *time.Location
}

func NewChatSummaryTool(s store.MessageStore, loc *time.Location) *ChatSummaryTool {
	return &ChatSummaryTool{store: s, loc: loc}
}

func (t *ChatSummaryTool) Name() string { return "get_chat_summary" }

func (t *ChatSummaryTool) Description() string {
	return "Return the recent messages of one chat over a time window so you can summarize what happened there."
}

func (t *ChatSummaryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"chat_id": map[string]interface{}{
				"type":        "number",
				"description": "Id of the chat.",
			},
			"hours": map[string]interface{}{
				"type":        "number",
				"description": "Window in hours, default 24.",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": fmt.Sprintf("Max messages (1-%d).", maxSummaryLimit),
			},
		},
		"required": []string{"chat_id"},
	}
}

func (t *ChatSummaryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	chatID, ok := argInt64(args, "chat_id")
	if !ok {
		return ErrorResult("chat_id is required")
	}
	hours := defaultSummaryHours
	if n, ok := argInt64(args, "hours"); ok && n >= 1 && n <= 24*14 {
		hours = int(n)
	}
	limit := defaultSummaryLimit
	if n, ok := argInt64(args, "limit"); ok && n >= 1 && n <= maxSummaryLimit {
		limit = int(n)
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	msgs, err := t.store.ChatMessagesSince(ctx, chatID, since, limit)
	if err != nil {
		return ErrorResult("fetch failed: " + err.Error()).WithError(err)
	}
	if len(msgs) == 0 {
		return NewResult(fmt.Sprintf("no messages in chat %d over the last %d hour(s)", chatID, hours))
	}
	return NewResult(fmt.Sprintf("chat %d, last %d hour(s), %d message(s):\n%s",
		chatID, hours, len(msgs), formatMessages(msgs, t.loc)))
}
