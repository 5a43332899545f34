// Package conversation runs the owner dialogue: a bounded tool-use loop
// over the rolling turn history with a two-block system prompt, a static
// persona block (cacheable) plus a volatile state block rebuilt per call.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/providers"
	"github.com/nextlevelbuilder/attache/internal/store"
	"github.com/nextlevelbuilder/attache/internal/tasks"
	"github.com/nextlevelbuilder/attache/internal/tools"
)

const (
	defaultHistoryWindow = 20
	defaultMaxToolRounds = 5
	replyMaxTokens       = 4096

	overflowReply = "Я сделал слишком много шагов подряд и остановился. Сформулируй запрос конкретнее, пожалуйста."
	emptyReply    = "Не получилось сформулировать ответ — попробуй переспросить."
)

// Brain is the assistant-tier surface the loop needs.
type Brain interface {
	Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error)
	SupportsTools() bool
}

// TaskLister feeds the review grid attached after a list_tasks round.
type TaskLister interface {
	Active(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error)
}

// Store is the persistence slice the loop reads and writes.
type Store interface {
	AddTurn(ctx context.Context, t *store.Turn) error
	RecentTurns(ctx context.Context, limit int) ([]store.Turn, error)
	GetSetting(ctx context.Context, key string) (string, error)
	GetIDSet(ctx context.Context, key string) ([]int64, error)
	GetStats(ctx context.Context) (*store.Stats, error)
	KnownChats(ctx context.Context, limit int) ([]store.ChatActivity, error)
	DMActivity(ctx context.Context, since time.Time) ([]store.ChatActivity, error)
}

// Config wires a Conversation.
type Config struct {
	Brain    Brain
	Registry *tools.Registry
	Store    Store
	Tasks    TaskLister
	Persona  *Persona

	// Accounts are the upstream account labels shown in the state block.
	Accounts []string
	// ScheduleNote is a preformatted line describing the daily schedule.
	ScheduleNote string

	Location      *time.Location
	HistoryWindow int
	MaxToolRounds int
	Now           func() time.Time
}

// Conversation is the owner-facing dialogue engine.
type Conversation struct {
	brain    Brain
	registry *tools.Registry
	store    Store
	tasks    TaskLister
	persona  *Persona

	accounts     []string
	scheduleNote string

	loc       *time.Location
	window    int
	maxRounds int
	now       func() time.Time
}

func New(cfg Config) *Conversation {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Conversation{
		brain:        cfg.Brain,
		registry:     cfg.Registry,
		store:        cfg.Store,
		tasks:        cfg.Tasks,
		persona:      cfg.Persona,
		accounts:     cfg.Accounts,
		scheduleNote: cfg.ScheduleNote,
		loc:          cfg.Location,
		window:       cfg.HistoryWindow,
		maxRounds:    cfg.MaxToolRounds,
		now:          cfg.Now,
	}
}

// Reply handles one free-text owner message and returns the notification
// to send back.
func (c *Conversation) Reply(ctx context.Context, text string) (*bus.Notification, error) {
	ctx, span := otel.Tracer("attache/conversation").Start(ctx, "conversation.reply")
	defer span.End()

	if err := c.store.AddTurn(ctx, &store.Turn{Role: "user", Content: text, CreatedAt: c.now()}); err != nil {
		slog.Warn("user turn not persisted", "error", err)
	}
	if !c.brain.SupportsTools() {
		return &bus.Notification{
			Text: "Текущий LLM-бэкенд не поддерживает инструменты, диалог недоступен. Переключи бэкенд через /mode.",
		}, nil
	}

	messages, err := c.history(ctx, text)
	if err != nil {
		return nil, err
	}
	system := c.systemBlocks(ctx)
	toolDefs := c.registry.ProviderDefs()

	var (
		finalText    string
		executedTool []string
		sawListTasks bool
	)

	for round := 0; ; round++ {
		if round >= c.maxRounds {
			slog.Warn("tool round budget exhausted", "rounds", c.maxRounds)
			finalText = overflowReply
			break
		}

		resp, err := c.brain.Chat(ctx, providers.ChatRequest{
			System:    system,
			Messages:  messages,
			Tools:     toolDefs,
			MaxTokens: replyMaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("assistant call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			// end_turn, length or anything else: finish with what we have.
			finalText = sanitizeReply(resp.Content)
			break
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		// Execute sequentially in emission order; results go back as one
		// user-side turn of tool results.
		for _, tc := range resp.ToolCalls {
			tctx, tspan := otel.Tracer("attache/conversation").Start(ctx, "tool.execute",
				trace.WithAttributes(
					attribute.String("tool.name", tc.Name),
					attribute.Int("conversation.round", round),
				))
			result := c.registry.Execute(tctx, tc.Name, tc.Arguments)
			executedTool = append(executedTool, tc.Name)
			if result.IsError {
				tspan.SetStatus(codes.Error, preview(result.ForLLM, 80))
				slog.Warn("tool returned error", "tool", tc.Name, "result", preview(result.ForLLM, 200))
			} else if tc.Name == "list_tasks" {
				sawListTasks = true
			}
			tspan.End()
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			})
		}
	}

	if finalText == "" {
		finalText = emptyReply
	}

	turn := &store.Turn{Role: "assistant", Content: finalText, CreatedAt: c.now()}
	if len(executedTool) > 0 {
		if raw, err := json.Marshal(executedTool); err == nil {
			turn.ToolCalls = string(raw)
		}
	}
	if err := c.store.AddTurn(ctx, turn); err != nil {
		slog.Warn("assistant turn not persisted", "error", err)
	}
	span.SetAttributes(attribute.Int("conversation.tool_calls", len(executedTool)))

	n := &bus.Notification{Text: finalText}
	if sawListTasks {
		n.Keyboard = c.reviewGrid(ctx)
	}
	return n, nil
}

// ReplyPhoto handles an owner photo: one vision call on the assistant tier
// with the same persona and history, prompt driven by the caption.
func (c *Conversation) ReplyPhoto(ctx context.Context, caption string, photo []byte) (*bus.Notification, error) {
	prompt := strings.TrimSpace(caption)
	if prompt == "" {
		prompt = "Посмотри на фото и скажи, что на нём и требуется ли от меня что-то."
	}
	userText := "[фото] " + prompt
	if err := c.store.AddTurn(ctx, &store.Turn{Role: "user", Content: userText, CreatedAt: c.now()}); err != nil {
		slog.Warn("user turn not persisted", "error", err)
	}

	img, err := EncodeImage(photo)
	if err != nil {
		return nil, fmt.Errorf("encode photo: %w", err)
	}

	messages, err := c.history(ctx, userText)
	if err != nil {
		return nil, err
	}
	// Attach the image to the latest user message.
	messages[len(messages)-1].Images = []providers.ImageContent{img}

	resp, err := c.brain.Chat(ctx, providers.ChatRequest{
		System:    c.systemBlocks(ctx),
		Messages:  messages,
		MaxTokens: replyMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("vision call: %w", err)
	}
	finalText := sanitizeReply(resp.Content)
	if finalText == "" {
		finalText = emptyReply
	}
	if err := c.store.AddTurn(ctx, &store.Turn{Role: "assistant", Content: finalText, CreatedAt: c.now()}); err != nil {
		slog.Warn("assistant turn not persisted", "error", err)
	}
	return &bus.Notification{Text: finalText}, nil
}

// history loads the rolling turn window as provider messages, guaranteeing
// the current user text is the last entry.
func (c *Conversation) history(ctx context.Context, current string) ([]providers.Message, error) {
	turns, err := c.store.RecentTurns(ctx, c.window)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	messages := make([]providers.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := t.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, providers.Message{Role: role, Content: t.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" || messages[len(messages)-1].Content != current {
		messages = append(messages, providers.Message{Role: "user", Content: current})
	}
	return messages, nil
}

// reviewGrid renders inline completion buttons for the current active tasks.
func (c *Conversation) reviewGrid(ctx context.Context) [][]bus.Button {
	active, err := c.tasks.Active(ctx, "")
	if err != nil || len(active) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(active))
	for i := range active {
		ids = append(ids, active[i].ID)
	}
	return tasks.ReviewGrid(ids)
}

func preview(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
