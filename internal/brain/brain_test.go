package brain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/attache/internal/providers"
	"github.com/nextlevelbuilder/attache/internal/store"
)

type fakeProvider struct {
	name    string
	tools   bool
	resp    *providers.ChatResponse
	err     error
	calls   int
	lastReq providers.ChatRequest
}

func (f *fakeProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &providers.ChatResponse{Content: "ok", FinishReason: providers.FinishStop}, nil
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) DefaultModel() string { return f.name + "-default" }
func (f *fakeProvider) SupportsTools() bool  { return f.tools }

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeSettings) SetSetting(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
	return nil
}

func (f *fakeSettings) GetIDSet(context.Context, string) ([]int64, error) { return nil, nil }
func (f *fakeSettings) SetIDSet(context.Context, string, []int64) error   { return nil }

func TestChatFallsBackToAlternate(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", tools: true, err: errors.New("boom")}
	secondary := &fakeProvider{name: "openai", tools: true}
	b := New(Config{
		Primary:        primary,
		Fallback:       secondary,
		PrimaryModels:  Models{Assistant: "claude-sonnet-4-5"},
		FallbackModels: Models{Assistant: "gpt-4o"},
	})

	resp, err := b.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("Content = %q", resp.Content)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls primary=%d fallback=%d, want 1/1", primary.calls, secondary.calls)
	}
	if secondary.lastReq.Model != "gpt-4o" {
		t.Fatalf("alternate model = %q, want remapped gpt-4o", secondary.lastReq.Model)
	}
}

func TestChatNoToolCapableAlternate(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", tools: true, err: errors.New("boom")}
	secondary := &fakeProvider{name: "openai", tools: false}
	b := New(Config{Primary: primary, Fallback: secondary})

	_, err := b.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
		Tools:    []providers.ToolDefinition{{Name: "create_task"}},
	})
	if err == nil {
		t.Fatal("want error when alternate cannot serve tools")
	}
	if secondary.calls != 0 {
		t.Fatalf("tool request leaked to non-tool backend (%d calls)", secondary.calls)
	}
}

func TestChatSurfacesOriginalErrorWhenAlternateFails(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", err: errors.New("primary down")}
	secondary := &fakeProvider{name: "openai", err: errors.New("fallback down")}
	b := New(Config{Primary: primary, Fallback: secondary})

	_, err := b.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "primary down") {
		t.Fatalf("err = %v, want the primary failure", err)
	}
}

func TestModeSelectsBackend(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", tools: true}
	secondary := &fakeProvider{name: "openai", tools: true}
	settings := &fakeSettings{}
	b := New(Config{Primary: primary, Fallback: secondary, Settings: settings})

	if err := b.SetMode(context.Background(), ModeFallback); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if _, err := b.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if secondary.calls != 1 || primary.calls != 0 {
		t.Fatalf("calls primary=%d fallback=%d, want fallback active", primary.calls, secondary.calls)
	}
	if settings.values[store.SettingAIMode] != ModeFallback {
		t.Fatalf("mode not persisted: %v", settings.values)
	}

	if err := b.SetMode(context.Background(), "cli"); err == nil {
		t.Fatal("want error for unknown mode")
	}
}

func TestLoadModeRestoresPersisted(t *testing.T) {
	settings := &fakeSettings{values: map[string]string{store.SettingAIMode: ModeFallback}}
	b := New(Config{
		Primary:  &fakeProvider{name: "anthropic"},
		Fallback: &fakeProvider{name: "openai"},
		Settings: settings,
	})
	b.LoadMode(context.Background())
	if got := b.Mode(); got != ModeFallback {
		t.Fatalf("Mode = %q, want fallback", got)
	}
}

func TestModeIgnoredWhenOnlyFallbackConfigured(t *testing.T) {
	secondary := &fakeProvider{name: "openai"}
	b := New(Config{Fallback: secondary, Mode: ModePrimary})
	if _, err := b.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if secondary.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", secondary.calls)
	}
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Classification
	}{
		{
			name: "plain json",
			raw:  `{"type":"task_for_me","summary":"подготовить отчёт","deadline":"2026-09-01","who":"Иван","confidence":85,"is_urgent":true}`,
			want: Classification{Type: "task_for_me", Summary: "подготовить отчёт", Deadline: "2026-09-01", Who: "Иван", Confidence: 85, Urgent: true},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"type\":\"promise_mine\",\"summary\":\"s\",\"confidence\":70}\n```",
			want: Classification{Type: "promise_mine", Summary: "s", Confidence: 70},
		},
		{
			name: "prose around json",
			raw:  "Вот результат:\n{\"type\":\"info\",\"summary\":\"s\",\"confidence\":30}\nготово",
			want: Classification{Type: "info", Summary: "s", Confidence: 30},
		},
		{
			name: "unknown type degrades to info",
			raw:  `{"type":"meeting","summary":"s","confidence":90}`,
			want: Classification{Type: "info", Summary: "s", Confidence: 90},
		},
		{
			name: "confidence clamped",
			raw:  `{"type":"question","summary":"s","confidence":150}`,
			want: Classification{Type: "question", Summary: "s", Confidence: 100},
		},
		{
			name: "bad deadline dropped",
			raw:  `{"type":"task_for_me","summary":"s","deadline":"завтра","confidence":60}`,
			want: Classification{Type: "task_for_me", Summary: "s", Confidence: 60},
		},
		{
			name: "no json at all",
			raw:  "не могу классифицировать",
			want: Classification{Type: "info", Summary: "исходный текст"},
		},
		{
			name: "confidence as string",
			raw:  `{"type":"spam","summary":"s","confidence":"55"}`,
			want: Classification{Type: "spam", Summary: "s", Confidence: 55},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseClassification(tt.raw, "исходный текст")
			if got != tt.want {
				t.Errorf("parseClassification() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		raw        string
		wantStatus string
	}{
		{`{"status":"completed","evidence":"прислал файл"}`, "completed"},
		{`{"status":"not_completed","evidence":""}`, "not_completed"},
		{`{"status":"done","evidence":"x"}`, "unclear"},
		{`мусор`, "unclear"},
	}
	for _, tt := range tests {
		status, _ := parseCompletion(tt.raw)
		if status != tt.wantStatus {
			t.Errorf("parseCompletion(%q) = %q, want %q", tt.raw, status, tt.wantStatus)
		}
	}
}

func TestCheckResolved(t *testing.T) {
	judge := &fakeProvider{name: "anthropic", resp: &providers.ChatResponse{Content: "YES"}}
	b := New(Config{Primary: judge, OwnerID: 7})

	msgs := []store.Message{{SenderID: 7, Text: "уже сделал"}}
	resolved, err := b.CheckResolved(context.Background(), "оплатить счёт", msgs)
	if err != nil {
		t.Fatalf("CheckResolved: %v", err)
	}
	if !resolved {
		t.Fatal("want resolved=true on YES")
	}
	if !strings.Contains(judge.lastReq.Messages[0].Content, "ВЛАДЕЛЕЦ") {
		t.Fatalf("owner line not marked:\n%s", judge.lastReq.Messages[0].Content)
	}

	// No follow-ups → no LLM call, not resolved.
	judge.calls = 0
	resolved, err = b.CheckResolved(context.Background(), "оплатить счёт", nil)
	if err != nil || resolved {
		t.Fatalf("empty follow-ups: resolved=%v err=%v", resolved, err)
	}
	if judge.calls != 0 {
		t.Fatalf("judge called %d times for empty follow-ups", judge.calls)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{`text {"a":{"b":2}} tail`, `{"a":{"b":2}}`},
		{`{"s":"скобка } в строке"}`, `{"s":"скобка } в строке"}`},
		{`{"s":"экран \" и }"}`, `{"s":"экран \" и }"}`},
		{`нет json`, ""},
		{`{"незакрыт":1`, ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.raw); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	haiku := estimateCost("claude-haiku-4-5", 1_000_000, 0)
	if haiku != 0.80 {
		t.Fatalf("haiku input MTok = %v, want 0.80", haiku)
	}
	mini := estimateCost("gpt-4o-mini", 0, 1_000_000)
	if mini != 0.60 {
		t.Fatalf("gpt-4o-mini output MTok = %v, want 0.60", mini)
	}
	unknown := estimateCost("mystery-model", 1_000_000, 1_000_000)
	if unknown != 18.0 {
		t.Fatalf("unknown model = %v, want sonnet rate 18.0", unknown)
	}
}

func TestUsageAccumulates(t *testing.T) {
	p := &fakeProvider{name: "anthropic", resp: &providers.ChatResponse{
		Content:      "ok",
		FinishReason: providers.FinishStop,
		Usage:        &providers.Usage{PromptTokens: 100, CompletionTokens: 50},
	}}
	b := New(Config{Primary: p, PrimaryModels: Models{Assistant: "claude-sonnet-4-5"}})

	for i := 0; i < 3; i++ {
		if _, err := b.Chat(context.Background(), providers.ChatRequest{
			Messages: []providers.Message{{Role: "user", Content: "hi"}},
		}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	u := b.Usage()
	if u.Calls != 3 || u.InputTokens != 300 || u.OutputTokens != 150 {
		t.Fatalf("usage = %+v", u)
	}
	if u.Cost <= 0 || u.LastCost <= 0 {
		t.Fatalf("cost not accumulated: %+v", u)
	}
}
