package scheduler

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

// --- Fakes ---

type fakeBrain struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeBrain) Generate(_ context.Context, _, user string, _ int) (string, error) {
	f.calls++
	f.last = user
	return f.reply, f.err
}

type fakeStore struct {
	stats      *store.Stats
	idSets     map[string][]int64
	groupActs  []store.ChatActivity
	dmActs     []store.ChatActivity
	chatMsgs   map[int64][]store.Message
	topSenders []store.ChatActivity
	created    int64
	completed  int64
	compacted  int64
	summaries  []store.DailySummary
	beats      []string
}

func (f *fakeStore) GetStats(context.Context) (*store.Stats, error) {
	if f.stats == nil {
		return &store.Stats{}, nil
	}
	return f.stats, nil
}

func (f *fakeStore) GetIDSet(_ context.Context, key string) ([]int64, error) {
	return f.idSets[key], nil
}

func (f *fakeStore) GroupActivity(context.Context, []int64, time.Time) ([]store.ChatActivity, error) {
	return f.groupActs, nil
}

func (f *fakeStore) DMActivity(context.Context, time.Time) ([]store.ChatActivity, error) {
	return f.dmActs, nil
}

func (f *fakeStore) ChatMessagesSince(_ context.Context, chatID int64, _ time.Time, _ int) ([]store.Message, error) {
	return f.chatMsgs[chatID], nil
}

func (f *fakeStore) TopSenders(context.Context, time.Time, int) ([]store.ChatActivity, error) {
	return f.topSenders, nil
}

func (f *fakeStore) CountTasksCreatedSince(context.Context, time.Time) (int64, error) {
	return f.created, nil
}

func (f *fakeStore) CountTasksCompletedSince(context.Context, time.Time) (int64, error) {
	return f.completed, nil
}

func (f *fakeStore) CompactTurns(context.Context, time.Time) (int64, error) {
	return f.compacted, nil
}

func (f *fakeStore) SaveDailySummary(_ context.Context, d *store.DailySummary) error {
	f.summaries = append(f.summaries, *d)
	return nil
}

func (f *fakeStore) UpsertHeartbeat(_ context.Context, module, _, _ string, _ time.Time) error {
	f.beats = append(f.beats, module)
	return nil
}

type captureNotifier struct {
	sent []bus.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n bus.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

// --- Driver ---

func TestJobExpressions(t *testing.T) {
	s := New(Config{
		BriefingHour: 9,
		DeadlineHour: 14,
		BatchHour:    17,
		DigestHour:   21,
		WeeklyHour:   10,
		Heartbeat:    5 * time.Minute,
	})

	exprs := map[string]string{}
	for _, j := range s.jobs {
		exprs[j.name] = j.expr
	}

	want := map[string]string{
		"reminders":       "* * * * *",
		"briefing":        "0 9 * * *",
		"deadline-review": "0 14 * * *",
		"batch-review":    "0 17 * * *",
		"digest":          "0 21 * * *",
		"tracked-tasks":   "5 9,13,17,21 * * *",
		"compact-turns":   "15 * * * *",
		"weekly":          "0 10 * * 0",
		"heartbeat":       "*/5 * * * *",
	}
	for name, expr := range want {
		if got := exprs[name]; got != expr {
			t.Errorf("job %s: expr = %q, want %q", name, got, expr)
		}
	}
	if len(s.jobs) != len(want) {
		t.Errorf("job count = %d, want %d", len(s.jobs), len(want))
	}
}

func TestCronMatching(t *testing.T) {
	s := New(Config{BriefingHour: 9, DeadlineHour: 14, BatchHour: 17, DigestHour: 21, WeeklyHour: 10})

	// 2026-08-23 is a Sunday.
	tests := []struct {
		name string
		expr string
		at   time.Time
		due  bool
	}{
		{"briefing fires on the hour", "0 9 * * *", time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), true},
		{"briefing quiet a minute later", "0 9 * * *", time.Date(2026, 8, 24, 9, 1, 0, 0, time.UTC), false},
		{"tracker fires at 13:05", "5 9,13,17,21 * * *", time.Date(2026, 8, 24, 13, 5, 0, 0, time.UTC), true},
		{"tracker quiet at 13:04", "5 9,13,17,21 * * *", time.Date(2026, 8, 24, 13, 4, 0, 0, time.UTC), false},
		{"weekly fires on Sunday", "0 10 * * 0", time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC), true},
		{"weekly quiet on Monday", "0 10 * * 0", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC), false},
		{"heartbeat fires every five", "*/5 * * * *", time.Date(2026, 8, 24, 11, 35, 0, 0, time.UTC), true},
		{"heartbeat quiet between", "*/5 * * * *", time.Date(2026, 8, 24, 11, 36, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due, err := s.cron.IsDue(tt.expr, tt.at)
			if err != nil {
				t.Fatalf("IsDue(%q): %v", tt.expr, err)
			}
			if due != tt.due {
				t.Errorf("IsDue(%q, %s) = %v, want %v", tt.expr, tt.at, due, tt.due)
			}
		})
	}
}

func TestNextMinute(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 8, 24, 10, 4, 30, 0, time.UTC), time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC)},
		{time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC), time.Date(2026, 8, 24, 10, 6, 0, 0, time.UTC)},
		{time.Date(2026, 8, 24, 23, 59, 59, 1, time.UTC), time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := nextMinute(tt.now); !got.Equal(tt.want) {
			t.Errorf("nextMinute(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestTickSkipsRunningJob(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	s := New(Config{})
	blocked := &job{name: "blocked", expr: "* * * * *", fn: func(context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}}
	s.jobs = []*job{blocked}

	minute := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s.tick(context.Background(), minute)
	<-started

	// Second minute while the first run still holds the flag.
	s.tick(context.Background(), minute.Add(time.Minute))
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs after overlapping tick = %d, want 1", got)
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for blocked.running.Load() {
		select {
		case <-deadline:
			t.Fatal("job never released the running flag")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.tick(context.Background(), minute.Add(2*time.Minute))
	<-started
	if got := runs.Load(); got != 2 {
		t.Errorf("runs after release = %d, want 2", got)
	}
}

// --- Rendering ---

func TestDeadlineMarker(t *testing.T) {
	today := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	tests := []struct {
		name     string
		deadline *time.Time
		want     string
	}{
		{"none", nil, ""},
		{"overdue", &yesterday, " ⚠️ просрочена (23.08)"},
		{"today", &today, " 📅 сегодня"},
		{"future", &tomorrow, " 📅 25.08"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deadlineMarker(tt.deadline, today); got != tt.want {
				t.Errorf("deadlineMarker = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReviewBlock(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 8, 24, 21, 0, 0, 0, loc)
	s := New(Config{Location: loc, Now: func() time.Time { return now }})

	today := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	active := []store.Task{
		{ID: 1, Description: "Отчёт", Who: "Иван", Deadline: &yesterday},
		{ID: 2, Description: "Созвон", Deadline: &today},
		{ID: 3, Description: "Планы"},
	}

	n := s.reviewBlock(active)
	if !strings.Contains(n.Text, "#1 Отчёт [Иван] ⚠️ просрочена (23.08)") {
		t.Errorf("missing overdue line:\n%s", n.Text)
	}
	if !strings.Contains(n.Text, "#2 Созвон 📅 сегодня") {
		t.Errorf("missing today line:\n%s", n.Text)
	}
	if !strings.Contains(n.Text, "#3 Планы") {
		t.Errorf("missing bare line:\n%s", n.Text)
	}
	if len(n.Keyboard) == 0 {
		t.Fatal("review block has no keyboard")
	}
}

func TestReviewBlockCapsLines(t *testing.T) {
	s := New(Config{Now: func() time.Time { return time.Date(2026, 8, 24, 21, 0, 0, 0, time.UTC) }})
	active := make([]store.Task, 30)
	for i := range active {
		active[i] = store.Task{ID: int64(i + 1), Description: "x"}
	}
	n := s.reviewBlock(active)
	lines := strings.Split(n.Text, "\n")
	if got := len(lines) - 1; got != reviewLineMax {
		t.Errorf("review lines = %d, want %d", got, reviewLineMax)
	}
}

func TestClip(t *testing.T) {
	if got := clip("привет", 10); got != "привет" {
		t.Errorf("short clip = %q", got)
	}
	if got := clip("привет мир", 6); got != "привет…" {
		t.Errorf("long clip = %q", got)
	}
}

// --- Composition ---

func TestCrossReferenceDropsEmptyAnswer(t *testing.T) {
	for _, reply := range []string{"нет", "нет.", "НЕТ", "  "} {
		s := New(Config{Brain: &fakeBrain{reply: reply}})
		got, err := s.crossReference(context.Background(), []string{"Иван (2): жду отчёт"},
			[]store.Task{{ID: 1, Description: "Отчёт", Who: "Иван"}})
		if err != nil {
			t.Fatalf("crossReference(%q): %v", reply, err)
		}
		if got != "" {
			t.Errorf("crossReference(%q) = %q, want empty", reply, got)
		}
	}
}

func TestSummaryQuietWindow(t *testing.T) {
	st := &fakeStore{idSets: map[string][]int64{}}
	s := New(Config{Store: st, Brain: &fakeBrain{}})

	got, err := s.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "тихо") {
		t.Errorf("quiet summary = %q", got)
	}
}

func TestSummaryComposesBothBlocks(t *testing.T) {
	st := &fakeStore{
		idSets:    map[string][]int64{store.SettingWhitelist: {-100}},
		groupActs: []store.ChatActivity{{ChatID: -100, Title: "Проект", Count: 3}},
		dmActs:    []store.ChatActivity{{ChatID: 42, Title: "Иван", Count: 2}},
		chatMsgs: map[int64][]store.Message{
			-100: {{SenderID: 42, SenderName: "Иван", Text: "созвон в пять"}},
			42:   {{SenderID: 42, SenderName: "Иван", Text: "жду отчёт"}},
		},
	}
	brain := &fakeBrain{reply: "• всё спокойно"}
	s := New(Config{Store: st, Brain: brain, OwnerID: 1})

	got, err := s.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "ОБЗОР ГРУПП") || !strings.Contains(got, "ЛИЧНЫЕ СООБЩЕНИЯ") {
		t.Errorf("summary missing blocks:\n%s", got)
	}
	if brain.calls != 2 {
		t.Errorf("brain calls = %d, want 2", brain.calls)
	}
}

func TestDMLinesExcludesOwnerAndBlacklist(t *testing.T) {
	st := &fakeStore{
		idSets: map[string][]int64{store.SettingBlacklist: {666}},
		dmActs: []store.ChatActivity{
			{ChatID: 1, Title: "Владелец", Count: 9},
			{ChatID: 666, Title: "Спамер", Count: 5},
			{ChatID: 42, Title: "Иван", Count: 2},
		},
		chatMsgs: map[int64][]store.Message{
			42: {{SenderName: "Иван", Text: "привет"}},
		},
	}
	s := New(Config{Store: st, OwnerID: 1})

	lines, err := s.dmLines(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Fatalf("dm lines = %v, want one", lines)
	}
	if !strings.Contains(lines[0], "Иван (2)") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWeeklyJob(t *testing.T) {
	st := &fakeStore{
		stats:     &store.Stats{ActiveTasks: 4, Messages: 120},
		created:   7,
		completed: 5,
		topSenders: []store.ChatActivity{
			{ChatID: 42, Title: "Иван", Count: 30},
			{ChatID: 43, Title: "Мария", Count: 11},
		},
	}
	sink := &captureNotifier{}
	s := New(Config{Store: st, Notifier: sink,
		Now: func() time.Time { return time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC) }})

	if err := s.weeklyJob(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sink.sent))
	}
	text := sink.sent[0].Text
	for _, want := range []string{
		"ЕЖЕНЕДЕЛЬНЫЙ АНАЛИЗ",
		"Активных задач: 4",
		"Создано за неделю: 7",
		"Закрыто за неделю: 5",
		"Иван: 30 сообщ.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("weekly text missing %q:\n%s", want, text)
		}
	}
	if len(st.summaries) != 1 || st.summaries[0].Kind != "weekly" {
		t.Errorf("archived summaries = %+v", st.summaries)
	}
}

func TestDigestJobArchivesAndReviews(t *testing.T) {
	deadline := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	st := &fakeStore{
		stats:     &store.Stats{Messages: 50},
		created:   2,
		completed: 1,
		idSets:    map[string][]int64{},
	}
	sink := &captureNotifier{}
	eng := &fakeTasks{active: []store.Task{{ID: 1, Description: "Отчёт", Deadline: &deadline}}}
	s := New(Config{Store: st, Brain: &fakeBrain{reply: "ИТОГ ДНЯ"}, Tasks: eng, Notifier: sink,
		Now: func() time.Time { return time.Date(2026, 8, 24, 21, 0, 0, 0, time.UTC) }})

	if err := s.digestJob(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.sent) < 2 {
		t.Fatalf("notifications = %d, want digest + review", len(sink.sent))
	}
	if sink.sent[0].Text != "ИТОГ ДНЯ" {
		t.Errorf("digest text = %q", sink.sent[0].Text)
	}
	if !strings.Contains(sink.sent[1].Text, "АКТИВНЫЕ ЗАДАЧИ — REVIEW") {
		t.Errorf("review text = %q", sink.sent[1].Text)
	}
	if len(st.summaries) != 1 || st.summaries[0].Kind != "digest" {
		t.Errorf("archived summaries = %+v", st.summaries)
	}
}

type fakeTasks struct {
	active    []store.Task
	reminders int
}

func (f *fakeTasks) Active(context.Context, store.TaskType) ([]store.Task, error) {
	return f.active, nil
}

func (f *fakeTasks) SendDueReminders(context.Context) (int, error) {
	f.reminders++
	return 0, nil
}

func (f *fakeTasks) DeadlineReview(context.Context) error { return nil }
