package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/attache/internal/brain"
	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeJudge struct {
	cls          *brain.Classification
	clsErr       error
	resolved     bool
	resolveErr   error
	resolveCalls int
}

func (j *fakeJudge) ClassifyMessage(context.Context, brain.ClassifyInput) (*brain.Classification, error) {
	if j.clsErr != nil {
		return nil, j.clsErr
	}
	cp := *j.cls
	return &cp, nil
}

func (j *fakeJudge) CheckResolved(context.Context, string, []store.Message) (bool, error) {
	j.resolveCalls++
	return j.resolved, j.resolveErr
}

type fakeEngine struct {
	created   []*store.Task
	cancelled []int64
	nextID    int64
	duplicate *store.Task
}

func (e *fakeEngine) Create(_ context.Context, t *store.Task) (*store.Task, bool, error) {
	if e.duplicate != nil {
		return e.duplicate, false, nil
	}
	e.nextID++
	t.ID = e.nextID
	e.created = append(e.created, t)
	return t, true, nil
}

func (e *fakeEngine) Cancel(_ context.Context, id int64) error {
	e.cancelled = append(e.cancelled, id)
	return nil
}

type fakeStore struct {
	messages     map[int64][]store.Message
	items        map[int64]*store.ConfidenceItem
	nextItem     int64
	feedback     []store.Feedback
	nextFeedback int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: map[int64][]store.Message{},
		items:    map[int64]*store.ConfidenceItem{},
	}
}

func (s *fakeStore) RecentChatMessages(_ context.Context, chatID int64, limit int) ([]store.Message, error) {
	msgs := s.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *fakeStore) ChatMessagesSince(_ context.Context, chatID int64, since time.Time, limit int) ([]store.Message, error) {
	var out []store.Message
	for _, m := range s.messages[chatID] {
		if m.Timestamp.After(since) {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) AddConfidenceItem(_ context.Context, it *store.ConfidenceItem) (int64, error) {
	s.nextItem++
	cp := *it
	cp.ID = s.nextItem
	cp.CreatedAt = fixedNow
	s.items[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) GetConfidenceItem(_ context.Context, id int64) (*store.ConfidenceItem, error) {
	it, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *fakeStore) UnresolvedConfidenceItems(_ context.Context, limit int) ([]store.ConfidenceItem, error) {
	var out []store.ConfidenceItem
	for id := int64(1); id <= s.nextItem; id++ {
		if it, ok := s.items[id]; ok && !it.Resolved {
			out = append(out, *it)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ResolveConfidenceItem(_ context.Context, id int64) (bool, error) {
	it, ok := s.items[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if it.Resolved {
		return false, nil
	}
	it.Resolved = true
	return true, nil
}

func (s *fakeStore) ResolveConfidenceItems(ctx context.Context, ids []int64) ([]int64, error) {
	var flipped []int64
	for _, id := range ids {
		if ok, _ := s.ResolveConfidenceItem(ctx, id); ok {
			flipped = append(flipped, id)
		}
	}
	return flipped, nil
}

func (s *fakeStore) AddFeedback(_ context.Context, f *store.Feedback) (int64, error) {
	s.nextFeedback++
	cp := *f
	cp.ID = s.nextFeedback
	s.feedback = append(s.feedback, cp)
	return cp.ID, nil
}

type captureNotifier struct {
	sent []bus.Notification
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, msg bus.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func testClassifier(judge *fakeJudge) (*Classifier, *fakeStore, *fakeEngine, *captureNotifier) {
	st := newFakeStore()
	eng := &fakeEngine{}
	n := &captureNotifier{}
	c := New(Config{
		Store:            st,
		Tasks:            eng,
		Judge:            judge,
		Notifier:         n,
		OwnerID:          1,
		High:             80,
		Low:              50,
		UrgentDailyLimit: 2,
		DeferDelay:       5 * time.Minute,
		Location:         time.UTC,
		Now:              func() time.Time { return fixedNow },
	})
	return c, st, eng, n
}

func inboundMsg() *store.Message {
	return &store.Message{
		ID:         42,
		ChatID:     777,
		ChatTitle:  "Иван Петров",
		SenderID:   777,
		SenderName: "Иван Петров",
		Text:       "сделай отчёт по продажам к пятнице",
		Account:    "main",
		Timestamp:  fixedNow,
	}
}

func TestProcessHighCreatesTrackedTask(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_from_me", Summary: "сделать отчёт по продажам",
		Who: "Иван", Confidence: 92,
	}}
	c, _, eng, n := testClassifier(judge)

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.created) != 1 {
		t.Fatalf("created %d tasks, want 1", len(eng.created))
	}
	task := eng.created[0]
	if task.Type != store.TaskKindTask {
		t.Errorf("Type = %q, want task", task.Type)
	}
	if !task.TrackCompletion {
		t.Error("task_from_me must be tracked")
	}
	if task.RemindAt != nil {
		t.Error("task_from_me must not get an auto reminder")
	}
	if task.Source != "telegram:Иван Петров" {
		t.Errorf("Source = %q", task.Source)
	}
	if len(n.sent) != 1 || !strings.Contains(n.sent[0].Text, "Авто-задача #1") {
		t.Fatalf("notification = %+v", n.sent)
	}
	if got := n.sent[0].Keyboard[0][0].Intent; got != (bus.ClassifyCorrect{MessageID: 42}) {
		t.Errorf("first button intent = %#v", got)
	}
}

func TestProcessHighRemindAtRules(t *testing.T) {
	tests := []struct {
		name       string
		judgeType  string
		deadline   string
		wantRemind time.Time
	}{
		{"for_me with deadline", "task_for_me", "2026-03-20",
			time.Date(2026, 3, 19, 22, 0, 0, 0, time.UTC)},
		{"for_me without deadline", "task_for_me", "",
			fixedNow.Add(24 * time.Hour)},
		{"promise_mine without deadline", "promise_mine", "",
			fixedNow.Add(24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &fakeJudge{cls: &brain.Classification{
				Type: tt.judgeType, Summary: "summary " + tt.name,
				Deadline: tt.deadline, Confidence: 95,
			}}
			c, _, eng, _ := testClassifier(judge)
			if err := c.Process(context.Background(), inboundMsg()); err != nil {
				t.Fatalf("Process: %v", err)
			}
			task := eng.created[0]
			if task.RemindAt == nil || !task.RemindAt.Equal(tt.wantRemind) {
				t.Errorf("RemindAt = %v, want %v", task.RemindAt, tt.wantRemind)
			}
			if task.TrackCompletion {
				t.Error("incoming-direction task must not be tracked")
			}
		})
	}
}

func TestProcessHighDuplicateStaysSilent(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_for_me", Summary: "оплатить счёт", Confidence: 95,
	}}
	c, _, eng, n := testClassifier(judge)
	eng.duplicate = &store.Task{ID: 7, Description: "оплатить счёт"}

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("duplicate must not notify, got %+v", n.sent)
	}
}

func TestProcessHighNonActionable(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "info", Summary: "прислал ссылку", Confidence: 95,
	}}
	c, st, eng, n := testClassifier(judge)

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.created) != 0 || len(n.sent) != 0 || len(st.items) != 0 {
		t.Fatalf("high info must only log: tasks=%d notices=%d items=%d",
			len(eng.created), len(n.sent), len(st.items))
	}
}

func TestProcessMediumDefersPrompt(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_for_me", Summary: "посмотреть договор", Confidence: 65,
	}}
	c, st, eng, n := testClassifier(judge)

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.created) != 0 {
		t.Fatal("medium must not create a task")
	}
	if len(st.items) != 1 {
		t.Fatalf("queue items = %d, want 1", len(st.items))
	}
	if len(n.sent) != 0 {
		t.Fatalf("medium non-urgent must not prompt immediately, got %+v", n.sent)
	}
	select {
	case d := <-c.deferCh:
		if d.queueID != 1 || !strings.Contains(d.text, "Похоже на задачу") {
			t.Fatalf("deferred = %+v", d)
		}
		if !d.firesAt.Equal(fixedNow.Add(5 * time.Minute)) {
			t.Fatalf("firesAt = %v", d.firesAt)
		}
	default:
		t.Fatal("no deferred prompt queued")
	}
}

func TestProcessMediumUrgentPromptsNow(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_for_me", Summary: "срочно оплатить", Confidence: 70, Urgent: true,
	}}
	c, st, _, n := testClassifier(judge)

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(n.sent) != 1 || !strings.Contains(n.sent[0].Text, "СРОЧНОЕ") {
		t.Fatalf("urgent prompt missing: %+v", n.sent)
	}
	if got := n.sent[0].Keyboard[0][0].Intent; got != (bus.ConfidenceYes{ItemID: 1}) {
		t.Errorf("confirm intent = %#v", got)
	}
	if len(st.items) != 1 {
		t.Fatalf("queue items = %d, want 1", len(st.items))
	}
}

func TestUrgentQuota(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_for_me", Summary: "срочное", Confidence: 70, Urgent: true,
	}}
	c, st, _, n := testClassifier(judge)

	// Limit is 2: the first two prompt, the third queues silently.
	for i := 0; i < 3; i++ {
		m := inboundMsg()
		m.ID = int64(100 + i)
		m.Text = "совсем разные срочные дела номер " + strings.Repeat("я", i+1)
		if err := c.Process(context.Background(), m); err != nil {
			t.Fatalf("Process %d: %v", i, err)
		}
	}
	if len(n.sent) != 2 {
		t.Fatalf("prompts = %d, want 2 (quota)", len(n.sent))
	}
	if len(st.items) != 3 {
		t.Fatalf("queue items = %d, want all 3 queued", len(st.items))
	}

	// Next local day resets the counter.
	now := fixedNow.Add(24 * time.Hour)
	c.now = func() time.Time { return now }
	m := inboundMsg()
	m.ID = 200
	if err := c.Process(context.Background(), m); err != nil {
		t.Fatalf("Process next day: %v", err)
	}
	if len(n.sent) != 3 {
		t.Fatalf("prompts after rollover = %d, want 3", len(n.sent))
	}
}

func TestProcessLowInformational(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "question", Summary: "спросил про отпуск", Confidence: 30,
	}}
	c, st, eng, n := testClassifier(judge)

	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(eng.created) != 0 || len(st.items) != 0 {
		t.Fatal("low zone must not persist anything")
	}
	if len(n.sent) != 1 || !strings.Contains(n.sent[0].Text, "Вопрос") {
		t.Fatalf("low notice = %+v", n.sent)
	}
	if got := n.sent[0].Keyboard[0][1].Intent; got != (bus.ClassifyUpgrade{MessageID: 42}) {
		t.Errorf("upgrade intent = %#v", got)
	}
}

func TestPromptDeferredSelfResolved(t *testing.T) {
	judge := &fakeJudge{resolved: true}
	c, st, _, n := testClassifier(judge)
	id, _ := st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 42, ChatID: 777, SenderName: "Иван", TextPreview: "посмотреть договор",
	})
	st.messages[777] = []store.Message{
		{ChatID: 777, SenderID: 1, Text: "уже посмотрел, всё ок", Timestamp: fixedNow},
	}

	c.promptDeferred(context.Background(), deferred{
		queueID: id, chatID: 777, summary: "посмотреть договор", text: "напоминание",
	})
	if len(n.sent) != 0 {
		t.Fatalf("self-resolved prompt must be suppressed, got %+v", n.sent)
	}
	if it, _ := st.GetConfidenceItem(context.Background(), id); !it.Resolved {
		t.Fatal("self-resolved item must be closed in the queue")
	}
}

func TestPromptDeferredFires(t *testing.T) {
	judge := &fakeJudge{resolved: false}
	c, st, _, n := testClassifier(judge)
	id, _ := st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 42, ChatID: 777, SenderName: "Иван", TextPreview: "посмотреть договор",
	})
	st.messages[777] = []store.Message{
		{ChatID: 777, SenderID: 777, Text: "ну что там?", Timestamp: fixedNow},
	}

	c.promptDeferred(context.Background(), deferred{
		queueID: id, chatID: 777, summary: "посмотреть договор",
		text: "❓ Похоже на задачу", buttons: confButtons(id),
	})
	if len(n.sent) != 1 {
		t.Fatalf("prompt not sent: %+v", n.sent)
	}
}

func TestPromptDeferredSkipsResolvedItem(t *testing.T) {
	judge := &fakeJudge{}
	c, st, _, n := testClassifier(judge)
	id, _ := st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{MessageID: 42, ChatID: 777})
	st.items[id].Resolved = true

	c.promptDeferred(context.Background(), deferred{queueID: id, chatID: 777, text: "x"})
	if len(n.sent) != 0 {
		t.Fatal("resolved item must not prompt")
	}
	if judge.resolveCalls != 0 {
		t.Fatal("no judge call expected for a resolved item")
	}
}

func TestConfirmItemCreatesTaskWithExtras(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "promise_incoming", Summary: "Иван обещал прислать макет",
		Deadline: "2026-03-12", Confidence: 65,
	}}
	c, _, eng, _ := testClassifier(judge)
	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	<-c.deferCh // drain the deferral

	task, created, err := c.ConfirmItem(context.Background(), 1)
	if err != nil {
		t.Fatalf("ConfirmItem: %v", err)
	}
	if !created {
		t.Fatal("want a new task")
	}
	if task.Type != store.TaskKindPromiseIncoming {
		t.Errorf("Type = %q", task.Type)
	}
	if task.Description != "Иван обещал прислать макет" {
		t.Errorf("Description = %q, want the cached summary", task.Description)
	}
	if task.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", task.Confidence)
	}
	if task.Source != "confidence:1" {
		t.Errorf("Source = %q", task.Source)
	}
	if !task.TrackCompletion {
		t.Error("promise_incoming must be tracked")
	}
	if task.Deadline == nil || task.Deadline.Format("2006-01-02") != "2026-03-12" {
		t.Errorf("Deadline = %v", task.Deadline)
	}
	if len(eng.created) != 1 {
		t.Fatalf("created = %d", len(eng.created))
	}

	// Acting twice reports the race.
	if _, _, err := c.ConfirmItem(context.Background(), 1); !errors.Is(err, ErrResolved) {
		t.Fatalf("second confirm err = %v, want ErrResolved", err)
	}
}

func TestRejectItemRecordsFeedback(t *testing.T) {
	judge := &fakeJudge{}
	c, st, _, _ := testClassifier(judge)
	id, _ := st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 42, PredictedType: "task_for_me", Confidence: 65,
	})

	if err := c.RejectItem(context.Background(), id); err != nil {
		t.Fatalf("RejectItem: %v", err)
	}
	if len(st.feedback) != 1 || st.feedback[0].ActualType != "not_task" {
		t.Fatalf("feedback = %+v", st.feedback)
	}
	if err := c.RejectItem(context.Background(), id); !errors.Is(err, ErrResolved) {
		t.Fatalf("second reject err = %v", err)
	}
}

func TestRejectAutoCancelsTask(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "task_from_me", Summary: "собрать команду", Confidence: 95,
	}}
	c, st, eng, _ := testClassifier(judge)
	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	taskID, fid, err := c.RejectAuto(context.Background(), 42)
	if err != nil {
		t.Fatalf("RejectAuto: %v", err)
	}
	if taskID != 1 || len(eng.cancelled) != 1 || eng.cancelled[0] != 1 {
		t.Fatalf("taskID=%d cancelled=%v", taskID, eng.cancelled)
	}
	if fid == 0 {
		t.Fatal("want a feedback row id")
	}
	if st.feedback[0].PredictedType != "task_from_me" || st.feedback[0].ActualType != "not_task" {
		t.Fatalf("feedback = %+v", st.feedback[0])
	}

	// The extra was popped: a second press is stale.
	if _, _, err := c.RejectAuto(context.Background(), 42); !errors.Is(err, ErrStale) {
		t.Fatalf("second press err = %v, want ErrStale", err)
	}
}

func TestUpgradeToTask(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "info", Summary: "возможно надо ответить", Confidence: 20,
	}}
	c, st, eng, _ := testClassifier(judge)
	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	task, created, fid, err := c.UpgradeToTask(context.Background(), 42)
	if err != nil {
		t.Fatalf("UpgradeToTask: %v", err)
	}
	if !created || task.Type != store.TaskKindTask || task.Confidence != 100 {
		t.Fatalf("task = %+v created=%v", task, created)
	}
	if fid == 0 || st.feedback[0].ActualType != "task" {
		t.Fatalf("feedback = %+v", st.feedback)
	}
	if len(eng.created) != 1 {
		t.Fatalf("created = %d", len(eng.created))
	}
}

func TestExtraExpires(t *testing.T) {
	judge := &fakeJudge{cls: &brain.Classification{
		Type: "info", Summary: "s", Confidence: 20,
	}}
	c, _, _, _ := testClassifier(judge)
	if err := c.Process(context.Background(), inboundMsg()); err != nil {
		t.Fatalf("Process: %v", err)
	}

	now := fixedNow.Add(2 * time.Hour)
	c.now = func() time.Time { return now }
	if _, err := c.ConfirmAuto(context.Background(), 42); !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale after TTL", err)
	}
}

func TestSendBatchReview(t *testing.T) {
	judge := &fakeJudge{}
	c, st, _, n := testClassifier(judge)

	// Empty queue → no message.
	if err := c.SendBatchReview(context.Background()); err != nil {
		t.Fatalf("SendBatchReview: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatal("empty batch must stay silent")
	}

	st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 1, SenderName: "Иван", TextPreview: "посмотри договор", PredictedType: "task_for_me",
	})
	st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 2, SenderName: "Пётр", TextPreview: "пришлю макет завтра", PredictedType: "promise_incoming",
	})
	if err := c.SendBatchReview(context.Background()); err != nil {
		t.Fatalf("SendBatchReview: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %d", len(n.sent))
	}
	text := n.sent[0].Text
	if !strings.Contains(text, "засомневался в 2") ||
		!strings.Contains(text, "Иван") || !strings.Contains(text, "чужое обещание?") {
		t.Fatalf("batch text:\n%s", text)
	}
	if n.sent[0].Keyboard[0][0].Intent != (bus.BatchAll{}) {
		t.Fatalf("batch buttons = %+v", n.sent[0].Keyboard)
	}
}

func TestBatchConfirmAndRejectAll(t *testing.T) {
	judge := &fakeJudge{}
	c, st, eng, _ := testClassifier(judge)
	for i := 0; i < 3; i++ {
		st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
			MessageID:     int64(i + 1),
			SenderName:    "Иван",
			TextPreview:   "дело номер " + strings.Repeat("о", i+1),
			PredictedType: "task_for_me",
		})
	}

	created, err := c.BatchConfirmAll(context.Background())
	if err != nil {
		t.Fatalf("BatchConfirmAll: %v", err)
	}
	if created != 3 || len(eng.created) != 3 {
		t.Fatalf("created = %d/%d, want 3", created, len(eng.created))
	}
	// All resolved now: a second run is a no-op.
	created, err = c.BatchConfirmAll(context.Background())
	if err != nil || created != 0 {
		t.Fatalf("second run created=%d err=%v", created, err)
	}

	st.AddConfidenceItem(context.Background(), &store.ConfidenceItem{
		MessageID: 9, PredictedType: "question", Confidence: 60,
	})
	n, err := c.BatchRejectAll(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("BatchRejectAll = %d, %v", n, err)
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		in   string
		want store.TaskType
	}{
		{"task_for_me", store.TaskKindTask},
		{"task_from_me", store.TaskKindTask},
		{"question", store.TaskKindTask},
		{"task", store.TaskKindTask},
		{"promise_mine", store.TaskKindPromiseMine},
		{"promise_incoming", store.TaskKindPromiseIncoming},
		{"info", ""},
		{"spam", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeType(tt.in); got != tt.want {
			t.Errorf("normalizeType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDeadline(t *testing.T) {
	if d := parseDeadline("2026-03-12"); d == nil || !d.Equal(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("parseDeadline = %v", d)
	}
	if d := parseDeadline("завтра"); d != nil {
		t.Fatalf("bad input must return nil, got %v", d)
	}
	if d := parseDeadline(""); d != nil {
		t.Fatalf("empty input must return nil, got %v", d)
	}
}
