package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/config"
)

// --- Fakes ---

type captureNotifier struct {
	mu   sync.Mutex
	sent []bus.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n bus.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *captureNotifier) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, n := range c.sent {
		out[i] = n.Text
	}
	return out
}

type fakeHealth struct {
	mu    sync.Mutex
	beats []string
}

func (f *fakeHealth) UpsertHeartbeat(_ context.Context, module, status, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, module+":"+status)
	return nil
}

func (f *fakeHealth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beats)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func testRunner(notes *captureNotifier, health *fakeHealth, build func() (ingestSession, error)) *ingestRunner {
	r := newIngestRunner("work", health, notes, build)
	r.min = time.Millisecond
	r.max = 4 * time.Millisecond
	r.stable = 20 * time.Millisecond
	return r
}

// --- Resilient ingest ---

func TestIngestRunnerOfflineNoticeIsOneShot(t *testing.T) {
	notes := &captureNotifier{}
	health := &fakeHealth{}
	r := testRunner(notes, health, func() (ingestSession, error) {
		return ingestSession{
			run:   func(context.Context) error { return errors.New("updates stream closed") },
			close: func() error { return nil },
		}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	waitFor(t, func() bool { return health.count() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v, want nil on cancel", err)
	}

	if got := notes.count(); got != 1 {
		t.Fatalf("sent %d notices for one outage, want 1", got)
	}
	text := notes.texts()[0]
	if !strings.Contains(text, "[work]") || !strings.Contains(text, "отключился") {
		t.Errorf("offline notice = %q", text)
	}
	if !strings.Contains(text, "updates stream closed") {
		t.Errorf("offline notice misses the error: %q", text)
	}
}

func TestIngestRunnerRecoveryNotice(t *testing.T) {
	notes := &captureNotifier{}
	health := &fakeHealth{}
	release := make(chan struct{})
	var attempt atomic.Int32

	r := testRunner(notes, health, func() (ingestSession, error) {
		n := attempt.Add(1)
		return ingestSession{
			run: func(ctx context.Context) error {
				if n == 1 {
					return errors.New("flood wait")
				}
				select {
				case <-release:
					return errors.New("dropped again")
				case <-ctx.Done():
					return nil
				}
			},
			close: func() error { return nil },
		}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	// Crash, reconnect, survive the stability window.
	waitFor(t, func() bool { return notes.count() >= 2 })
	texts := notes.texts()
	if !strings.Contains(texts[0], "отключился") {
		t.Errorf("first notice = %q, want offline", texts[0])
	}
	if !strings.Contains(texts[1], "снова на связи") {
		t.Errorf("second notice = %q, want recovery", texts[1])
	}

	// A later crash is a fresh outage and speaks up again.
	close(release)
	waitFor(t, func() bool { return notes.count() >= 3 })
	if third := notes.texts()[2]; !strings.Contains(third, "отключился") {
		t.Errorf("third notice = %q, want offline", third)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v, want nil on cancel", err)
	}
}

func TestIngestRunnerBackoffSleepIsInterruptible(t *testing.T) {
	notes := &captureNotifier{}
	health := &fakeHealth{}
	r := testRunner(notes, health, func() (ingestSession, error) {
		return ingestSession{
			run:   func(context.Context) error { return errors.New("boom") },
			close: func() error { return nil },
		}, nil
	})
	r.min = time.Hour
	r.max = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	waitFor(t, func() bool { return notes.count() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return during backoff sleep")
	}
}

func TestIngestRunnerBuildErrorCountsAsCrash(t *testing.T) {
	notes := &captureNotifier{}
	health := &fakeHealth{}
	r := testRunner(notes, health, func() (ingestSession, error) {
		return ingestSession{}, errors.New("invalid proxy URL")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.run(ctx) }()

	waitFor(t, func() bool { return notes.count() >= 1 })
	cancel()
	<-done

	if !strings.Contains(notes.texts()[0], "invalid proxy URL") {
		t.Errorf("notice = %q, want build error text", notes.texts()[0])
	}
}

func TestNextBackoff(t *testing.T) {
	max := 300 * time.Second
	cases := []struct {
		cur, want time.Duration
	}{
		{30 * time.Second, 60 * time.Second},
		{60 * time.Second, 120 * time.Second},
		{120 * time.Second, 240 * time.Second},
		{240 * time.Second, 300 * time.Second},
		{300 * time.Second, 300 * time.Second},
	}
	for _, tc := range cases {
		if got := nextBackoff(tc.cur, max); got != tc.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tc.cur, got, tc.want)
		}
	}
}

// --- Late notifier ---

func TestLateNotifierRefusesUnbound(t *testing.T) {
	n := &lateNotifier{}
	if err := n.Notify(context.Background(), bus.Notification{Text: "hi"}); err == nil {
		t.Fatal("unbound notifier accepted a notification")
	}
}

func TestLateNotifierForwardsAfterBind(t *testing.T) {
	n := &lateNotifier{}
	sink := &captureNotifier{}
	n.bind(sink)

	if err := n.Notify(context.Background(), bus.Notification{Text: "hi"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sink.count() != 1 || sink.texts()[0] != "hi" {
		t.Errorf("sink got %v", sink.texts())
	}
}

// --- Schedule note ---

func TestScheduleNote(t *testing.T) {
	note := scheduleNote(config.ScheduleConfig{
		BriefingHour: 9,
		DeadlineHour: 14,
		BatchHour:    17,
		DigestHour:   21,
		WeeklyHour:   10,
	})
	for _, want := range []string{"09:00", "14:00", "17:00", "21:00", "вс 10:00"} {
		if !strings.Contains(note, want) {
			t.Errorf("schedule note %q misses %q", note, want)
		}
	}
}
