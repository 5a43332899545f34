package watchdog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

type fakeStore struct {
	health []store.HealthCheck
	beats  int
}

func (f *fakeStore) AllHealth(context.Context) ([]store.HealthCheck, error) {
	return f.health, nil
}

func (f *fakeStore) UpsertHeartbeat(context.Context, string, string, string, time.Time) error {
	f.beats++
	return nil
}

type captureNotifier struct {
	sent []bus.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n bus.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestInstructionFor(t *testing.T) {
	tests := []struct {
		name    string
		errText string
		want    string
	}{
		{"session expired", "telegram: Session Expired, reauthorize", "отклонил авторизацию"},
		{"connection refused", "dial tcp 127.0.0.1:5432: connection refused", "База данных"},
		{"rate limit", "anthropic: rate limit exceeded (429)", "лимита запросов"},
		{"disk space", "write: no disk space left", "Диск заполнен"},
		{"timeout", "context deadline exceeded: request timeout", "не ответила вовремя"},
		{"unknown", "something went sideways", "Инструкция не найдена"},
		{"empty", "", "Инструкция не найдена"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := instructionFor(tt.errText)
			if !strings.Contains(got, tt.want) {
				t.Errorf("instructionFor(%q) = %q, want substring %q", tt.errText, got, tt.want)
			}
		})
	}
}

func TestScanAlertsOnSilentModule(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{health: []store.HealthCheck{
		{Module: "bot", Status: "error", Error: "connection refused", Timestamp: now.Add(-16 * time.Minute)},
		{Module: "brain", Status: "ok", Timestamp: now.Add(-time.Minute)},
	}}
	sink := &captureNotifier{}
	w := New(Config{Store: st, Notifier: sink, Interval: 5 * time.Minute,
		Now: func() time.Time { return now }})

	w.scan(context.Background())

	if len(sink.sent) != 1 {
		t.Fatalf("alerts = %d, want 1", len(sink.sent))
	}
	text := sink.sent[0].Text
	for _, want := range []string{
		"Модуль bot не отвечает (16 мин)",
		"connection refused",
		"База данных",
		"Уведомление 1/3",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("alert missing %q:\n%s", want, text)
		}
	}
}

func TestScanBelowThresholdStaysQuiet(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{health: []store.HealthCheck{
		{Module: "bot", Status: "ok", Timestamp: now.Add(-14 * time.Minute)},
	}}
	sink := &captureNotifier{}
	w := New(Config{Store: st, Notifier: sink, Interval: 5 * time.Minute,
		Now: func() time.Time { return now }})

	w.scan(context.Background())
	if len(sink.sent) != 0 {
		t.Errorf("alerts = %d, want 0", len(sink.sent))
	}
}

func TestScanNeverBeatenModuleSkipped(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{}
	sink := &captureNotifier{}
	w := New(Config{Store: st, Notifier: sink, Now: func() time.Time { return now }})

	w.scan(context.Background())
	if len(sink.sent) != 0 {
		t.Errorf("alerts = %d, want 0", len(sink.sent))
	}
}

func TestAlertCapAndRecovery(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	down := store.HealthCheck{Module: "listener", Status: "error",
		Error: "session expired", Timestamp: now.Add(-30 * time.Minute)}
	st := &fakeStore{health: []store.HealthCheck{down}}
	sink := &captureNotifier{}
	w := New(Config{Store: st, Notifier: sink, Interval: 5 * time.Minute,
		Now: func() time.Time { return now }})

	// Five scans during one outage: alerts stop after three.
	for i := 0; i < 5; i++ {
		w.scan(context.Background())
	}
	if len(sink.sent) != 3 {
		t.Fatalf("alerts during outage = %d, want 3", len(sink.sent))
	}
	if !strings.Contains(sink.sent[2].Text, "Уведомление 3/3") {
		t.Errorf("third alert = %q", sink.sent[2].Text)
	}

	// Heartbeat returns: one recovery notice, counters reset.
	st.health = []store.HealthCheck{{Module: "listener", Status: "ok", Timestamp: now.Add(-time.Minute)}}
	w.scan(context.Background())
	if len(sink.sent) != 4 {
		t.Fatalf("after recovery sent = %d, want 4", len(sink.sent))
	}
	if !strings.Contains(sink.sent[3].Text, "Модуль listener восстановился") {
		t.Errorf("recovery notice = %q", sink.sent[3].Text)
	}

	// A second scan while healthy stays silent.
	w.scan(context.Background())
	if len(sink.sent) != 4 {
		t.Errorf("healthy rescan sent = %d, want 4", len(sink.sent))
	}

	// New outage alerts again from 1/3.
	st.health = []store.HealthCheck{down}
	w.scan(context.Background())
	if len(sink.sent) != 5 {
		t.Fatalf("new outage sent = %d, want 5", len(sink.sent))
	}
	if !strings.Contains(sink.sent[4].Text, "Уведомление 1/3") {
		t.Errorf("new outage alert = %q", sink.sent[4].Text)
	}
}

func TestDefaultModules(t *testing.T) {
	w := New(Config{})
	if len(w.modules) != 4 {
		t.Fatalf("default modules = %v", w.modules)
	}
	for _, name := range []string{"listener", "bot", "brain", "scheduler"} {
		found := false
		for _, m := range w.modules {
			if m == name {
				found = true
			}
		}
		if !found {
			t.Errorf("default modules missing %s", name)
		}
	}
}
