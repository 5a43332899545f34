package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

const (
	ingestBackoffMin   = 30 * time.Second
	ingestBackoffMax   = 300 * time.Second
	ingestStableWindow = time.Minute

	listenerModule = "listener"
)

// ingestSession is one live listener+router pair. A session is built fresh
// for every attempt so a broken connection never leaks into the next one.
type ingestSession struct {
	run   func(ctx context.Context) error
	close func() error
}

type healthStore interface {
	UpsertHeartbeat(ctx context.Context, module, status, errText string, at time.Time) error
}

// ingestRunner keeps one upstream account alive across listener crashes.
// The owner hears about the first crash of an outage and about the
// recovery; crashes in between only reach the log. Reconnect attempts
// back off from 30 seconds to 5 minutes.
type ingestRunner struct {
	label  string
	health healthStore
	notify bus.Notifier
	build  func() (ingestSession, error)

	min    time.Duration
	max    time.Duration
	stable time.Duration
	now    func() time.Time
}

func newIngestRunner(label string, health healthStore, notify bus.Notifier, build func() (ingestSession, error)) *ingestRunner {
	return &ingestRunner{
		label:  label,
		health: health,
		notify: notify,
		build:  build,
		min:    ingestBackoffMin,
		max:    ingestBackoffMax,
		stable: ingestStableWindow,
		now:    time.Now,
	}
}

// run blocks until ctx is cancelled. Session errors never propagate; the
// runner logs them and reconnects.
func (r *ingestRunner) run(ctx context.Context) error {
	backoff := r.min
	outage := false

	for {
		err := r.runOnce(ctx, &outage, &backoff)
		if ctx.Err() != nil {
			return nil
		}

		slog.Error("ingest session ended", "account", r.label, "error", err)
		errText := ""
		if err != nil {
			errText = err.Error()
		}
		if hErr := r.health.UpsertHeartbeat(ctx, listenerModule, "error", errText, r.now().UTC()); hErr != nil {
			slog.Warn("heartbeat write failed", "module", listenerModule, "error", hErr)
		}
		if !outage {
			outage = true
			r.owner(ctx, fmt.Sprintf("⚠️ Аккаунт [%s] отключился: %v\nПереподключаюсь автоматически.", r.label, err))
		}

		slog.Info("ingest reconnect scheduled", "account", r.label, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, r.max)
	}
}

// runOnce drives a single session. A session that follows an outage and
// survives the stability window counts as a recovery: the owner gets a
// notice and the backoff resets.
func (r *ingestRunner) runOnce(ctx context.Context, outage *bool, backoff *time.Duration) error {
	session, err := r.build()
	if err != nil {
		return err
	}
	defer session.close()

	errCh := make(chan error, 1)
	go func() { errCh <- session.run(ctx) }()

	var stable <-chan time.Time
	if *outage {
		stable = time.After(r.stable)
	}

	for {
		select {
		case err := <-errCh:
			return err
		case <-stable:
			*outage = false
			*backoff = r.min
			stable = nil
			r.owner(ctx, fmt.Sprintf("✅ Аккаунт [%s] снова на связи.", r.label))
		case <-ctx.Done():
			return <-errCh
		}
	}
}

func (r *ingestRunner) owner(ctx context.Context, text string) {
	if err := r.notify.Notify(ctx, bus.Notification{Text: text, Plain: true}); err != nil {
		slog.Warn("ingest notice failed", "account", r.label, "error", err)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}
