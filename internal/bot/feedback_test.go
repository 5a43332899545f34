package bot

import (
	"testing"
	"time"
)

func TestFeedbackRegistryArmAndTake(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newFeedbackRegistry(func() time.Time { return now })

	r.arm(10, 77)
	fid, ok := r.take(10)
	if !ok || fid != 77 {
		t.Fatalf("take = (%d, %v), want (77, true)", fid, ok)
	}
	if _, ok := r.take(10); ok {
		t.Error("second take should miss")
	}
}

func TestFeedbackRegistryExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newFeedbackRegistry(func() time.Time { return now })

	r.arm(10, 77)
	now = now.Add(feedbackTimeout + time.Second)
	if _, ok := r.take(10); ok {
		t.Error("expired prompt should be dropped")
	}
	// The expired entry is removed, not resurrected.
	if _, ok := r.take(10); ok {
		t.Error("registry should be empty after expiry")
	}
}

func TestFeedbackRegistryJustWithinTimeout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newFeedbackRegistry(func() time.Time { return now })

	r.arm(10, 77)
	now = now.Add(feedbackTimeout)
	fid, ok := r.take(10)
	if !ok || fid != 77 {
		t.Fatalf("take at the boundary = (%d, %v), want (77, true)", fid, ok)
	}
}

func TestFeedbackRegistryRearmReplaces(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newFeedbackRegistry(func() time.Time { return now })

	r.arm(10, 77)
	r.arm(10, 88)
	fid, ok := r.take(10)
	if !ok || fid != 88 {
		t.Fatalf("take = (%d, %v), want the latest id 88", fid, ok)
	}
}

func TestFeedbackRegistryPerUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newFeedbackRegistry(func() time.Time { return now })

	r.arm(10, 1)
	r.arm(20, 2)
	if fid, ok := r.take(20); !ok || fid != 2 {
		t.Fatalf("user 20 take = (%d, %v)", fid, ok)
	}
	if fid, ok := r.take(10); !ok || fid != 1 {
		t.Fatalf("user 10 take = (%d, %v)", fid, ok)
	}
}
