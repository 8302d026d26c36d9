package players

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestPresence(t *testing.T, now *time.Time) *PresenceTracker {
	t.Helper()
	clock := func() time.Time { return *now }
	tracker, err := NewPresenceTracker(PresenceTrackerConfig{
		KV:     newTestKV(t, clock),
		Window: 15 * time.Second,
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("failed to build tracker: %v", err)
	}
	return tracker
}

func TestPresenceFiltersStaleEntries(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tracker := newTestPresence(t, &now)
	ctx := context.Background()

	if err := tracker.MarkActive(ctx, "alice"); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}
	now = now.Add(10 * time.Second)
	if err := tracker.MarkActive(ctx, "bob"); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}

	users, err := tracker.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(users) != 2 || users[0] != "bob" || users[1] != "alice" {
		t.Fatalf("expected [bob alice], got %v", users)
	}

	// Alice's entry ages out of the window; no eviction happens, only the
	// read-time filter changes.
	now = now.Add(6 * time.Second)
	users, err = tracker.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(users) != 1 || users[0] != "bob" {
		t.Fatalf("expected only bob inside the window, got %v", users)
	}
}

func TestPresenceRefreshKeepsUserActive(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tracker := newTestPresence(t, &now)
	ctx := context.Background()

	if err := tracker.MarkActive(ctx, "alice"); err != nil {
		t.Fatalf("unexpected mark error: %v", err)
	}
	now = now.Add(14 * time.Second)
	if err := tracker.MarkActive(ctx, "alice"); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	now = now.Add(14 * time.Second)

	users, err := tracker.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected refreshed alice to stay active, got %v", users)
	}
}

func TestPresenceCapsAtTen(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tracker := newTestPresence(t, &now)
	ctx := context.Background()

	for i := 0; i < 13; i++ {
		if err := tracker.MarkActive(ctx, fmt.Sprintf("user-%02d", i)); err != nil {
			t.Fatalf("unexpected mark error: %v", err)
		}
		now = now.Add(time.Millisecond)
	}

	users, err := tracker.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(users) != 10 {
		t.Fatalf("expected list capped at 10, got %d", len(users))
	}
	if users[0] != "user-12" {
		t.Fatalf("expected most recent user first, got %v", users[0])
	}
}
