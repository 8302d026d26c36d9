package players

import (
	"context"
	"testing"
)

func newTestLeaderboard(t *testing.T) *Leaderboard {
	t.Helper()
	board, err := NewLeaderboard(LeaderboardConfig{KV: newTestKV(t, nil)})
	if err != nil {
		t.Fatalf("failed to build leaderboard: %v", err)
	}
	return board
}

func TestLeaderboardCountsConsecutivePaints(t *testing.T) {
	board := newTestLeaderboard(t)
	ctx := context.Background()

	const paints = 7
	for i := 0; i < paints; i++ {
		if err := board.Increment(ctx, "alice"); err != nil {
			t.Fatalf("unexpected increment error: %v", err)
		}
	}

	rank, placed, ok, err := board.RankOf(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected rank error: %v", err)
	}
	if !ok {
		t.Fatal("expected alice to be ranked")
	}
	if rank != 1 || placed != paints {
		t.Fatalf("expected rank 1 with %d placed, got rank %d placed %d", paints, rank, placed)
	}
}

func TestLeaderboardTopOrdering(t *testing.T) {
	board := newTestLeaderboard(t)
	ctx := context.Background()

	counts := map[string]int{"alice": 3, "bob": 5, "carol": 1}
	for user, n := range counts {
		for i := 0; i < n; i++ {
			if err := board.Increment(ctx, user); err != nil {
				t.Fatalf("unexpected increment error: %v", err)
			}
		}
	}

	top, err := board.Top(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected top error: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected two rows, got %d", len(top))
	}
	if top[0].User != "bob" || top[0].Placed != 5 {
		t.Fatalf("expected bob first with 5, got %+v", top[0])
	}
	if top[1].User != "alice" || top[1].Placed != 3 {
		t.Fatalf("expected alice second with 3, got %+v", top[1])
	}
}

func TestLeaderboardRankOfUnknownUser(t *testing.T) {
	board := newTestLeaderboard(t)
	if _, _, ok, err := board.RankOf(context.Background(), "nobody"); err != nil || ok {
		t.Fatalf("expected unknown user to be unranked, ok=%v err=%v", ok, err)
	}
}

func TestLeaderboardTiesAreStable(t *testing.T) {
	board := newTestLeaderboard(t)
	ctx := context.Background()

	for _, user := range []string{"zed", "amy"} {
		if err := board.Increment(ctx, user); err != nil {
			t.Fatalf("unexpected increment error: %v", err)
		}
	}

	first, err := board.Top(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected top error: %v", err)
	}
	second, err := board.Top(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected top error: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected stable ordering across reads, got %v then %v", first, second)
		}
	}
}
