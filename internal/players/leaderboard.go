package players

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
)

const statsHashKey = "stats:pixelsPlaced"

// DefenderStat is one leaderboard row.
type DefenderStat struct {
	User   string `json:"user"`
	Placed int    `json:"placed"`
}

// LeaderboardConfig describes the dependencies of the leaderboard.
type LeaderboardConfig struct {
	KV *kvstore.Store
}

// Leaderboard holds per-user placement counters. Counters are created on
// first paint, only ever increase, and are never removed.
type Leaderboard struct {
	kv *kvstore.Store
}

// NewLeaderboard constructs the leaderboard.
func NewLeaderboard(cfg LeaderboardConfig) (*Leaderboard, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("players: key-value store required")
	}
	return &Leaderboard{kv: cfg.KV}, nil
}

// Increment bumps the user's placement counter, initializing it at one.
// The read-modify-write is not atomic across the pair; concurrent paints by
// the same user may lose an increment, which the store contract accepts.
func (l *Leaderboard) Increment(ctx context.Context, user string) error {
	raw, err := l.kv.HGetAll(ctx, statsHashKey)
	if err != nil {
		return err
	}
	current := 0
	if existing, ok := raw[user]; ok {
		if parsed, err := strconv.Atoi(existing); err == nil {
			current = parsed
		}
	}
	next := strconv.Itoa(current + 1)
	return l.kv.HSet(ctx, statsHashKey, map[string]string{user: next})
}

// Top returns the n highest counters in descending order, ties broken by
// username for a stable listing.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]DefenderStat, error) {
	ranked, err := l.ranked(ctx)
	if err != nil {
		return nil, err
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// RankOf returns the user's 1-based rank and placement count. The boolean is
// false when the user has never placed a pixel.
func (l *Leaderboard) RankOf(ctx context.Context, user string) (int, int, bool, error) {
	ranked, err := l.ranked(ctx)
	if err != nil {
		return 0, 0, false, err
	}
	for index, entry := range ranked {
		if entry.User == user {
			return index + 1, entry.Placed, true, nil
		}
	}
	return 0, 0, false, nil
}

func (l *Leaderboard) ranked(ctx context.Context) ([]DefenderStat, error) {
	raw, err := l.kv.HGetAll(ctx, statsHashKey)
	if err != nil {
		return nil, err
	}
	stats := make([]DefenderStat, 0, len(raw))
	for user, placedRaw := range raw {
		placed, err := strconv.Atoi(placedRaw)
		if err != nil {
			placed = 0
		}
		stats = append(stats, DefenderStat{User: user, Placed: placed})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Placed != stats[j].Placed {
			return stats[i].Placed > stats[j].Placed
		}
		return stats[i].User < stats[j].User
	})
	return stats, nil
}
