package players

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
)

const (
	presenceHashKey = "presence:lastSeen"

	// DefaultPresenceWindow is the trailing span within which a user's last
	// activity still marks them active.
	DefaultPresenceWindow = 15 * time.Second

	maxActiveUsers = 10
)

// PresenceTrackerConfig describes the dependencies of the presence tracker.
type PresenceTrackerConfig struct {
	KV     *kvstore.Store
	Window time.Duration
	Clock  func() time.Time
}

// PresenceTracker maintains the sliding-window set of recently active users.
// Entries never expire in the store; staleness is filtered at read time.
type PresenceTracker struct {
	kv     *kvstore.Store
	window time.Duration
	clock  func() time.Time
}

// NewPresenceTracker constructs a tracker with sane defaults.
func NewPresenceTracker(cfg PresenceTrackerConfig) (*PresenceTracker, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("players: key-value store required")
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultPresenceWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PresenceTracker{kv: cfg.KV, window: window, clock: clock}, nil
}

// MarkActive records the user as seen now.
func (t *PresenceTracker) MarkActive(ctx context.Context, user string) error {
	value := strconv.FormatInt(t.clock().UnixMilli(), 10)
	return t.kv.HSet(ctx, presenceHashKey, map[string]string{user: value})
}

// ActiveUsers returns users seen inside the window, most recent first,
// truncated to the top ten.
func (t *PresenceTracker) ActiveUsers(ctx context.Context) ([]string, error) {
	raw, err := t.kv.HGetAll(ctx, presenceHashKey)
	if err != nil {
		return nil, err
	}

	type seen struct {
		user string
		at   int64
	}
	now := t.clock().UnixMilli()
	recent := make([]seen, 0, len(raw))
	for user, tsRaw := range raw {
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			continue
		}
		if now-ts <= t.window.Milliseconds() {
			recent = append(recent, seen{user: user, at: ts})
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		if recent[i].at != recent[j].at {
			return recent[i].at > recent[j].at
		}
		return recent[i].user < recent[j].user
	})

	users := make([]string, 0, len(recent))
	for _, entry := range recent {
		users = append(users, entry.user)
		if len(users) == maxActiveUsers {
			break
		}
	}
	return users, nil
}
