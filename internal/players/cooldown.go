// Package players tracks per-user game state: paint cooldowns, the presence
// window, and the placement leaderboard. Each component owns exactly one key
// namespace in the backing store.
package players

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
)

// DefaultCooldown is the minimum interval between successful paints.
const DefaultCooldown = 10 * time.Second

// CooldownResult reports the outcome of a cooldown acquisition.
type CooldownResult struct {
	Allowed   bool
	ExpiresAt time.Time
	Remaining time.Duration
}

// CooldownGuardConfig describes the dependencies of the cooldown guard.
type CooldownGuardConfig struct {
	KV       *kvstore.Store
	Duration time.Duration
	Clock    func() time.Time
}

// CooldownGuard throttles paints per user with a store-backed expiry.
type CooldownGuard struct {
	kv       *kvstore.Store
	duration time.Duration
	clock    func() time.Time
}

// NewCooldownGuard constructs a guard with sane defaults.
func NewCooldownGuard(cfg CooldownGuardConfig) (*CooldownGuard, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("players: key-value store required")
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultCooldown
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CooldownGuard{kv: cfg.KV, duration: duration, clock: clock}, nil
}

func cooldownKey(user string) string {
	return "cooldown:" + user
}

// TryAcquire checks the user's cooldown and, when clear, starts a new one.
// A denied result carries the remaining wait; an allowed result carries the
// new expiry for the caller to relay to the client. Callers must not paint
// without a preceding allowed result.
func (g *CooldownGuard) TryAcquire(ctx context.Context, user string) (CooldownResult, error) {
	now := g.clock()
	if expiresAt, active, err := g.Peek(ctx, user); err != nil {
		return CooldownResult{}, err
	} else if active {
		return CooldownResult{Remaining: expiresAt.Sub(now)}, nil
	}

	expiresAt := now.Add(g.duration)
	value := strconv.FormatInt(expiresAt.UnixMilli(), 10)
	if err := g.kv.SetWithTTL(ctx, cooldownKey(user), value, g.duration); err != nil {
		return CooldownResult{}, err
	}
	return CooldownResult{Allowed: true, ExpiresAt: expiresAt}, nil
}

// Peek reports the user's current cooldown expiry without side effects.
func (g *CooldownGuard) Peek(ctx context.Context, user string) (time.Time, bool, error) {
	raw, ok, err := g.kv.Get(ctx, cooldownKey(user))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	expiresAt := time.UnixMilli(millis)
	if !expiresAt.After(g.clock()) {
		return time.Time{}, false, nil
	}
	return expiresAt, true, nil
}
