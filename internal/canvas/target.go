package canvas

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
	"go.uber.org/zap"
)

const targetHashKey = "canvas:target"

// ErrEmptyUpdate signals a target merge whose entries were all invalid.
var ErrEmptyUpdate = errors.New("canvas: no valid target entries")

// TargetStore holds the moderator-set blueprint overlay. Its lifecycle is
// independent of the live canvas: merges overlay new entries and leave
// unspecified coordinates untouched.
type TargetStore struct {
	kv     *kvstore.Store
	logger *zap.Logger
}

// NewTargetStore constructs the target store.
func NewTargetStore(cfg StoreConfig) (*TargetStore, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("canvas: key-value store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetStore{kv: cfg.KV, logger: logger}, nil
}

// GetAll returns the blueprint as a coord ("x:y") to color mapping.
func (s *TargetStore) GetAll(ctx context.Context) (map[string]string, error) {
	return s.kv.HGetAll(ctx, targetHashKey)
}

// Merge validates and writes the supplied entries, silently dropping any with
// an out-of-bounds coordinate or malformed color, and returns the number
// written. It fails with ErrEmptyUpdate when nothing survives validation, in
// which case no write is performed.
func (s *TargetStore) Merge(ctx context.Context, entries map[string]string) (int, error) {
	valid := make(map[string]string, len(entries))
	for coord, color := range entries {
		if !ValidColor(color) {
			s.logger.Debug("dropping target entry with bad color",
				zap.String("coord", coord),
				zap.String("color", color))
			continue
		}
		if _, _, err := ParseCoord(coord); err != nil {
			s.logger.Debug("dropping target entry with bad coord", zap.String("coord", coord))
			continue
		}
		valid[coord] = color
	}
	if len(valid) == 0 {
		return 0, ErrEmptyUpdate
	}
	if err := s.kv.HSet(ctx, targetHashKey, valid); err != nil {
		return 0, err
	}
	return len(valid), nil
}
