package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
	"go.uber.org/zap"
)

const (
	canvasHashKey     = "canvas:main"
	integrityCacheKey = "canvas:integrityPct"
)

// StoreConfig describes the dependencies required by the canvas store.
type StoreConfig struct {
	KV     *kvstore.Store
	Logger *zap.Logger
}

// Store is the authoritative pixel grid. Cells are stored sparsely; a cell
// with no entry reads as the default pixel. Callers validate bounds before
// writing; the store does not.
type Store struct {
	kv     *kvstore.Store
	logger *zap.Logger
}

// NewStore constructs the canvas store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("canvas: key-value store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: cfg.KV, logger: logger}, nil
}

// Get returns the pixel at (x, y), or the default pixel when unpainted.
func (s *Store) Get(ctx context.Context, x, y int) (Pixel, error) {
	state, err := s.GetAll(ctx)
	if err != nil {
		return Pixel{}, err
	}
	if pixel, ok := state[FormatCoord(x, y)]; ok {
		return pixel, nil
	}
	return DefaultPixel(), nil
}

// GetAll returns every explicitly stored pixel keyed by "x:y". Entries that
// fail to decode are logged and skipped rather than failing the read.
func (s *Store) GetAll(ctx context.Context) (map[string]Pixel, error) {
	raw, err := s.kv.HGetAll(ctx, canvasHashKey)
	if err != nil {
		return nil, err
	}
	state := make(map[string]Pixel, len(raw))
	for coord, encoded := range raw {
		var pixel Pixel
		if err := json.Unmarshal([]byte(encoded), &pixel); err != nil {
			s.logger.Warn("skipping undecodable pixel",
				zap.String("coord", coord),
				zap.Error(err))
			continue
		}
		state[coord] = pixel
	}
	return state, nil
}

// Set overwrites the pixel at (x, y).
func (s *Store) Set(ctx context.Context, x, y int, pixel Pixel) error {
	return s.SetMany(ctx, map[string]Pixel{FormatCoord(x, y): pixel})
}

// SetMany overwrites a batch of pixels in one write. Used by decay passes.
func (s *Store) SetMany(ctx context.Context, pixels map[string]Pixel) error {
	if len(pixels) == 0 {
		return nil
	}
	fields := make(map[string]string, len(pixels))
	for coord, pixel := range pixels {
		encoded, err := json.Marshal(pixel)
		if err != nil {
			return fmt.Errorf("canvas: encode pixel %s: %w", coord, err)
		}
		fields[coord] = string(encoded)
	}
	return s.kv.HSet(ctx, canvasHashKey, fields)
}

// RecalcIntegrity recomputes canvas integrity from the live grid and persists
// it as the cached value read between mutations.
func (s *Store) RecalcIntegrity(ctx context.Context) (float64, error) {
	state, err := s.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	pct := Integrity(state)
	if err := s.kv.Set(ctx, integrityCacheKey, formatFloat(pct)); err != nil {
		return 0, err
	}
	return pct, nil
}

// CachedIntegrity returns the persisted integrity value, if one exists.
func (s *Store) CachedIntegrity(ctx context.Context) (float64, bool, error) {
	raw, ok, err := s.kv.Get(ctx, integrityCacheKey)
	if err != nil || !ok {
		return 0, false, err
	}
	pct, err := parseFloat(raw)
	if err != nil {
		s.logger.Warn("discarding unparseable integrity cache", zap.String("value", raw))
		return 0, false, nil
	}
	return pct, true, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}
