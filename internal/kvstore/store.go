// Package kvstore provides the keyed storage contract the game components
// build on: atomic single-key scalars (optionally expiring), named hashes,
// and a compare-and-swap used to claim scheduled work. Each operation is a
// single statement against the database, which is the atomicity unit the
// rest of the system assumes.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config describes the dependencies required to construct a Store.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store is schema-agnostic keyed storage over a single relational backend.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs a Store with sane defaults.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("kvstore: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// Get returns the scalar stored at key. The second result is false when the
// key is absent or its entry has expired.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var row scalarEntry
	err := s.db.WithContext(ctx).Take(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if row.ExpiresAtMillis > 0 && row.ExpiresAtMillis <= s.clock().UnixMilli() {
		return "", false, nil
	}
	return row.Value, true, nil
}

// Set writes a non-expiring scalar, replacing any prior entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	row := scalarEntry{Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at_ms"}),
		}).
		Create(&row).Error
}

// SetWithTTL writes a scalar that reads as absent once ttl has elapsed.
func (s *Store) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	row := scalarEntry{
		Key:             key,
		Value:           value,
		ExpiresAtMillis: s.clock().Add(ttl).UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at_ms"}),
		}).
		Create(&row).Error
}

// CompareAndSwap replaces the scalar at key with next only if its current
// value equals prior. It reports whether this caller performed the swap.
// A prior of "" matches an absent key and inserts.
func (s *Store) CompareAndSwap(ctx context.Context, key, prior, next string) (bool, error) {
	if prior == "" {
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&scalarEntry{Key: key, Value: next})
		if result.Error != nil {
			return false, result.Error
		}
		return result.RowsAffected > 0, nil
	}
	result := s.db.WithContext(ctx).
		Model(&scalarEntry{}).
		Where("key = ? AND value = ?", key, prior).
		Updates(map[string]interface{}{"value": next, "expires_at_ms": 0})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HGetAll returns every field of the named hash.
func (s *Store) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	var rows []hashEntry
	if err := s.db.WithContext(ctx).Find(&rows, "hash_key = ?", hash).Error; err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(rows))
	for _, row := range rows {
		fields[row.Field] = row.Value
	}
	return fields, nil
}

// HSet upserts the provided fields into the named hash in one batch.
// Fields not named keep their prior values.
func (s *Store) HSet(ctx context.Context, hash string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	rows := make([]hashEntry, 0, len(fields))
	for field, value := range fields {
		rows = append(rows, hashEntry{Hash: hash, Field: field, Value: value})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash_key"}, {Name: "field"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&rows).Error
}
