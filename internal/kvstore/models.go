package kvstore

// scalarEntry backs single-key values. ExpiresAtMillis of zero means the
// entry never expires; expired rows read as absent.
type scalarEntry struct {
	Key             string `gorm:"column:key;primaryKey;size:190;not null"`
	Value           string `gorm:"column:value;type:text;not null"`
	ExpiresAtMillis int64  `gorm:"column:expires_at_ms;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (scalarEntry) TableName() string {
	return "kv_scalars"
}

// hashEntry backs one field of a named hash.
type hashEntry struct {
	Hash  string `gorm:"column:hash_key;primaryKey;size:190;not null"`
	Field string `gorm:"column:field;primaryKey;size:190;not null"`
	Value string `gorm:"column:value;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (hashEntry) TableName() string {
	return "kv_hash_entries"
}

// Models lists the schema types the store requires; the database layer feeds
// them to AutoMigrate.
func Models() []interface{} {
	return []interface{}{&scalarEntry{}, &hashEntry{}}
}
