package tracker

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormlogger "gorm.io/gorm/logger"
)

// Store is the durable persistence interface for tracked messages.
// Writes must be idempotent upserts so the schema round-trips through
// LoadAll without loss.
type Store interface {
	// Upsert inserts or fully replaces the row for msg.MessageID.
	Upsert(msg *TrackedMessage) error

	// Delete removes the row for the given message id.
	Delete(messageID string) error

	// DeleteOlderThan removes all rows created before the cutoff.
	DeleteOlderThan(cutoff time.Time) error

	// LoadAll returns every stored message.
	LoadAll() ([]*TrackedMessage, error)

	// Close releases storage resources.
	Close() error
}

// gormStore persists tracked messages through GORM. Any dialect GORM
// supports works; sqlite is the default for single-process deployments.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by the given GORM database handle,
// migrating the tracked_messages table as needed.
func NewGormStore(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&TrackedMessage{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tracked_messages: %w", err)
	}
	return &gormStore{db: db}, nil
}

// OpenSQLite opens (or creates) a sqlite database at path and returns a
// tracker Store on top of it. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return NewGormStore(db)
}

// Upsert inserts or replaces the row for msg.MessageID.
func (s *gormStore) Upsert(msg *TrackedMessage) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		UpdateAll: true,
	}).Create(msg).Error
}

// Delete removes the row for the given message id.
func (s *gormStore) Delete(messageID string) error {
	return s.db.Delete(&TrackedMessage{}, "message_id = ?", messageID).Error
}

// DeleteOlderThan removes all rows created before the cutoff.
func (s *gormStore) DeleteOlderThan(cutoff time.Time) error {
	return s.db.Delete(&TrackedMessage{}, "created_at < ?", cutoff).Error
}

// LoadAll returns every stored message ordered by creation time.
func (s *gormStore) LoadAll() ([]*TrackedMessage, error) {
	var msgs []*TrackedMessage
	if err := s.db.Order("created_at asc").Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
