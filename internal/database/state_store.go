package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/carecircle/internal/models"
)

// BlobStore persists ledger snapshots in the state_blobs table.
type BlobStore struct {
	db *gorm.DB
}

// NewBlobStore builds a BlobStore on an open connection.
func NewBlobStore(db *gorm.DB) *BlobStore {
	return &BlobStore{db: db}
}

// Load decodes the snapshot stored under key into dst. It reports false when
// nothing has been saved yet.
func (s *BlobStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	var blob models.StateBlob
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&blob).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := decodeBlob(key, blob.Payload, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Save replaces the snapshot stored under key.
func (s *BlobStore) Save(ctx context.Context, key string, src any) error {
	payload, err := encodeBlob(src)
	if err != nil {
		return err
	}

	blob := models.StateBlob{
		Key:           key,
		SchemaVersion: CurrentSchemaVersion,
		Payload:       payload,
		UpdatedAt:     time.Now(),
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"schema_version", "payload", "updated_at"}),
	}).Create(&blob).Error
}
