// Package postgres stores memory blobs in a gorm-managed jsonb table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daw-agent-be/pkg/store"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MemoryBlob struct {
	Key       string         `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Data      datatypes.JSON `gorm:"type:jsonb;not null" json:"data"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemoryBlob) TableName() string {
	return "memory_blobs"
}

var errNotJSON = errors.New("postgres store: blob is not valid JSON")

type Store struct {
	db *gorm.DB
}

var _ store.BlobStore = (*Store)(nil)

// New migrates memory_blobs on db. The connection itself is owned by the caller.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&MemoryBlob{}); err != nil {
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}
	var blob MemoryBlob
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load %q: %w", key, err)
	}
	return []byte(blob.Data), nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	if !json.Valid(data) {
		return errNotJSON
	}
	blob := MemoryBlob{Key: key, Data: datatypes.JSON(data)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&blob).Error
	if err != nil {
		return fmt.Errorf("postgres store: save %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
