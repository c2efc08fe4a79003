package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/colmadogutierrez/debtbook/pkg/db"
	"github.com/colmadogutierrez/debtbook/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps entries in the kv_entries table (sqlite or postgres).
type SQLStore struct {
	client *db.Client
}

func NewSQLStore(client *db.Client) *SQLStore {
	return &SQLStore{client: client}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := s.client.DB().WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read kv %q: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value}
	err := s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write kv %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	err := s.client.DB().WithContext(ctx).Where("entry_key = ?", key).Delete(&models.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
