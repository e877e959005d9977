package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is one stored property row.
type Record struct {
	data.BaseModel

	Scope    string `gorm:"type:varchar(20);not null;uniqueIndex:idx_bsr_key"   json:"scope"`
	Owner    string `gorm:"type:varchar(255);not null;uniqueIndex:idx_bsr_key"  json:"owner"`
	Property string `gorm:"type:varchar(255);not null;uniqueIndex:idx_bsr_key"  json:"property"`
	Value    []byte `gorm:"type:bytea"                                          json:"-"`
}

func (Record) TableName() string { return "bot_state_records" }

// DBStore keeps values in the service datastore.
type DBStore struct {
	pool pool.Pool
}

// NewDBStore creates a store over the frame datastore pool.
func NewDBStore(p pool.Pool) *DBStore {
	return &DBStore{pool: p}
}

func (s *DBStore) db(ctx context.Context, readOnly bool) *gorm.DB {
	return s.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the records table.
func (s *DBStore) Migrate(ctx context.Context) error {
	return s.db(ctx, false).AutoMigrate(&Record{})
}

func (s *DBStore) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var rec Record
	err := s.db(ctx, true).
		Where("scope = ? AND owner = ? AND property = ?", key.Scope, key.Owner, key.Property).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db get %s: %w", key, err)
	}
	return rec.Value, nil
}

func (s *DBStore) Set(ctx context.Context, key Key, value []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	rec := &Record{
		Scope:    string(key.Scope),
		Owner:    key.Owner,
		Property: key.Property,
		Value:    value,
	}
	err := s.db(ctx, false).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}, {Name: "owner"}, {Name: "property"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("db set %s: %w", key, err)
	}
	return nil
}

// Delete removes the row permanently so the unique key can be reused.
func (s *DBStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	err := s.db(ctx, false).Unscoped().
		Where("scope = ? AND owner = ? AND property = ?", key.Scope, key.Owner, key.Property).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("db delete %s: %w", key, err)
	}
	return nil
}
