// Package indexer persists committed receipts into SQL so history can be
// queried without scanning state.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"charge2earn/core/events"
	"charge2earn/core/types"
)

var (
	ErrNilDatabase = errors.New("indexer: database not configured")
	errBadEvent    = errors.New("indexer: malformed event")
)

const maxPageSize = 500

// replaceFailed lets a receipt overwrite a stored row only while that row
// records a failure.
var replaceFailed = clause.OnConflict{
	Columns:   []clause.Column{{Name: "hash"}},
	DoUpdates: clause.AssignmentColumns([]string{"height", "success", "error_kind", "error"}),
	Where: clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: "tx_records", Name: "success"}, Value: false},
	}},
}

// Indexer writes receipts to a gorm database.
type Indexer struct {
	db *gorm.DB
}

// Open connects to the sqlite database at dsn and migrates the schema.
func Open(dsn string) (*Indexer, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", dsn, err)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Indexer, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db}, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IndexReceipts stores every receipt of height in one database transaction.
// Re-indexing a height is idempotent. A failed transaction that later
// succeeds under the same hash replaces its failed row.
func (ix *Indexer) IndexReceipts(ctx context.Context, height uint64, receipts []*types.Receipt) error {
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, receipt := range receipts {
			if receipt == nil {
				continue
			}
			hash := receipt.TxHash.Hex()
			row := TxRecord{
				Hash:      hash,
				Height:    height,
				Success:   receipt.Success,
				ErrorKind: receipt.ErrorKind,
				Error:     receipt.Error,
			}
			created := tx.Clauses(replaceFailed).Create(&row)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 0 || !receipt.Success {
				continue
			}
			for i, evt := range receipt.Events {
				if err := ix.storeEvent(tx, height, hash, i, evt); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (ix *Indexer) storeEvent(tx *gorm.DB, height uint64, hash string, pos int, evt types.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	record := EventRecord{
		Height:     height,
		TxHash:     hash,
		Position:   pos,
		Type:       evt.Type,
		Attributes: string(attrs),
	}
	if err := tx.Create(&record).Error; err != nil {
		return err
	}
	switch evt.Type {
	case events.TypeSessionStarted:
		start, err := parseInt(evt.Attributes, "startTs")
		if err != nil {
			return err
		}
		session := SessionRecord{
			Session:       evt.Attributes["session"],
			Driver:        evt.Attributes["driver"],
			Charger:       evt.Attributes["charger"],
			StartTs:       start,
			StartedHeight: height,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&session).Error
	case events.TypeSessionSettled:
		return settleSession(tx, height, evt.Attributes)
	}
	return nil
}

func settleSession(tx *gorm.DB, height uint64, attrs map[string]string) error {
	start, err := parseInt(attrs, "startTs")
	if err != nil {
		return err
	}
	end, err := parseInt(attrs, "endTs")
	if err != nil {
		return err
	}
	var nums [3]uint64
	for i, key := range []string{"duration", "paid", "points"} {
		if nums[i], err = parseUint(attrs, key); err != nil {
			return err
		}
	}
	session := SessionRecord{
		Session:       attrs["session"],
		Driver:        attrs["driver"],
		Charger:       attrs["charger"],
		Operator:      attrs["operator"],
		StartTs:       start,
		EndTs:         end,
		Duration:      nums[0],
		Paid:          nums[1],
		Points:        nums[2],
		Settled:       true,
		SettledHeight: height,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"operator", "end_ts", "duration", "paid", "points", "settled", "settled_height", "updated_at",
		}),
	}).Create(&session).Error
}

func parseInt(attrs map[string]string, key string) (int64, error) {
	v, err := strconv.ParseInt(attrs[key], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadEvent, key, err)
	}
	return v, nil
}

func parseUint(attrs map[string]string, key string) (uint64, error) {
	v, err := strconv.ParseUint(attrs[key], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadEvent, key, err)
	}
	return v, nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// DriverSessions returns the sessions of a driver record, newest first.
func (ix *Indexer) DriverSessions(ctx context.Context, driver string, limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	err := ix.db.WithContext(ctx).
		Where("driver = ?", driver).
		Order("start_ts DESC").
		Limit(pageSize(limit)).
		Find(&out).Error
	return out, err
}

// ChargerSessions returns the settled sessions of a charger, newest first.
func (ix *Indexer) ChargerSessions(ctx context.Context, charger string, limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	err := ix.db.WithContext(ctx).
		Where("charger = ? AND settled = ?", charger, true).
		Order("end_ts DESC").
		Limit(pageSize(limit)).
		Find(&out).Error
	return out, err
}

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	Type       string
	FromHeight uint64
	ToHeight   uint64
	Limit      int
}

// Events returns matching events in commit order.
func (ix *Indexer) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	q := ix.db.WithContext(ctx).Model(&EventRecord{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.FromHeight > 0 {
		q = q.Where("height >= ?", filter.FromHeight)
	}
	if filter.ToHeight > 0 {
		q = q.Where("height <= ?", filter.ToHeight)
	}
	var out []EventRecord
	err := q.Order("height ASC").Order("id ASC").Limit(pageSize(filter.Limit)).Find(&out).Error
	return out, err
}

// Transaction looks up an indexed transaction outcome.
func (ix *Indexer) Transaction(ctx context.Context, hash string) (*TxRecord, bool, error) {
	var row TxRecord
	err := ix.db.WithContext(ctx).Where("hash = ?", hash).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}

// LastHeight is the highest indexed height, zero when empty.
func (ix *Indexer) LastHeight(ctx context.Context) (uint64, error) {
	var height *uint64
	err := ix.db.WithContext(ctx).Model(&TxRecord{}).Select("MAX(height)").Scan(&height).Error
	if err != nil || height == nil {
		return 0, err
	}
	return *height, nil
}
