// Package eventarchive mirrors committed ledger events into a SQL table so
// operators can filter history by type or market without scanning the
// key-value event log.
package eventarchive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"predictchain/core/events"
	"predictchain/core/types"
)

// Record is one archived event row.
type Record struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	Type       string  `gorm:"size:64;index"`
	MarketID   *uint64 `gorm:"index"`
	Attributes string  `gorm:"type:text"`
	ArchivedAt time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "ledger_events" }

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Type     string
	MarketID *uint64
	AfterID  uint64
	Limit    int
}

const defaultLimit = 100

// Archive is an events.Emitter backed by gorm.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (or creates) the SQLite archive at path. Use ":memory:" or a
// file: DSN for tests.
func Open(path string, log *slog.Logger) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventarchive: open %s: %w", path, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, errors.New("eventarchive: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventarchive: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archive{db: db, logger: log, now: time.Now}, nil
}

// Emit implements events.Emitter. Emit cannot fail the ledger operation that
// produced the event, so archive errors are logged and dropped.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	if err := a.Store(evt.Event()); err != nil {
		a.logger.Error("archive event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Store inserts a single event.
func (a *Archive) Store(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	rec := Record{
		Type:       evt.Type,
		MarketID:   marketID(evt),
		Attributes: string(attrs),
		ArchivedAt: a.now().UTC(),
	}
	return a.db.Create(&rec).Error
}

// Query returns archived records in insertion order.
func (a *Archive) Query(filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	tx := a.db.Model(&Record{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		tx = tx.Where("type = ?", filter.Type)
	}
	if filter.MarketID != nil {
		tx = tx.Where("market_id = ?", *filter.MarketID)
	}
	var out []Record
	if err := tx.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of archived events of the given type, or of all
// types when eventType is empty.
func (a *Archive) Count(eventType string) (int64, error) {
	tx := a.db.Model(&Record{})
	if eventType != "" {
		tx = tx.Where("type = ?", eventType)
	}
	var n int64
	err := tx.Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Event renders the record back into the ledger event shape.
func (r Record) Event() (*types.Event, error) {
	attrs := make(map[string]string)
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

func marketID(evt *types.Event) *uint64 {
	raw, ok := evt.Attributes["market"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
