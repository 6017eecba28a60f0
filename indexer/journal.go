// Package indexer keeps a queryable SQL journal of lottery events.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rafflechain/core/events"
)

// EventRecord is one journaled lottery event.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey" json:"seq"`
	LotteryID  string    `gorm:"index;size:40" json:"lottery"`
	Type       string    `gorm:"index;size:64" json:"type"`
	Attributes string    `gorm:"type:text" json:"-"`
	RecordedAt time.Time `gorm:"index" json:"recordedAt"`
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() map[string]string {
	out := map[string]string{}
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Journal persists events through gorm. It implements events.Emitter so it
// can sit directly behind the lottery engine.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

func dialector(dsn string) gorm.Dialector {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// Open connects to a postgres:// URL or a SQLite file path and migrates the
// journal schema.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: dsn required")
	}
	db, err := gorm.Open(dialector(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, nowFn: time.Now}, nil
}

// Emit implements events.Emitter. Write failures are logged; the journal
// never blocks or fails the operation that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	attrs := payload.Event().Attributes
	encoded, err := json.Marshal(attrs)
	if err != nil {
		j.logger.Error("indexer: encode event", slog.String("type", evt.EventType()), slog.Any("error", err))
		return
	}
	record := EventRecord{
		LotteryID:  attrs["id"],
		Type:       evt.EventType(),
		Attributes: string(encoded),
		RecordedAt: j.nowFn().UTC(),
	}
	if err := j.db.Create(&record).Error; err != nil {
		j.logger.Error("indexer: store event", slog.String("type", record.Type), slog.Any("error", err))
	}
}

// Events returns the journal for one lottery in emission order. An empty
// lotteryID returns events of every lottery. limit <= 0 means no limit.
func (j *Journal) Events(lotteryID string, limit int) ([]EventRecord, error) {
	query := j.db.Model(&EventRecord{}).Order("id asc")
	if id := strings.ToLower(strings.TrimSpace(lotteryID)); id != "" {
		query = query.Where("lottery_id = ?", id)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var out []EventRecord
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
