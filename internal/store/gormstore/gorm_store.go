// Package gormstore implements the persistence port on Gorm + SQLite.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"optrix/internal/market"
	"optrix/internal/store/model"
	"optrix/internal/tenant"
)

// GormStore implements store.Store using Gorm + SQLite.
type GormStore struct {
	db *gorm.DB

	// locks serializes read-modify-write per (tenant, segment). SQLite WAL
	// interleaves readers and a writer but does not order our RMW cycles.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.PositionModel{},
		&model.TradeModel{},
		&model.DailyStatsModel{},
		&model.BarModel{},
		&model.OrderEventModel{},
		&model.TickDiagnosticModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Small pool keeps lock contention low while the HTTP surface reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) keyLock(tid tenant.ID, segment string) *sync.Mutex {
	key := tid.String() + "|" + segment
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

// --- positions ---

func (s *GormStore) UpsertPosition(ctx context.Context, rec model.PositionModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	mu := s.keyLock(tid, rec.Segment)
	mu.Lock()
	defer mu.Unlock()
	rec.Tenant = tid.String()
	rec.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant"}, {Name: "segment"}, {Name: "leg"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *GormStore) GetPosition(ctx context.Context, segment, leg string) (model.PositionModel, bool, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return model.PositionModel{}, false, err
	}
	var rec model.PositionModel
	res := s.db.WithContext(ctx).
		Where("tenant = ? AND segment = ? AND leg = ?", tid.String(), segment, leg).
		Limit(1).Find(&rec)
	if res.Error != nil {
		return model.PositionModel{}, false, res.Error
	}
	return rec, res.RowsAffected > 0, nil
}

func (s *GormStore) ListOpenPositions(ctx context.Context) ([]model.PositionModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var recs []model.PositionModel
	if err := s.db.WithContext(ctx).Where("tenant = ?", tid.String()).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) DeletePosition(ctx context.Context, segment, leg string) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	mu := s.keyLock(tid, segment)
	mu.Lock()
	defer mu.Unlock()
	return s.db.WithContext(ctx).
		Where("tenant = ? AND segment = ? AND leg = ?", tid.String(), segment, leg).
		Delete(&model.PositionModel{}).Error
}

// --- trades ---

func (s *GormStore) InsertTrade(ctx context.Context, rec model.TradeModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	rec.Tenant = tid.String()
	if rec.Day == "" {
		rec.Day = rec.ExitTime.Format("2006-01-02")
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) TradesForDay(ctx context.Context, day string) ([]model.TradeModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	var recs []model.TradeModel
	if err := s.db.WithContext(ctx).
		Where("tenant = ? AND day = ?", tid.String(), day).
		Order("exit_time asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// --- daily stats ---

func (s *GormStore) UpsertDailyStats(ctx context.Context, rec model.DailyStatsModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	mu := s.keyLock(tid, "daily_stats")
	mu.Lock()
	defer mu.Unlock()
	rec.Tenant = tid.String()
	rec.UpdatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant"}, {Name: "day"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *GormStore) GetDailyStats(ctx context.Context, day string) (model.DailyStatsModel, bool, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return model.DailyStatsModel{}, false, err
	}
	var rec model.DailyStatsModel
	res := s.db.WithContext(ctx).
		Where("tenant = ? AND day = ?", tid.String(), day).
		Limit(1).Find(&rec)
	if res.Error != nil {
		return model.DailyStatsModel{}, false, res.Error
	}
	return rec, res.RowsAffected > 0, nil
}

// --- bars ---

func (s *GormStore) PutBars(ctx context.Context, instrument, interval string, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	recs := make([]model.BarModel, 0, len(bars))
	for _, b := range bars {
		recs = append(recs, model.BarModel{
			Instrument: instrument,
			Interval:   interval,
			TimeUnix:   b.Time.Unix(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			Synthetic:  b.Synthetic,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}, {Name: "interval"}, {Name: "time_unix"}},
		UpdateAll: true,
	}).CreateInBatches(recs, 200).Error
}

func (s *GormStore) GetBar(ctx context.Context, instrument, interval string, ts time.Time) (market.Bar, bool, error) {
	var rec model.BarModel
	res := s.db.WithContext(ctx).
		Where("instrument = ? AND interval = ? AND time_unix = ?", instrument, interval, ts.Unix()).
		Limit(1).Find(&rec)
	if res.Error != nil {
		return market.Bar{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return market.Bar{}, false, nil
	}
	return market.Bar{
		Time:      time.Unix(rec.TimeUnix, 0).In(ts.Location()),
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
		Synthetic: rec.Synthetic,
	}, true, nil
}

// --- audit ---

func (s *GormStore) InsertOrderEvent(ctx context.Context, rec model.OrderEventModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	rec.Tenant = tid.String()
	rec.CreatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) InsertDiagnostic(ctx context.Context, rec model.TickDiagnosticModel) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	rec.Tenant = tid.String()
	rec.CreatedAtUnix = time.Now().Unix()
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *GormStore) RecentDiagnostics(ctx context.Context, segment string, limit int) ([]model.TickDiagnosticModel, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("tenant = ?", tid.String())
	if segment != "" {
		q = q.Where("segment = ?", segment)
	}
	var recs []model.TickDiagnosticModel
	if err := q.Order("id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) Purge(ctx context.Context, olderThan time.Time) error {
	cutoff := olderThan.Unix()
	if err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).Delete(&model.TickDiagnosticModel{}).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).Delete(&model.OrderEventModel{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("time_unix < ?", cutoff).Delete(&model.BarModel{}).Error
}
