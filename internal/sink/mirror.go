package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"dorm-laundry-backend/config"
	"dorm-laundry-backend/internal/model"
)

// Mirror copies usage records into an external reporting database,
// fire-and-forget: jobs flow through a buffered channel into a small worker
// pool, failures are logged and never reach the caller.
type Mirror struct {
	db     *gorm.DB
	size   int
	jobs   chan job
	logger *zap.Logger
}

type job struct {
	record   *model.UsageRecord // set for inserts
	recordID string             // set for status updates
	status   model.UsageStatus
}

// Open connects to the reporting database and prepares the mirror. It
// returns (nil, nil) when the sink is disabled.
func Open(cfg config.SinkConfig, size int, logger *zap.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect reporting database: %w", err)
	}
	if err := db.AutoMigrate(&model.UsageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate reporting database: %w", err)
	}
	return NewMirror(db, size, logger), nil
}

func gormlogger() logger.Interface {
	return logger.Default.LogMode(logger.Silent)
}

// NewMirror creates a mirror over an already-open database handle.
func NewMirror(db *gorm.DB, size int, logger *zap.Logger) *Mirror {
	return &Mirror{
		db:     db,
		size:   size,
		jobs:   make(chan job, size*16),
		logger: logger,
	}
}

// Start launches the worker goroutines.
func (m *Mirror) Start(ctx context.Context) {
	for i := 0; i < m.size; i++ {
		go m.worker(ctx, i)
	}
}

func (m *Mirror) worker(ctx context.Context, id int) {
	m.logger.Info("sink worker started", zap.Int("worker", id))
	for {
		select {
		case j := <-m.jobs:
			m.apply(ctx, j)
		case <-ctx.Done():
			m.logger.Info("sink worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

func (m *Mirror) apply(ctx context.Context, j job) {
	var err error
	if j.record != nil {
		err = m.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(j.record).Error
	} else {
		err = m.db.WithContext(ctx).
			Model(&model.UsageRecord{}).
			Where("id = ?", j.recordID).
			Update("status", j.status).Error
	}
	if err != nil {
		m.logger.Warn("usage record mirror failed", zap.Error(err))
	}
}

// RecordStarted mirrors a freshly created usage record. Non-blocking: if the
// queue is full the record is dropped.
func (m *Mirror) RecordStarted(rec model.UsageRecord) {
	select {
	case m.jobs <- job{record: &rec}:
	default:
		m.logger.Warn("sink queue full, dropping usage record", zap.String("id", rec.ID))
	}
}

// RecordFinished mirrors a status change of an earlier record.
func (m *Mirror) RecordFinished(recordID string, status model.UsageStatus) {
	select {
	case m.jobs <- job{recordID: recordID, status: status}:
	default:
		m.logger.Warn("sink queue full, dropping status update", zap.String("id", recordID))
	}
}
