package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"filecrush/compressd/internal/model"
)

const statsRowID = 1

// StatsService maintains the global processing counters. All writes are
// best-effort: losing a counter update is acceptable, failing a request
// over one is not.
type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) (*StatsService, error) {
	s := &StatsService{DB: db}

	err := db.FirstOrCreate(&model.Stats{}, model.Stats{ID: statsRowID}).Error
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *StatsService) RecordSuccess(ctx context.Context, bytesIn, bytesOut int64) {
	err := s.DB.WithContext(ctx).
		Model(model.Stats{}).
		Where("id = ?", statsRowID).
		Updates(map[string]any{
			"processed_files": gorm.Expr("processed_files + ?", 1),
			"bytes_in":        gorm.Expr("bytes_in + ?", bytesIn),
			"bytes_out":       gorm.Expr("bytes_out + ?", bytesOut),
		}).
		Error
	if err != nil {
		zap.L().Warn("Failed to update processing stats", zap.Error(err))
	}
}

func (s *StatsService) RecordFailure(ctx context.Context) {
	err := s.DB.WithContext(ctx).
		Model(model.Stats{}).
		Where("id = ?", statsRowID).
		Update("failed_files", gorm.Expr("failed_files + ?", 1)).
		Error
	if err != nil {
		zap.L().Warn("Failed to update processing stats", zap.Error(err))
	}
}

func (s *StatsService) Get(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats

	err := s.DB.WithContext(ctx).
		Where("id = ?", statsRowID).
		Find(&stats).
		Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
