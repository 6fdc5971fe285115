package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"filecrush/compressd/internal/storage"
)

const sweepBatchSize = 500

// Scheduler reclaims storage. A main sweep deletes expired completed
// records (blob first, then metadata) and a slower orphan sweep removes
// blobs no record claims anymore. Every step is delete-if-exists, so a
// crash mid-sweep just means the next run finishes the job.
type Scheduler struct {
	Registry *Registry
	Store    storage.Store

	cron        *cron.Cron
	sweepEvery  time.Duration
	orphanEvery time.Duration
	orphanGrace time.Duration
}

func NewScheduler(reg *Registry, store storage.Store) *Scheduler {
	return &Scheduler{
		Registry:    reg,
		Store:       store,
		cron:        cron.New(),
		sweepEvery:  viper.GetDuration("lifecycle.sweep_interval"),
		orphanEvery: viper.GetDuration("lifecycle.orphan_interval"),
		orphanGrace: viper.GetDuration("lifecycle.orphan_grace"),
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.sweepEvery), func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			zap.L().Error("Expiry sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep, %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.orphanEvery), func() {
		if _, err := s.OrphanSweep(context.Background()); err != nil {
			zap.L().Error("Orphan sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule orphan sweep, %w", err)
	}

	s.cron.Start()

	zap.L().Debug("Lifecycle scheduler attached",
		zap.Duration("sweep_every", s.sweepEvery),
		zap.Duration("orphan_every", s.orphanEvery))

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep reaps expired completed records: blob first, metadata second.
// One record's failure never aborts the rest of the batch; anything
// skipped is picked up again on the next run.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	expired, err := s.Registry.FindExpired(ctx, s.Registry.Now(), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	if len(expired) == 0 {
		return 0, nil
	}

	reaped := 0
	for _, rec := range expired {
		if err := s.Store.Delete(ctx, rec.StorageName); err != nil {
			zap.L().Error("Failed to delete expired blob, skipping record",
				zap.String("id", rec.ID),
				zap.String("key", rec.StorageName),
				zap.Error(err))
			continue
		}

		if err := s.Registry.Remove(ctx, rec.ID); err != nil {
			// blob is already gone; the metadata row will be retried next
			// sweep and the delete above is a no-op by then
			zap.L().Error("Failed to remove expired record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}

		reaped++
	}

	zap.L().Info("Expiry sweep finished", zap.Int("expired", len(expired)), zap.Int("reaped", reaped))

	return reaped, nil
}

// OrphanSweep removes blobs without a live record. Fresh blobs get a
// grace window because a blob legitimately exists alone between its
// write and the record commit.
func (s *Scheduler) OrphanSweep(ctx context.Context) (int, error) {
	objects, err := s.Store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.Registry.Now().Add(-s.orphanGrace)
	removed := 0

	for _, obj := range objects {
		if obj.ModTime.After(cutoff) {
			continue
		}

		live, err := s.Registry.HasLiveStorageName(ctx, obj.Key)
		if err != nil {
			zap.L().Error("Failed to look up blob key, skipping", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		if live {
			continue
		}

		if err := s.Store.Delete(ctx, obj.Key); err != nil {
			zap.L().Error("Failed to delete orphan blob", zap.String("key", obj.Key), zap.Error(err))
			continue
		}

		zap.L().Debug("Removed orphan blob", zap.String("key", obj.Key))
		removed++
	}

	if removed > 0 {
		zap.L().Info("Orphan sweep finished", zap.Int("removed", removed))
	}

	return removed, nil
}
