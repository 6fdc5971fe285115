package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filecrush/compressd/internal/model"
	"filecrush/compressd/internal/storage"
	"filecrush/compressd/pkg/apperr"
)

func newTestScheduler(t *testing.T) (*Scheduler, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	s := &Scheduler{
		Registry:    newTestRegistry(t),
		Store:       storage.NewLocalFs(fs),
		orphanGrace: 15 * time.Minute,
	}

	return s, fs
}

func putBlob(t *testing.T, s *Scheduler, key string) {
	t.Helper()

	err := s.Store.Write(context.Background(), key, bytes.NewReader([]byte("blob")), 4, "application/pdf")
	require.NoError(t, err)
}

func rowExists(t *testing.T, reg *Registry, id string) bool {
	t.Helper()

	var count int64
	err := reg.DB.Model(&model.FileRecord{}).Where("id = ?", id).Count(&count).Error
	require.NoError(t, err)

	return count > 0
}

func hasBlob(t *testing.T, s *Scheduler, key string) bool {
	t.Helper()

	_, err := s.Store.Stat(context.Background(), key)
	if err == nil {
		return true
	}
	require.True(t, apperr.Is(err, apperr.CodeNotFound))

	return false
}

func TestSweepReapsExpiredRecords(t *testing.T) {
	s, _ := newTestScheduler(t)
	now := time.Now()

	expired := seedRecord(t, s.Registry, model.StatusCompleted, now.Add(-time.Hour))
	live := seedRecord(t, s.Registry, model.StatusCompleted, now.Add(time.Hour))
	putBlob(t, s, expired.StorageName)
	putBlob(t, s, live.StorageName)

	reaped, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	assert.False(t, rowExists(t, s.Registry, expired.ID))
	assert.False(t, hasBlob(t, s, expired.StorageName))

	assert.True(t, rowExists(t, s.Registry, live.ID))
	assert.True(t, hasBlob(t, s, live.StorageName))
}

func TestSweepIsIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t)

	rec := seedRecord(t, s.Registry, model.StatusCompleted, time.Now().Add(-time.Hour))
	putBlob(t, s, rec.StorageName)

	reaped, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reaped, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reaped)
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	s, _ := newTestScheduler(t)

	// record exists but its blob is already gone
	rec := seedRecord(t, s.Registry, model.StatusCompleted, time.Now().Add(-time.Hour))

	reaped, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	assert.False(t, rowExists(t, s.Registry, rec.ID))
}

// deleteRefusingStore fails deletes for one specific key
type deleteRefusingStore struct {
	storage.Store
	refuse string
}

func (d *deleteRefusingStore) Delete(ctx context.Context, key string) error {
	if key == d.refuse {
		return apperr.Storage("disk unplugged", errors.New("io error"))
	}
	return d.Store.Delete(ctx, key)
}

func TestSweepSkipsFailingRecordAndContinues(t *testing.T) {
	s, _ := newTestScheduler(t)
	now := time.Now()

	stuck := seedRecord(t, s.Registry, model.StatusCompleted, now.Add(-time.Hour))
	ok := seedRecord(t, s.Registry, model.StatusCompleted, now.Add(-time.Hour))
	putBlob(t, s, stuck.StorageName)
	putBlob(t, s, ok.StorageName)

	s.Store = &deleteRefusingStore{Store: s.Store, refuse: stuck.StorageName}

	reaped, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	// the stuck record survives for the next run
	assert.True(t, rowExists(t, s.Registry, stuck.ID))
	assert.False(t, rowExists(t, s.Registry, ok.ID))
}

func TestOrphanSweepRemovesUnclaimedBlobs(t *testing.T) {
	s, fs := newTestScheduler(t)

	claimed := seedRecord(t, s.Registry, model.StatusCompleted, time.Now().Add(time.Hour))
	putBlob(t, s, claimed.StorageName)
	putBlob(t, s, "orphan.pdf")

	// age both blobs past the grace window
	old := time.Now().Add(-time.Hour)
	require.NoError(t, fs.Chtimes(claimed.StorageName, old, old))
	require.NoError(t, fs.Chtimes("orphan.pdf", old, old))

	removed, err := s.OrphanSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, hasBlob(t, s, claimed.StorageName))
	assert.False(t, hasBlob(t, s, "orphan.pdf"))
}

func TestOrphanSweepHonorsGraceWindow(t *testing.T) {
	s, _ := newTestScheduler(t)

	// an unclaimed blob written moments ago is an upload in flight,
	// not an orphan
	putBlob(t, s, "fresh.pdf")

	removed, err := s.OrphanSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.True(t, hasBlob(t, s, "fresh.pdf"))
}
