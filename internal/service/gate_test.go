package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filecrush/compressd/internal/model"
	"filecrush/compressd/internal/storage"
	"filecrush/compressd/pkg/apperr"
)

var gateTestSecret = []byte("gate-test-secret")

func newTestGate(t *testing.T, threshold int64) *Gate {
	t.Helper()

	return &Gate{
		Registry:      newTestRegistry(t),
		Store:         storage.NewLocalFs(afero.NewMemMapFs()),
		AuthThreshold: threshold,
		secret:        gateTestSecret,
	}
}

func mintToken(t *testing.T, secret []byte, sub string, exp time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})

	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	return signed
}

func seedDownloadable(t *testing.T, g *Gate) *model.FileRecord {
	t.Helper()

	rec := seedRecord(t, g.Registry, model.StatusCompleted, time.Now().Add(time.Hour))
	err := g.Store.Write(context.Background(), rec.StorageName, bytes.NewReader([]byte("compressed")), 10, "application/pdf")
	require.NoError(t, err)

	return rec
}

func TestGateAnonymousDownloadBelowThreshold(t *testing.T) {
	g := newTestGate(t, 10<<20)
	rec := seedDownloadable(t, g)

	h, err := g.AuthorizeDownload(context.Background(), rec.ID, "")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "report.pdf", h.Name)
	assert.Equal(t, "application/pdf", h.ContentType)

	body, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("compressed"), body)

	got, err := g.Registry.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.DownloadCount)
}

func TestGateLargeDownloadRequiresToken(t *testing.T) {
	// threshold below the seeded compressed size
	g := newTestGate(t, 100)
	rec := seedDownloadable(t, g)

	_, err := g.AuthorizeDownload(context.Background(), rec.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeAuth))

	forged := mintToken(t, []byte("some-other-secret"), "alice", time.Now().Add(time.Hour))
	_, err = g.AuthorizeDownload(context.Background(), rec.ID, forged)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))

	valid := mintToken(t, gateTestSecret, "alice", time.Now().Add(time.Hour))
	h, err := g.AuthorizeDownload(context.Background(), rec.ID, valid)
	require.NoError(t, err)
	h.Close()
}

func TestGateRejectsExpiredToken(t *testing.T) {
	g := newTestGate(t, 100)
	rec := seedDownloadable(t, g)

	stale := mintToken(t, gateTestSecret, "alice", time.Now().Add(-time.Minute))
	_, err := g.AuthorizeDownload(context.Background(), rec.ID, stale)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))
}

func TestGateExpiredRecordIsNotFound(t *testing.T) {
	g := newTestGate(t, 10<<20)

	rec := seedRecord(t, g.Registry, model.StatusCompleted, time.Now().Add(-time.Minute))

	// a valid token doesn't resurrect an expired record
	token := mintToken(t, gateTestSecret, "alice", time.Now().Add(time.Hour))
	_, err := g.AuthorizeDownload(context.Background(), rec.ID, token)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGateHidesUnfinishedRecords(t *testing.T) {
	g := newTestGate(t, 10<<20)

	rec := seedRecord(t, g.Registry, model.StatusProcessing, time.Now().Add(time.Hour))

	_, err := g.AuthorizeDownload(context.Background(), rec.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGateMissingBlobIsNotFound(t *testing.T) {
	g := newTestGate(t, 10<<20)

	// the sweep won the race: record still visible, blob already gone
	rec := seedRecord(t, g.Registry, model.StatusCompleted, time.Now().Add(time.Hour))

	_, err := g.AuthorizeDownload(context.Background(), rec.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGateRejectsEmptyID(t *testing.T) {
	g := newTestGate(t, 10<<20)

	_, err := g.AuthorizeDownload(context.Background(), "", "")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestGateDeleteAnonymousRecord(t *testing.T) {
	g := newTestGate(t, 10<<20)
	rec := seedDownloadable(t, g)

	require.NoError(t, g.AuthorizeDelete(context.Background(), rec.ID, ""))

	assert.False(t, rowExists(t, g.Registry, rec.ID))
	_, err := g.Store.Stat(context.Background(), rec.StorageName)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	// a second delete sees nothing to remove
	err = g.AuthorizeDelete(context.Background(), rec.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestGateDeleteEnforcesOwnership(t *testing.T) {
	g := newTestGate(t, 10<<20)
	rec := seedDownloadable(t, g)

	err := g.Registry.DB.Model(&model.FileRecord{}).
		Where("id = ?", rec.ID).
		Update("owner_ref", "alice").
		Error
	require.NoError(t, err)

	// no credential at all
	err = g.AuthorizeDelete(context.Background(), rec.ID, "")
	assert.True(t, apperr.Is(err, apperr.CodeAuth))

	// someone else's credential
	bob := mintToken(t, gateTestSecret, "bob", time.Now().Add(time.Hour))
	err = g.AuthorizeDelete(context.Background(), rec.ID, bob)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	assert.True(t, rowExists(t, g.Registry, rec.ID))

	alice := mintToken(t, gateTestSecret, "alice", time.Now().Add(time.Hour))
	require.NoError(t, g.AuthorizeDelete(context.Background(), rec.ID, alice))
	assert.False(t, rowExists(t, g.Registry, rec.ID))
}

func TestGateVerifyTokenAlgorithmPinned(t *testing.T) {
	g := newTestGate(t, 10<<20)

	// tokens signed with anything but HS256 are rejected even when the
	// signature would otherwise check out
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(gateTestSecret)
	require.NoError(t, err)

	_, err = g.VerifyToken(signed)
	assert.True(t, apperr.Is(err, apperr.CodeAuth))
}
