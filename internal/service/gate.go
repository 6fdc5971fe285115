package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"filecrush/compressd/internal/model"
	"filecrush/compressd/internal/storage"
	"filecrush/compressd/pkg/apperr"
)

// StreamHandle is an authorized, opened download
type StreamHandle struct {
	io.ReadCloser

	Name        string
	Size        int64
	ContentType string
}

// Gate authorizes downloads and deletes. It re-derives liveness from
// expiresAt on every call instead of trusting that the scheduler has
// already reaped anything, so both outcomes of a download racing the
// sweep look identical to the caller: not found.
type Gate struct {
	Registry *Registry
	Store    storage.Store

	// AuthThreshold is the compressed size in bytes above which a valid
	// caller token is required
	AuthThreshold int64

	secret []byte
}

func NewGate(reg *Registry, store storage.Store) *Gate {
	return &Gate{
		Registry:      reg,
		Store:         store,
		AuthThreshold: viper.GetInt64("access.auth_threshold"),
		secret:        []byte(viper.GetString("jwt.secret")),
	}
}

// AuthorizeDownload checks liveness and the size policy, then opens the
// blob. The download counter increment is best-effort and never blocks
// the stream.
func (g *Gate) AuthorizeDownload(ctx context.Context, id, token string) (*StreamHandle, error) {
	rec, err := g.authorize(ctx, id, token)
	if err != nil {
		return nil, err
	}

	rc, err := g.Store.Open(ctx, rec.StorageName)
	if err != nil {
		// the sweep may have won the race for an expired record; either
		// way the blob is gone and the answer is the same
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil, apperr.NotFound("file not found")
		}

		return nil, err
	}

	if err := g.Registry.IncrementDownloads(ctx, rec.ID); err != nil {
		zap.L().Debug("Download count not persisted", zap.String("id", rec.ID))
	}

	return &StreamHandle{
		ReadCloser:  rc,
		Name:        rec.OriginalName,
		Size:        rec.CompressedSize,
		ContentType: ContentType(rec.MediaType),
	}, nil
}

// AuthorizeDelete removes the blob and then the record. Owned records
// may only be deleted by their owner; anonymous records follow the same
// size policy as downloads. Both delete steps are idempotent.
func (g *Gate) AuthorizeDelete(ctx context.Context, id, token string) error {
	rec, err := g.authorize(ctx, id, token)
	if err != nil {
		return err
	}

	if rec.OwnerRef != nil {
		sub, err := g.VerifyToken(token)
		if err != nil {
			return err
		}

		if sub != *rec.OwnerRef {
			return apperr.Forbidden("file is owned by another user")
		}
	}

	if err := g.Store.Delete(ctx, rec.StorageName); err != nil {
		return err
	}

	if err := g.Registry.Remove(ctx, rec.ID); err != nil {
		return err
	}

	zap.L().Info("File deleted", zap.String("id", rec.ID))

	return nil
}

// authorize resolves the record and applies the shared liveness and
// size rules. Expired and non-completed records are not found; records
// above the threshold require a valid unexpired token.
func (g *Gate) authorize(ctx context.Context, id, token string) (*model.FileRecord, error) {
	if id == "" {
		return nil, apperr.Validation("no file ID provided")
	}

	rec, err := g.Registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.Status != model.StatusCompleted {
		return nil, apperr.NotFound("file not found")
	}

	if rec.CompressedSize > g.AuthThreshold {
		if _, err := g.VerifyToken(token); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// VerifyToken validates an HS256 caller token and returns its subject
func (g *Gate) VerifyToken(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", apperr.Auth("missing credential")
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}

		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.Auth("invalid credential")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.Auth("invalid credential")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !time.Now().Before(exp.Time) {
		return "", apperr.Auth("expired credential")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", apperr.Auth("invalid credential")
	}

	return sub, nil
}
