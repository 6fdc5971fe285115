package service

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"filecrush/compressd/internal/codec"
	"filecrush/compressd/internal/model"
	"filecrush/compressd/internal/storage"
	"filecrush/compressd/pkg/apperr"
)

// Input is a validated upload sitting in a temp file, ready for the engine
type Input struct {
	Path         string
	Size         int64
	MediaType    model.MediaType
	OriginalName string
	OwnerRef     *string
}

// Engine orchestrates the per-type compression strategies and owns the
// record for the whole active lifetime of a request: create, process,
// commit or fail. Nothing else mutates a record mid-flight.
type Engine struct {
	Registry *Registry
	Store    storage.Store
	Queue    *JobQueue
	Media    codec.MediaCodec
	PDF      codec.PDFCodec
	Stats    *StatsService

	TTL           time.Duration
	PDFBudget     time.Duration
	EnhanceImages bool
}

func NewEngine(reg *Registry, store storage.Store, queue *JobQueue, media codec.MediaCodec, pdf codec.PDFCodec, stats *StatsService) *Engine {
	return &Engine{
		Registry:      reg,
		Store:         store,
		Queue:         queue,
		Media:         media,
		PDF:           pdf,
		Stats:         stats,
		TTL:           viper.GetDuration("lifecycle.ttl"),
		PDFBudget:     viper.GetDuration("codec.pdf_budget"),
		EnhanceImages: viper.GetBool("codec.enhance_images"),
	}
}

// Process runs the full pipeline for one upload. On success the record
// is committed completed together with its sizes; on failure the record
// is marked failed and any partial blob is deleted before returning,
// so the scheduler never has to clean up after a failed request.
func (e *Engine) Process(ctx context.Context, in Input) (*model.FileRecord, error) {
	if in.Size <= 0 {
		return nil, apperr.Validation("empty file")
	}
	if !in.MediaType.Valid() {
		return nil, apperr.Validation("unsupported media type")
	}

	key, err := gonanoid.New()
	if err != nil {
		return nil, apperr.Storage("failed to generate storage key", err)
	}

	now := e.Registry.Now()

	rec := &model.FileRecord{
		ID:           newRecordID(),
		OriginalName: in.OriginalName,
		StorageName:  key + outExt(in.MediaType),
		MediaType:    in.MediaType,
		OriginalSize: in.Size,
		Status:       model.StatusUploaded,
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.TTL),
		OwnerRef:     in.OwnerRef,
	}

	if err := e.Registry.Create(ctx, rec); err != nil {
		return nil, err
	}

	if err := e.Registry.MarkProcessing(ctx, rec.ID); err != nil {
		e.fail(rec, err)
		return nil, err
	}
	rec.Status = model.StatusProcessing

	res, err := e.compress(ctx, rec.ID, in)
	if err != nil {
		e.fail(rec, err)
		return nil, err
	}
	defer os.Remove(res.Path)

	out, err := os.Open(res.Path)
	if err != nil {
		werr := apperr.Storage("failed to open codec output", err)
		e.fail(rec, werr)
		return nil, werr
	}

	err = e.Store.Write(ctx, rec.StorageName, out, res.Size, ContentType(in.MediaType))
	out.Close()
	if err != nil {
		// a failed write may leave a partial object; remove it now rather
		// than leaving it for the orphan sweep
		e.deleteBlob(rec.StorageName)
		e.fail(rec, err)
		return nil, err
	}

	if err := e.Registry.Complete(ctx, rec.ID, res.Size); err != nil {
		e.deleteBlob(rec.StorageName)
		e.fail(rec, err)
		return nil, err
	}

	rec.Status = model.StatusCompleted
	rec.CompressedSize = res.Size

	if e.Stats != nil {
		e.Stats.RecordSuccess(ctx, in.Size, res.Size)
	}

	zap.L().Info("File processed",
		zap.String("id", rec.ID),
		zap.String("media_type", string(rec.MediaType)),
		zap.Int64("original_size", rec.OriginalSize),
		zap.Int64("compressed_size", rec.CompressedSize),
		zap.Int("saved_percent", rec.SavedPercent()))

	return rec, nil
}

func (e *Engine) compress(ctx context.Context, id string, in Input) (codec.Result, error) {
	switch in.MediaType {
	case model.MediaImage:
		return e.processImage(ctx, id, in)
	case model.MediaVideo:
		return e.runCodec(ctx, id, func(ctx context.Context) (codec.Result, error) {
			return e.Media.TranscodeVideo(ctx, in.Path)
		})
	case model.MediaAudio:
		return e.runCodec(ctx, id, func(ctx context.Context) (codec.Result, error) {
			return e.Media.TranscodeAudio(ctx, in.Path)
		})
	case model.MediaPDF:
		return e.processPDF(ctx, id, in)
	default:
		return codec.Result{}, apperr.Validation("unsupported media type")
	}
}

// processImage always runs the plain pass. The enhanced pass is
// cosmetic: it's only kept when it doesn't cost bytes over the plain
// result, and its failure falls back to the plain result instead of
// failing the request.
func (e *Engine) processImage(ctx context.Context, id string, in Input) (codec.Result, error) {
	plain, err := e.runCodec(ctx, id, func(ctx context.Context) (codec.Result, error) {
		return e.Media.CompressImage(ctx, in.Path, false)
	})
	if err != nil {
		return codec.Result{}, err
	}

	if !e.EnhanceImages {
		return plain, nil
	}

	enhanced, err := e.runCodec(ctx, id, func(ctx context.Context) (codec.Result, error) {
		return e.Media.CompressImage(ctx, in.Path, true)
	})
	if err != nil {
		zap.L().Warn("Image enhancement pass failed, keeping plain result", zap.String("id", id), zap.Error(err))
		return plain, nil
	}

	return keepSmaller(plain, enhanced), nil
}

// runCodec schedules one codec invocation on the worker pool and waits
// for that invocation only
func (e *Engine) runCodec(ctx context.Context, id string, fn func(ctx context.Context) (codec.Result, error)) (codec.Result, error) {
	var res codec.Result

	err := e.Queue.Do(ctx, id, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.CodeCodec) {
			return codec.Result{}, err
		}

		return codec.Result{}, apperr.Codec("codec invocation failed", err)
	}

	return res, nil
}

// keepSmaller returns the smaller result and removes the other one's
// temp file. Ties go to b so an equal-size enhanced pass wins.
func keepSmaller(a, b codec.Result) codec.Result {
	if b.Size <= a.Size {
		os.Remove(a.Path)
		return b
	}

	os.Remove(b.Path)
	return a
}

func (e *Engine) fail(rec *model.FileRecord, cause error) {
	if err := e.Registry.Fail(context.Background(), rec.ID, apperr.Message(cause)); err != nil {
		zap.L().Error("Failed to mark record as failed", zap.String("id", rec.ID), zap.Error(err))
	}

	rec.Status = model.StatusFailed

	if e.Stats != nil {
		e.Stats.RecordFailure(context.Background())
	}
}

// deleteBlob is the synchronous partial cleanup after a failed write or
// commit. Detached from the request context so cancellation can't leave
// the partial behind.
func (e *Engine) deleteBlob(key string) {
	if err := e.Store.Delete(context.Background(), key); err != nil {
		zap.L().Error("Failed to clean up partial blob", zap.String("key", key), zap.Error(err))
	}
}

func newRecordID() string {
	return uuid.NewString()
}

func outExt(m model.MediaType) string {
	switch m {
	case model.MediaImage:
		return ".jpg"
	case model.MediaVideo:
		return ".mp4"
	case model.MediaAudio:
		return ".m4a"
	case model.MediaPDF:
		return ".pdf"
	default:
		return ".bin"
	}
}

// ContentType returns the MIME type the artifact is stored and served as
func ContentType(m model.MediaType) string {
	switch m {
	case model.MediaImage:
		return "image/jpeg"
	case model.MediaVideo:
		return "video/mp4"
	case model.MediaAudio:
		return "audio/mp4"
	case model.MediaPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
