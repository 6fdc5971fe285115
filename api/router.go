// Package api contains all endpoints available
package api

import (
	"fmt"
	"slices"
	"time"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"filecrush/compressd/db"
	"filecrush/compressd/internal/codec"
	"filecrush/compressd/internal/service"
	"filecrush/compressd/internal/storage"
	"filecrush/compressd/pkg/middleware"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var store = persist.NewMemoryStore(time.Minute)

type API struct {
	DB        *gorm.DB
	Router    *gin.Engine
	Store     storage.Store
	Registry  *service.Registry
	Engine    *service.Engine
	Gate      *service.Gate
	Scheduler *service.Scheduler
	Stats     *service.StatsService
	JobQueue  *service.JobQueue
}

func NewRouter() (*API, error) {
	a := &API{
		JobQueue: service.NewJobQueue(),
	}

	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	a.DB = database

	makeLogger()

	switch viper.GetString("storage.type") {
	case "s3":
		s3, err := storage.NewS3()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage, %w", err)
		}
		a.Store = s3
	default:
		local, err := storage.NewLocal(viper.GetString("storage.local_path"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage, %w", err)
		}
		a.Store = local
	}

	allowed := viper.GetStringSlice("upload.allowed_types")

	var media codec.MediaCodec
	if slices.Contains(allowed, "image") || slices.Contains(allowed, "video") || slices.Contains(allowed, "audio") {
		ffmpeg, err := codec.NewFFmpeg()
		if err != nil {
			return nil, err
		}
		media = ffmpeg
	}

	var pdf codec.PDFCodec
	if slices.Contains(allowed, "pdf") {
		gs, err := codec.NewGhostscript()
		if err != nil {
			return nil, err
		}
		pdf = gs
	}

	a.Registry = service.NewRegistry(database)

	a.Stats, err = service.NewStatsService(database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stats, %w", err)
	}

	a.Engine = service.NewEngine(a.Registry, a.Store, a.JobQueue, media, pdf, a.Stats)
	a.Gate = service.NewGate(a.Registry, a.Store)
	a.Scheduler = service.NewScheduler(a.Registry, a.Store)

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	a.Router.MaxMultipartMemory = 5 << 20

	maxUploadSize := viper.GetInt64("upload.max_size")

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 			-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)

		// GET /api/stats			-> Aggregate processing counters
		main.GET("/stats", cacheFor(30), a.StatsFetch)
	}

	files := main.Group("/files")
	{
		// POST /api/files			-> Uploads a file, runs it through compression
		files.POST("", middleware.BodySizeLimiter(maxUploadSize), a.FileProcess)

		// GET /api/files/:id			-> Returns a record summary
		files.GET("/:id", a.FileFetch)

		// GET /api/files/:id/download		-> Streams the compressed artifact
		files.GET("/:id/download", a.FileDownload)

		// DELETE /api/files/:id		-> Deletes an artifact early
		files.DELETE("/:id", a.FileDelete)
	}

	a.JobQueue.StartWorkerPool()

	if err := a.Scheduler.Start(); err != nil {
		return nil, err
	}

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
