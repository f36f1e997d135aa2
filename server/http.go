package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"proctor-recorder/config"
	"proctor-recorder/constant"
	"proctor-recorder/dto"
	"proctor-recorder/handler"
	"proctor-recorder/pkg/rabbitmq"
	"proctor-recorder/pkg/ratelimit"
	"proctor-recorder/pkg/storage"
	"proctor-recorder/repository"
	"proctor-recorder/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	var publisher rabbitmq.Publisher
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn; finalized events disabled")
	} else {
		publisher = rabbitmq.NewPublisher(conn, cfg.Queue)
	}

	repo := repository.NewRepo(cfg.DB)
	if err := repository.Migrate(repo.GetDB()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("migration failed")
	}

	store := storage.NewMinIOStorage(cfg.Storage)
	limiter := ratelimit.New(cfg.Recording.RateLimit, cfg.Recording.RateLimitWindow)

	sessionService := service.NewSessionService(repo)
	chunkService := service.NewChunkService(repo, sessionService, store, limiter, cfg.MinIOBucket, cfg.Recording.PresignTTL)
	recordingService := service.NewRecordingService(repo, sessionService, publisher)

	h := &handler.Handler{
		Sessions:   sessionService,
		Chunks:     chunkService,
		Recordings: recordingService,
		Flags:      service.NewFlagStore(),
		Settings: dto.RecordingSettings{
			ChunkDurationMs: cfg.Recording.ChunkDurationMs,
			MaxRetries:      cfg.Recording.MaxRetries,
		},
	}

	r := gin.Default()
	addHealth(r)
	h.RegisterRoutes(r)

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
