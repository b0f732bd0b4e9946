package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/sbk2k1/sbk-assistant/internal/config"
	"github.com/sbk2k1/sbk-assistant/internal/filestore"
	"github.com/sbk2k1/sbk-assistant/internal/handler"
	"github.com/sbk2k1/sbk-assistant/internal/job"
	"github.com/sbk2k1/sbk-assistant/internal/middleware"
	"github.com/sbk2k1/sbk-assistant/internal/schedule"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", *configPath))
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logutil.GetLogger(ctx)
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("index_store", cfg.Index.Type),
		zap.String("upload_store", cfg.Upload.Store.Type),
		zap.String("llm", cfg.LLM.Provider+":"+cfg.LLM.Model),
		zap.String("embedding", cfg.Embedding.Provider+":"+cfg.Embedding.Model),
	)

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := handler.RouterDeps{
		Health: handler.NewHealthHandler(cfg.ServiceName),
		Upload: handler.NewUploadHandler(a.files, a.ingest, cfg.Upload.MaxSizeMB*1024*1024),
		Chat: handler.NewChatHandler(a.chatSvc, handler.ChatOptions{
			Protocol:       cfg.Chat.Protocol,
			ReturnSources:  cfg.Chat.SourcesEnabled(),
			TurnTimeout:    time.Duration(cfg.Chat.TurnTimeoutSeconds) * time.Second,
			AllowedOrigins: cfg.CORSOrigins,
		}),
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		UploadRateLimit: time.Duration(cfg.Upload.RateLimitMillis) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/chat"})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduleJobs(scheduler, cfg, a); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

func scheduleJobs(s *schedule.CronScheduler, cfg *config.Config, a *app) error {
	if spec := cfg.Schedule.EmbedCacheCleanup; spec != "" && a.cacheRepo != nil {
		if err := s.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Schedule.EmbedCacheMaxDays), spec); err != nil {
			return fmt.Errorf("schedule embedding cache cleanup: %w", err)
		}
	}
	if spec := cfg.Schedule.UploadCleanup; spec != "" && cfg.Upload.RetentionDays > 0 {
		pruner, ok := a.files.(filestore.Pruner)
		if !ok {
			logutil.GetLogger(context.Background()).Warn("upload store cannot prune, retention ignored", zap.String("type", a.files.Type()))
			return nil
		}
		maxAge := time.Duration(cfg.Upload.RetentionDays) * 24 * time.Hour
		if err := s.AddJob(job.NewUploadCleanupJob(pruner, maxAge), spec); err != nil {
			return fmt.Errorf("schedule upload cleanup: %w", err)
		}
	}
	return nil
}
