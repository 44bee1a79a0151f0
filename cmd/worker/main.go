package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/maxnotes/storefront/internal/app"
	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/config"
	"github.com/maxnotes/storefront/internal/lock"
	"github.com/maxnotes/storefront/internal/notify"
	"github.com/maxnotes/storefront/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "maxnotes"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, app.RedisOptions{Tracing: true, PingTimeout: 5 * time.Second})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskRedis, err := app.NewTaskRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task redis url")
	}

	worker := notify.EmailWorker{
		Mail:    mustInitMailer(cfg, logger),
		R:       redisClient,
		Locker:  lock.Locker{R: redisClient, Prefix: "lock:", MaxWait: 10 * time.Second},
		LockTTL: time.Minute,
		Logger:  logger,
	}

	srv := asynq.NewServer(taskRedis, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		RetryDelayFunc:  notify.RetryDelay(5*time.Second, 30*time.Minute),
		ShutdownTimeout: 20 * time.Second,
		Logger:          notify.TaskLogger{Log: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(notify.NewServeMux(worker)); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitMailer(cfg *config.Config, logger zerolog.Logger) common.EmailSender {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		logger.Warn().Msg("SENDGRID_API_KEY not set; purchase emails are discarded")
		return common.NopEmailSender{}
	}
	sender, err := notify.NewSendGrid(cfg.SendGridAPIKey, cfg.NotifyEmailFrom, cfg.NotifyEmailName, envOrDefault("SENDGRID_BASE_URL", ""))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise sendgrid")
	}
	return sender
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
