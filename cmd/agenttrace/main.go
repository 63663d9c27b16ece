// Command agenttrace runs the collector: ingestion pipeline, pub/sub
// fan-out, alert evaluator and HTTP API in a single process.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenttrace/agenttrace/internal/alerting"
	"github.com/agenttrace/agenttrace/internal/api"
	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/pipeline"
	"github.com/agenttrace/agenttrace/internal/pricing"
	"github.com/agenttrace/agenttrace/internal/pubsub"
	"github.com/agenttrace/agenttrace/internal/retention"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/internal/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file to load")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting agenttrace", "version", version.Full(), "http_port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, storage.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("connected to database, migrations applied")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	publisher := pubsub.NewPublisher(redisClient)
	calculator := pricing.NewCalculator()

	pipelineCfg := pipeline.Config{
		BatchSize:             cfg.BatchSize,
		FlushInterval:         cfg.BatchTimeout,
		EnableCostCalculation: cfg.EnableCostCalculation,
		EnableFanout:          cfg.EnableFanout,
	}
	pl := pipeline.New(pipelineCfg, store, publisher, calculator, logger.With("component", "pipeline"))

	notifier := alerting.NewNotifier()
	evaluator := alerting.NewEvaluator(store, store, notifier, logger.With("component", "alerting"))

	retentionCfg := retention.Config{
		SpanRetention:          cfg.SpanRetention,
		ResolvedEventRetention: cfg.ResolvedEventRetention,
		Interval:               cfg.RetentionSweepInterval,
	}
	retainer := retention.New(retentionCfg, store, logger.With("component", "retention"))

	server := api.NewServer(store, pl, redisClient, evaluator)

	var wg errGroup
	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	wg.spawn(func() { pl.Run(pipelineCtx) })

	evalCtx, cancelEval := context.WithCancel(ctx)
	wg.spawn(func() { evaluator.Run(evalCtx) })

	retentionCtx, cancelRetention := context.WithCancel(ctx)
	wg.spawn(func() { retainer.Run(retentionCtx) })

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()
	logger.Info("http server listening", "addr", ":"+cfg.HTTPPort)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	cancelEval()
	cancelRetention()
	cancelPipeline()
	<-pl.Done()
	wg.wait()

	logger.Info("agenttrace stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// errGroup runs a set of goroutines and waits for all of them to return.
type errGroup struct {
	done []chan struct{}
}

func (g *errGroup) spawn(fn func()) {
	ch := make(chan struct{})
	g.done = append(g.done, ch)
	go func() {
		defer close(ch)
		fn()
	}()
}

func (g *errGroup) wait() {
	for _, ch := range g.done {
		<-ch
	}
}
