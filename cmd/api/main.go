// Package main is the entry point for the ranking API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/aipulse/toolrank/internal/api"
	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/config"
	"github.com/aipulse/toolrank/internal/dryrun"
	"github.com/aipulse/toolrank/internal/health"
	"github.com/aipulse/toolrank/internal/ingest"
	"github.com/aipulse/toolrank/internal/jobs"
	"github.com/aipulse/toolrank/internal/metrics"
	"github.com/aipulse/toolrank/internal/metricsource"
	"github.com/aipulse/toolrank/internal/middleware"
	"github.com/aipulse/toolrank/internal/ranking"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

func main() {
	configFile := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Toolrank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Weight calibration: a broken calibration file falls back to the
	// defaults, logged but not fatal.
	weights, err := ranking.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("using default ranking weights", "error", err)
	}
	engine := ranking.NewEngine(weights, logger)

	toolRepo := tool.NewPostgresRepository(db, logger)
	snapshotRepo := snapshot.NewPostgresRepository(db, logger)
	articleRepo := article.NewPostgresRepository(db, logger)
	snapshots := snapshot.NewManager(snapshotRepo, logger)

	// Preview cache: Redis when configured, in-process otherwise.
	var (
		cache        dryrun.PreviewCache
		redisChecker api.HealthChecker
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		cache = dryrun.NewRedisCache(client, cfg.PreviewTTL())
		redisChecker = health.NewRedisChecker(client)
	} else {
		cache = dryrun.NewMemoryCache(cfg.PreviewTTL())
	}

	m := metrics.New()

	analyzer := ingest.NewHTTPAnalyzer(cfg.AnalyzerEndpoint, cfg.AnalyzerAPIKey, cfg.AnalyzerModel, cfg.AnalyzerTimeout(), logger)
	pipeline := ingest.NewPipeline(analyzer, logger)
	extractor := ingest.NewExtractor(cfg.AnalyzerTimeout())

	coordinator := dryrun.NewCoordinator(dryrun.Deps{
		Tools:     toolRepo,
		Snapshots: snapshots,
		Pipeline:  pipeline,
		Extractor: extractor,
		Engine:    engine,
		Cache:     cache,
		Commit:    dryrun.NewTxCommit(db, logger),
		Metrics:   m,
		Logger:    logger,
	})

	// Background metric collection: refreshes baselines from recent
	// applied articles. Stops with the server context.
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(m.Registry()); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}
	collector := jobs.NewCollector(toolRepo,
		[]metricsource.Source{metricsource.NewArticleSource(articleRepo, metricsource.DefaultMentionWindow)},
		jobs.DefaultCollectInterval, jobMetrics, logger)
	go collector.Run(jobCtx)

	router := api.NewRouter(api.RouterConfig{
		Rankings: api.NewRankingHandlers(toolRepo, snapshots, engine, m, logger),
		Ingest:   api.NewIngestHandlers(coordinator, logger),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(db),
			RedisChecker: redisChecker,
		}),
		Metrics: m,
	})

	// Apply middleware: RequestID -> Logging
	handler := middleware.RequestID(middleware.Logging(logger)(router))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server",
			"port", cfg.Port,
			"algorithm_version", engine.AlgorithmVersion())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
