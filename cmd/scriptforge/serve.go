package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/natalia/scriptforge/internal/config"
	"github.com/natalia/scriptforge/internal/credentials"
	"github.com/natalia/scriptforge/internal/db"
	"github.com/natalia/scriptforge/internal/ingestion"
	"github.com/natalia/scriptforge/internal/llm"
	"github.com/natalia/scriptforge/internal/pipeline"
	"github.com/natalia/scriptforge/internal/scheduler"
	"github.com/natalia/scriptforge/internal/server"
)

var (
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server, the pipeline worker pool, and the daily usage reset scheduler.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (config.Config, error) {
	cfg := config.Config{}
	if serveConfigPath != "" {
		loaded, err := config.LoadConfig(serveConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	sealKey, err := cfg.SealKey()
	if err != nil {
		return err
	}
	sealer, err := credentials.NewSealer(sealKey)
	if err != nil {
		return err
	}
	creds := credentials.NewStore(database, sealer)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(registry)

	articles := ingestion.NewArticleFetcher(&ingestion.ArticleFetcherConfig{UseBrowser: cfg.UseBrowser})
	fetcher := ingestion.NewRouter(ingestion.NewCachedFetcher(articles, nil))

	llmCfg := llm.DefaultConfig()
	llmCfg.CallTimeout = cfg.LLMTimeout()
	newClient := func(ctx context.Context, apiKey string) (llm.Client, error) {
		return llm.NewClient(ctx, llmCfg, apiKey)
	}

	orch := pipeline.NewOrchestrator(database, creds, fetcher, newClient, logger, metrics)
	pool := pipeline.NewPool(orch, cfg.Workers, cfg.QueueSize, logger, metrics)

	limits := pipeline.Limits{
		MaxRetries:   cfg.MaxRetries,
		MaxRevisions: cfg.MaxRevisions,
		DailyQuota:   cfg.DailyQuota,
	}
	controller := pipeline.NewController(database, pool, limits, logger)

	// Requeue anything a previous process left in flight, then start working.
	if _, err := controller.ResetOrphans(ctx); err != nil {
		return err
	}
	pool.Start(ctx)

	location, err := cfg.ResetLocation()
	if err != nil {
		return err
	}
	reset := scheduler.NewDailyReset(database, location, logger)
	go reset.Run(ctx)

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		JWTSecret:  cfg.JWTSecret,
		Registry:   registry,
	}, controller, creds, database, logger)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	pool.Shutdown()
	return nil
}
