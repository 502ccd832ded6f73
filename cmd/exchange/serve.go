package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"creatorExchange/internal/api"
	"creatorExchange/internal/metrics"
	"creatorExchange/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var journal storage.Journal
	if cfg.Journal != "" {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}

	rec := metrics.NewRecorder()
	coord, err := newCoordinator(cfg, store, journal, rec, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(coord, rec, api.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, logger)

	logger.Info("exchange start",
		zap.String("listen", cfg.Listen),
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.String("journal", cfg.Journal),
		zap.String("base_fee_pct", cfg.BaseFeePct.String()),
		zap.String("max_fee_pct", cfg.MaxFeePct.String()),
		zap.String("fee_decay_threshold", cfg.FeeDecayThreshold.String()),
		zap.Float64("rate_limit", cfg.RateLimit),
	)

	return server.Run(ctx, cfg.Listen)
}
