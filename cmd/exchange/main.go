package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"creatorExchange/internal/config"
	"creatorExchange/internal/pricing"
	"creatorExchange/internal/settlement"
	"creatorExchange/internal/storage"
	"creatorExchange/internal/storage/memory"
	"creatorExchange/internal/storage/postgres"
	"creatorExchange/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "exchange",
		Short:        "Creator token exchange",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trading API",
		RunE:  runServe,
	}
	config.RegisterFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("quote-ttl", 5*time.Minute, "advisory quote lifetime")
	serveCmd.Flags().Float64("rate-limit", 20, "requests per second per client, 0 disables")
	serveCmd.Flags().Int("rate-burst", 50, "rate limiter burst")
	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE:  runMigrate,
	}
	config.RegisterFlags(migrateCmd.Flags())
	root.AddCommand(migrateCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "List a creator pool and fund accounts",
		RunE:  runSeed,
	}
	config.RegisterFlags(seedCmd.Flags())
	seedCmd.Flags().String("creator", "", "creator id of the pool to list")
	seedCmd.Flags().String("symbol", "", "token symbol, defaults to the upper-cased creator id")
	seedCmd.Flags().String("initial-price", "", "starting token price in NMBR")
	seedCmd.Flags().StringSlice("fund", nil, "user=amount credits (comma-separated)")
	root.AddCommand(seedCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a trade against the current pool state",
		RunE:  runQuote,
	}
	config.RegisterFlags(quoteCmd.Flags())
	quoteCmd.Flags().String("creator", "", "creator id")
	quoteCmd.Flags().String("type", "buy", "trade direction (buy, sell)")
	quoteCmd.Flags().String("amount", "", "trade amount")
	quoteCmd.Flags().String("amount-type", "", "amount currency (nmbr, token); defaults by direction")
	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	default:
		return memory.New(), nil
	}
}

func newCoordinator(cfg config.Config, store storage.Store, journal storage.Journal, rec settlement.Recorder, logger *zap.Logger) (*settlement.Coordinator, error) {
	engine, err := pricing.NewEngine(cfg.Pricing())
	if err != nil {
		return nil, err
	}
	return settlement.NewCoordinator(cfg.Settlement(), engine, store, journal, rec, logger)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
