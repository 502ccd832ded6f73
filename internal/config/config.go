package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"creatorExchange/internal/pricing"
	"creatorExchange/internal/settlement"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Store      string
	PGDSN      string
	SQLitePath string
	Listen     string
	LogLevel   string
	Journal    string

	BaseFeePct         decimal.Decimal
	MaxFeePct          decimal.Decimal
	FeeDecayThreshold  decimal.Decimal
	InitialTokenSupply decimal.Decimal
	TotalTokenSupply   decimal.Decimal
	MinTradeAmount     decimal.Decimal
	DefaultSlippagePct decimal.Decimal
	MaxSlippagePct     decimal.Decimal

	QuoteTTL     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimit    float64
	RateBurst    int
}

var decimalDefaults = map[string]string{
	"base-fee-pct":         "1",
	"max-fee-pct":          "10",
	"fee-decay-threshold":  "500000",
	"initial-token-supply": "9000000",
	"total-token-supply":   "10000000",
	"min-trade-amount":     "0.0001",
	"default-slippage-pct": "1",
	"max-slippage-pct":     "50",
}

// Load merges config file, environment variables (EXCHANGE_*), and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreSQLite)
	v.SetDefault("sqlite-path", "./data/exchange.db")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("quote-ttl", 5*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 50*time.Millisecond)
	v.SetDefault("rate-limit", 20.0)
	v.SetDefault("rate-burst", 50)
	for key, val := range decimalDefaults {
		v.SetDefault(key, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Store:        strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:        v.GetString("pg-dsn"),
		SQLitePath:   v.GetString("sqlite-path"),
		Listen:       v.GetString("listen"),
		LogLevel:     v.GetString("log-level"),
		Journal:      v.GetString("journal"),
		QuoteTTL:     v.GetDuration("quote-ttl"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		RateLimit:    v.GetFloat64("rate-limit"),
		RateBurst:    v.GetInt("rate-burst"),
	}

	targets := map[string]*decimal.Decimal{
		"base-fee-pct":         &cfg.BaseFeePct,
		"max-fee-pct":          &cfg.MaxFeePct,
		"fee-decay-threshold":  &cfg.FeeDecayThreshold,
		"initial-token-supply": &cfg.InitialTokenSupply,
		"total-token-supply":   &cfg.TotalTokenSupply,
		"min-trade-amount":     &cfg.MinTradeAmount,
		"default-slippage-pct": &cfg.DefaultSlippagePct,
		"max-slippage-pct":     &cfg.MaxSlippagePct,
	}
	for key, dst := range targets {
		raw := strings.TrimSpace(v.GetString(key))
		val, err := decimal.NewFromString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s %q: %w", key, raw, err)
		}
		*dst = val
	}

	return cfg, nil
}

// Pricing returns the fee model configuration.
func (c Config) Pricing() pricing.Config {
	return pricing.Config{
		BaseFeePct:         c.BaseFeePct,
		MaxFeePct:          c.MaxFeePct,
		FeeDecayThreshold:  c.FeeDecayThreshold,
		InitialTokenSupply: c.InitialTokenSupply,
	}
}

// Settlement returns the trade limits.
func (c Config) Settlement() settlement.Config {
	return settlement.Config{
		MinTradeAmount:     c.MinTradeAmount,
		DefaultSlippagePct: c.DefaultSlippagePct,
		MaxSlippagePct:     c.MaxSlippagePct,
		TotalTokenSupply:   c.TotalTokenSupply,
		QuoteTTL:           c.QuoteTTL,
		MaxRetries:         c.MaxRetries,
		RetryBackoff:       c.RetryBackoff,
	}
}

// Validate fails on any setting the exchange cannot start with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, sqlite or postgres)", c.Store)
	}

	if err := c.Pricing().Validate(); err != nil {
		return err
	}
	if err := c.Settlement().Validate(); err != nil {
		return err
	}
	if c.TotalTokenSupply.LessThan(c.InitialTokenSupply) {
		return fmt.Errorf("total-token-supply %s below initial-token-supply %s", c.TotalTokenSupply, c.InitialTokenSupply)
	}
	if c.QuoteTTL <= 0 {
		return fmt.Errorf("quote-ttl must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate-limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rate-burst must be at least 1 when rate limiting")
	}
	return nil
}

// RegisterFlags adds every setting to flags with its default as help text.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("store", StoreSQLite, "store backend (sqlite, postgres, memory)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("sqlite-path", "./data/exchange.db", "SQLite database path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("journal", "", "optional JSONL file receiving committed transactions")
	flags.String("base-fee-pct", decimalDefaults["base-fee-pct"], "fee percent once the early-entry window has passed, and for sells")
	flags.String("max-fee-pct", decimalDefaults["max-fee-pct"], "fee percent charged to the very first buy")
	flags.String("fee-decay-threshold", decimalDefaults["fee-decay-threshold"], "tokens bought before the buy fee reaches the base fee")
	flags.String("initial-token-supply", decimalDefaults["initial-token-supply"], "tokens a pool starts with")
	flags.String("total-token-supply", decimalDefaults["total-token-supply"], "total supply used for market cap")
	flags.String("min-trade-amount", decimalDefaults["min-trade-amount"], "smallest accepted trade amount")
	flags.String("default-slippage-pct", decimalDefaults["default-slippage-pct"], "slippage tolerance when a request sets none")
	flags.String("max-slippage-pct", decimalDefaults["max-slippage-pct"], "largest slippage tolerance a request may ask for")
	flags.Int("max-retries", 5, "settlement retries after a write conflict")
	flags.Duration("retry-backoff", 50*time.Millisecond, "initial settlement retry backoff")
}
