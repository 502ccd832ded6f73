package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"creatorExchange/internal/config"
	"creatorExchange/internal/settlement"
)

type credit struct {
	user   string
	amount decimal.Decimal
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Store == config.StoreMemory {
		return fmt.Errorf("seeding the memory store has no lasting effect; use sqlite or postgres")
	}

	creator, _ := cmd.Flags().GetString("creator")
	symbol, _ := cmd.Flags().GetString("symbol")
	rawPrice, _ := cmd.Flags().GetString("initial-price")
	rawFund, _ := cmd.Flags().GetStringSlice("fund")

	credits, err := parseCredits(rawFund)
	if err != nil {
		return err
	}
	if creator == "" && len(credits) == 0 {
		return fmt.Errorf("nothing to seed: pass --creator and/or --fund")
	}

	var initialPrice decimal.Decimal
	if creator != "" {
		initialPrice, err = decimal.NewFromString(strings.TrimSpace(rawPrice))
		if err != nil {
			return fmt.Errorf("invalid initial-price %q: %w", rawPrice, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	coord, err := newCoordinator(cfg, store, nil, nil, logger)
	if err != nil {
		return err
	}

	if creator != "" {
		pool, err := coord.ListPool(ctx, creator, symbol, initialPrice)
		switch {
		case errors.Is(err, settlement.ErrPoolExists):
			logger.Warn("pool already listed", zap.String("creator", creator))
		case err != nil:
			return err
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "pool %s (%s) listed at %s NMBR\n", pool.CreatorID, pool.TokenSymbol, pool.CurrentPrice)
		}
	}

	for _, c := range credits {
		acct, err := coord.Fund(ctx, c.user, c.amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account %s balance %s NMBR\n", acct.UserID, acct.NmbrBalance)
	}
	return nil
}

// parseCredits reads user=amount pairs.
func parseCredits(raw []string) ([]credit, error) {
	credits := make([]credit, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		user, amount, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(user) == "" {
			return nil, fmt.Errorf("invalid fund entry %q (want user=amount)", item)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("invalid fund amount %q: %w", amount, err)
		}
		if value.Sign() <= 0 {
			return nil, fmt.Errorf("fund amount for %s must be positive", user)
		}
		credits = append(credits, credit{user: strings.TrimSpace(user), amount: value})
	}
	return credits, nil
}
