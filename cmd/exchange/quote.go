package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"creatorExchange/internal/model"
	"creatorExchange/internal/settlement"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	creator, _ := cmd.Flags().GetString("creator")
	rawType, _ := cmd.Flags().GetString("type")
	rawAmount, _ := cmd.Flags().GetString("amount")
	rawCurrency, _ := cmd.Flags().GetString("amount-type")

	req, err := parseQuoteRequest(creator, rawType, rawAmount, rawCurrency)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	coord, err := newCoordinator(cfg, store, nil, nil, logger)
	if err != nil {
		return err
	}

	quote, err := coord.Quote(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(quote)
}

// parseQuoteRequest builds a request from CLI input. Without an explicit
// amount type, buys are sized in NMBR and sells in tokens.
func parseQuoteRequest(creator, rawType, rawAmount, rawCurrency string) (settlement.QuoteRequest, error) {
	if strings.TrimSpace(creator) == "" {
		return settlement.QuoteRequest{}, fmt.Errorf("creator is required")
	}
	direction, err := model.ParseDirection(rawType)
	if err != nil {
		return settlement.QuoteRequest{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(rawAmount))
	if err != nil {
		return settlement.QuoteRequest{}, fmt.Errorf("invalid amount %q: %w", rawAmount, err)
	}

	currency := model.AmountPlatform
	if direction == model.DirectionSell {
		currency = model.AmountToken
	}
	if strings.TrimSpace(rawCurrency) != "" {
		currency, err = model.ParseAmountCurrency(rawCurrency)
		if err != nil {
			return settlement.QuoteRequest{}, err
		}
	}

	return settlement.QuoteRequest{
		CreatorID:      strings.TrimSpace(creator),
		Direction:      direction,
		Amount:         amount,
		AmountCurrency: currency,
	}, nil
}
