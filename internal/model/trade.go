package model

import (
	"fmt"
	"strings"
)

// Direction is the side of a trade from the user's point of view.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection normalizes and validates a direction string.
func ParseDirection(input string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(input))) {
	case DirectionBuy:
		return DirectionBuy, nil
	case DirectionSell:
		return DirectionSell, nil
	default:
		return "", fmt.Errorf("invalid direction: %q", input)
	}
}

// AmountCurrency names the unit a request amount is expressed in.
type AmountCurrency string

const (
	AmountPlatform AmountCurrency = "nmbr"
	AmountToken    AmountCurrency = "token"
)

// PlatformSymbol is the display symbol of the platform currency.
const PlatformSymbol = "NMBR"

// ParseAmountCurrency normalizes an amount currency; empty means platform currency.
func ParseAmountCurrency(input string) (AmountCurrency, error) {
	switch AmountCurrency(strings.ToLower(strings.TrimSpace(input))) {
	case "", AmountPlatform:
		return AmountPlatform, nil
	case AmountToken:
		return AmountToken, nil
	default:
		return "", fmt.Errorf("invalid amount currency: %q", input)
	}
}
