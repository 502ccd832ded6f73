package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"creatorExchange/internal/settlement"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	ExpectedOutput *decimal.Decimal `json:"expected_output,omitempty"`
	ActualOutput   *decimal.Decimal `json:"actual_output,omitempty"`
	SlippagePct    *decimal.Decimal `json:"slippage_pct,omitempty"`
	MaxSlippagePct *decimal.Decimal `json:"max_slippage_pct,omitempty"`
}

var preconditionCodes = []struct {
	err  error
	code string
}{
	{settlement.ErrInvalidAmount, "invalid_amount"},
	{settlement.ErrBelowMinimum, "below_minimum"},
	{settlement.ErrAmountPrecision, "amount_precision"},
	{settlement.ErrInsufficientBalance, "insufficient_balance"},
	{settlement.ErrInsufficientHolding, "insufficient_holding"},
	{settlement.ErrPoolNotFound, "pool_not_found"},
	{settlement.ErrUnsupportedTrade, "unsupported_trade"},
	{settlement.ErrInvalidSlippage, "invalid_slippage"},
	{settlement.ErrInvalidDirection, "invalid_direction"},
	{settlement.ErrTradeTooSmall, "trade_too_small"},
	{settlement.ErrMissingUser, "unauthenticated"},
}

// writeError maps the settlement taxonomy onto HTTP statuses. Internal
// failures get a fixed message.
func writeError(c *gin.Context, err error) {
	var slip *settlement.SlippageError
	if errors.As(err, &slip) {
		c.JSON(http.StatusConflict, errorBody{
			Error:          "slippage_exceeded",
			Message:        err.Error(),
			ExpectedOutput: &slip.ExpectedOutput,
			ActualOutput:   &slip.ActualOutput,
			SlippagePct:    &slip.SlippagePct,
			MaxSlippagePct: &slip.MaxSlippagePct,
		})
		return
	}

	var pre *settlement.PreconditionError
	if errors.As(err, &pre) {
		status := http.StatusBadRequest
		code := "bad_request"
		for _, pc := range preconditionCodes {
			if errors.Is(pre.Err, pc.err) {
				code = pc.code
				break
			}
		}
		switch code {
		case "pool_not_found":
			status = http.StatusNotFound
		case "unauthenticated":
			status = http.StatusUnauthorized
		}
		c.JSON(status, errorBody{Error: code, Message: err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: message})
}
