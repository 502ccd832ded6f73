package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
	"creatorExchange/internal/settlement"
)

type tradeRequest struct {
	CreatorID  string          `json:"creator_id"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	AmountType string          `json:"amount_type"`
}

type executeRequest struct {
	tradeRequest
	MaxSlippagePct *decimal.Decimal `json:"max_slippage_pct"`
	ExpectedOutput *decimal.Decimal `json:"expected_output"`
}

func (r tradeRequest) toQuote() (settlement.QuoteRequest, string) {
	direction, err := model.ParseDirection(r.Type)
	if err != nil {
		return settlement.QuoteRequest{}, err.Error()
	}
	currency, err := model.ParseAmountCurrency(r.AmountType)
	if err != nil {
		return settlement.QuoteRequest{}, err.Error()
	}
	return settlement.QuoteRequest{
		CreatorID:      r.CreatorID,
		Direction:      direction,
		Amount:         r.Amount,
		AmountCurrency: currency,
	}, ""
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) quote(c *gin.Context) {
	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, msg := body.toQuote()
	if msg != "" {
		badRequest(c, msg)
		return
	}

	q, err := s.svc.Quote(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) execute(c *gin.Context) {
	var body executeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, msg := body.toQuote()
	if msg != "" {
		badRequest(c, msg)
		return
	}

	out, err := s.svc.Execute(c.Request.Context(), settlement.ExecuteRequest{
		QuoteRequest:   req,
		UserID:         c.GetString(ctxUserID),
		MaxSlippagePct: body.MaxSlippagePct,
		ExpectedOutput: body.ExpectedOutput,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) history(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	page, err := s.svc.History(c.Request.Context(), model.HistoryQuery{
		UserID:    c.GetString(ctxUserID),
		CreatorID: c.Query("creator_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) portfolio(c *gin.Context) {
	summary, err := s.svc.Portfolio(c.Request.Context(), c.GetString(ctxUserID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) pool(c *gin.Context) {
	pool, err := s.svc.Pool(c.Request.Context(), c.Param("creator_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (s *Server) prices(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	points, err := s.svc.PriceHistory(c.Request.Context(), c.Param("creator_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creator_id": c.Param("creator_id"), "prices": points})
}

// queryInt reads an optional non-negative integer parameter; 0 when absent.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
