package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"creatorExchange/internal/metrics"
	"creatorExchange/internal/model"
	"creatorExchange/internal/pricing"
	"creatorExchange/internal/settlement"
	"creatorExchange/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require := require.New(t)
	ctx := context.Background()

	store := memory.New()
	now := time.Now().UTC()
	require.NoError(store.CreatePool(ctx, model.Pool{
		ID: uuid.NewString(), CreatorID: "alice", TokenSymbol: "ALICE",
		NmbrReserve: d("90000"), TokenSupply: d("9000000"), CurrentPrice: d("0.01"),
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(store.CreatePool(ctx, model.Pool{
		ID: uuid.NewString(), CreatorID: "dry", TokenSymbol: "DRY",
		NmbrReserve: decimal.Zero, TokenSupply: d("9000000"), CurrentPrice: decimal.Zero,
		CreatedAt: now, UpdatedAt: now,
	}))
	_, err := store.Credit(ctx, "u1", d("5000"))
	require.NoError(err)

	engine, err := pricing.NewEngine(pricing.Config{
		BaseFeePct: d("1"), MaxFeePct: d("10"), FeeDecayThreshold: d("500000"), InitialTokenSupply: d("9000000"),
	})
	require.NoError(err)

	rec := metrics.NewRecorder()
	coord, err := settlement.NewCoordinator(settlement.Config{
		MinTradeAmount:     d("0.0001"),
		DefaultSlippagePct: d("1"),
		MaxSlippagePct:     d("50"),
		TotalTokenSupply:   d("10000000"),
		QuoteTTL:           time.Minute,
		MaxRetries:         3,
		RetryBackoff:       time.Millisecond,
	}, engine, store, nil, rec, nil)
	require.NoError(err)

	return NewServer(coord, rec, opts, nil)
}

func do(s *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestQuoteEndpoint(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, Options{})

	rec := do(s, http.MethodPost, "/api/trade/quote", "u1", map[string]any{
		"creator_id": "alice", "type": "buy", "amount": "1000", "amount_type": "nmbr",
	})
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Equal("88448.844884488448844884", body["output_amount"])
	require.Equal("10", body["fee_pct"])
	require.Equal("NMBR", body["input_currency"])
	require.Equal("ALICE", body["output_currency"])
	require.NotEmpty(body["expires_at"])
}

func TestQuoteAcceptsNumericAmount(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(s, http.MethodPost, "/api/trade/quote", "u1", map[string]any{
		"creator_id": "alice", "type": "SELL", "amount": 500, "amount_type": "token",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "ALICE", decode(t, rec)["input_currency"])
}

func TestRequiresIdentity(t *testing.T) {
	s := newTestServer(t, Options{})
	for _, path := range []string{"/api/trade/history", "/api/portfolio"} {
		rec := do(s, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := do(s, http.MethodPost, "/api/trade/execute", "", map[string]any{"creator_id": "alice"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExecuteThenHistoryAndPortfolio(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, Options{})

	rec := do(s, http.MethodPost, "/api/trade/execute", "u1", map[string]any{
		"creator_id": "alice", "type": "buy", "amount": "1000", "max_slippage_pct": "2",
	})
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Equal(true, body["success"])
	require.Equal("4000", body["new_balance"])
	holding := body["new_holding"].(map[string]any)
	require.Equal("88448.844884488448844884", holding["token_amount"])

	rec = do(s, http.MethodGet, "/api/trade/history?limit=5", "u1", nil)
	require.Equal(http.StatusOK, rec.Code)
	hist := decode(t, rec)
	require.Equal(float64(1), hist["total"])
	require.Len(hist["transactions"], 1)

	rec = do(s, http.MethodGet, "/api/portfolio", "u1", nil)
	require.Equal(http.StatusOK, rec.Code)
	summary := decode(t, rec)
	require.Equal("1000", summary["total_invested"])
	require.Len(summary["holdings"], 1)

	rec = do(s, http.MethodGet, "/api/pools/alice", "", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(float64(1), decode(t, rec)["holder_count"])

	rec = do(s, http.MethodGet, "/api/pools/alice/prices?limit=10", "", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Len(decode(t, rec)["prices"], 1)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, Options{})

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"insufficient balance", map[string]any{"creator_id": "alice", "type": "buy", "amount": "9999"}, http.StatusBadRequest, "insufficient_balance"},
		{"no holding", map[string]any{"creator_id": "alice", "type": "sell", "amount": "1", "amount_type": "token"}, http.StatusBadRequest, "insufficient_holding"},
		{"unknown pool", map[string]any{"creator_id": "bob", "type": "buy", "amount": "1"}, http.StatusNotFound, "pool_not_found"},
		{"dust", map[string]any{"creator_id": "alice", "type": "buy", "amount": "0.00000001"}, http.StatusBadRequest, "below_minimum"},
		{"unsupported", map[string]any{"creator_id": "alice", "type": "buy", "amount": "1", "amount_type": "token"}, http.StatusBadRequest, "unsupported_trade"},
		{"bad direction", map[string]any{"creator_id": "alice", "type": "hodl", "amount": "1"}, http.StatusBadRequest, "bad_request"},
		{"slippage cap", map[string]any{"creator_id": "alice", "type": "buy", "amount": "1", "max_slippage_pct": "75"}, http.StatusBadRequest, "invalid_slippage"},
		{"stale quote", map[string]any{"creator_id": "alice", "type": "buy", "amount": "1000", "expected_output": "100000", "max_slippage_pct": "1"}, http.StatusConflict, "slippage_exceeded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/trade/execute", "u1", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decode(t, rec)["error"])
		})
	}
}

func TestSlippageBodyCarriesBothOutputs(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := do(s, http.MethodPost, "/api/trade/execute", "u1", map[string]any{
		"creator_id": "alice", "type": "buy", "amount": "1000", "expected_output": "100000",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "100000", body["expected_output"])
	require.Equal(t, "88448.844884488448844884", body["actual_output"])
}

func TestMalformedRequests(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/trade/quote", strings.NewReader("{not json"))
	req.Header.Set(headerUserID, "u1")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodGet, "/api/trade/history?limit=abc", "u1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimit: 1, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(s, http.MethodGet, "/health", "u9", nil).Code)
	}
	require.Equal(t, []int{200, 200, 429}, codes)

	// Another caller has its own bucket.
	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "u10", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	do(s, http.MethodPost, "/api/trade/execute", "u1", map[string]any{"creator_id": "alice", "type": "buy", "amount": "5"})

	rec := do(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `exchange_trades_total{direction="buy",outcome="committed"} 1`)
}

func TestExecuteEmptyPoolIsOpaqueInternalError(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, Options{})

	rec := do(s, http.MethodPost, "/api/trade/execute", "u1", map[string]any{
		"creator_id": "dry", "type": "buy", "amount": "100", "amount_type": "nmbr", "expected_output": "1",
	})
	require.Equal(http.StatusInternalServerError, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Equal("internal", body["error"])
	require.Equal("internal error", body["message"])
	require.NotContains(rec.Body.String(), "liquidity")

	rec = do(s, http.MethodGet, "/api/pools/dry", "", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(float64(0), decode(t, rec)["version"])

	rec = do(s, http.MethodGet, "/api/portfolio", "u1", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("5000", decode(t, rec)["nmbr_balance"])

	rec = do(s, http.MethodGet, "/api/trade/history", "u1", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(float64(0), decode(t, rec)["total"])
}

func TestClientLimiterPruneKeepsDrainingBuckets(t *testing.T) {
	require := require.New(t)
	l := newClientLimiter(1, 2)
	now := time.Now()

	busy := l.get("busy")
	require.True(busy.AllowN(now, 2))
	require.False(busy.AllowN(now, 1))
	l.get("idle")
	require.Equal(2, l.size())

	require.Equal(1, l.prune(now))
	require.Equal(1, l.size())
	require.Same(busy, l.get("busy"), "a client at its limit keeps its bucket")
	require.False(l.get("busy").AllowN(now, 1))

	require.Equal(1, l.prune(now.Add(5*time.Second)))
	require.Zero(l.size())
}
