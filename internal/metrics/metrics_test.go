package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"creatorExchange/internal/model"
)

func TestRecorderCounts(t *testing.T) {
	require := require.New(t)
	r := NewRecorder()

	r.Settled(model.DirectionBuy, "committed", 3*time.Millisecond)
	r.Settled(model.DirectionBuy, "committed", time.Millisecond)
	r.Settled(model.DirectionSell, "rejected_slippage", time.Millisecond)
	r.Quoted(model.DirectionSell, "ok")
	r.Retried()
	r.Request("/api/trade/quote", 200)

	require.Equal(2.0, testutil.ToFloat64(r.trades.WithLabelValues("buy", "committed")))
	require.Equal(1.0, testutil.ToFloat64(r.trades.WithLabelValues("sell", "rejected_slippage")))
	require.Equal(1.0, testutil.ToFloat64(r.quotes.WithLabelValues("sell", "ok")))
	require.Equal(1.0, testutil.ToFloat64(r.retries))
	require.Equal(1.0, testutil.ToFloat64(r.requests.WithLabelValues("/api/trade/quote", "200")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	r := NewRecorder()
	r.Retried()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(string(body), "exchange_settle_retries_total 1"))
}
