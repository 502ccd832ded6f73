package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	return Config{
		BaseFeePct:         d("1"),
		MaxFeePct:          d("10"),
		FeeDecayThreshold:  d("500000"),
		InitialTokenSupply: d("9000000"),
	}
}

func TestQuoteBuyReferenceScenario(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	res, err := engine.Quote(model.DirectionBuy, d("1000"), d("90000"), d("9000000"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if !res.FeePct.Equal(d("10")) {
		t.Fatalf("fee pct: got %s want 10", res.FeePct)
	}
	if !res.FeeAmount.Equal(d("100")) {
		t.Fatalf("fee amount: got %s want 100", res.FeeAmount)
	}
	if !res.NewReserveCurrency.Equal(d("90900")) {
		t.Fatalf("new currency reserve: got %s want 90900", res.NewReserveCurrency)
	}
	if res.NewReserveTokens.LessThan(d("8911551.15")) || res.NewReserveTokens.GreaterThan(d("8911551.16")) {
		t.Fatalf("new token reserve: got %s", res.NewReserveTokens)
	}
	if res.OutputAmount.LessThan(d("88448.84")) || res.OutputAmount.GreaterThan(d("88448.85")) {
		t.Fatalf("tokens out: got %s", res.OutputAmount)
	}
	if !res.OutputAmount.Add(res.NewReserveTokens).Equal(d("9000000")) {
		t.Fatalf("tokens not conserved: %s + %s", res.OutputAmount, res.NewReserveTokens)
	}
}

func TestQuoteBuyMovesPriceUp(t *testing.T) {
	reserves := [][2]string{
		{"90000", "9000000"},
		{"1", "1"},
		{"123456.789", "42.5"},
	}
	amounts := []string{"0.0001", "1", "1000", "5000000"}

	for _, r := range reserves {
		x, y := d(r[0]), d(r[1])
		for _, a := range amounts {
			res, err := Quote(model.DirectionBuy, d(a), x, y, d("2.5"))
			if errors.Is(err, ErrZeroOutput) {
				continue
			}
			if err != nil {
				t.Fatalf("buy %s against %s/%s: %v", a, r[0], r[1], err)
			}
			if !res.OutputAmount.LessThan(y) {
				t.Fatalf("buy drained pool: out %s reserve %s", res.OutputAmount, y)
			}
			if res.NewPrice.LessThan(res.OldPrice) {
				t.Fatalf("buy lowered price: %s -> %s", res.OldPrice, res.NewPrice)
			}
			if res.PriceImpactPct.Sign() < 0 {
				t.Fatalf("buy impact negative: %s", res.PriceImpactPct)
			}
			assertKNonDecreasing(t, x, y, res)
		}
	}
}

func TestQuoteSellMovesPriceDown(t *testing.T) {
	x, y := d("90000"), d("9000000")
	for _, a := range []string{"0.01", "100", "88448.8", "1000000000"} {
		res, err := Quote(model.DirectionSell, d(a), x, y, d("1"))
		if err != nil {
			t.Fatalf("sell %s: %v", a, err)
		}
		if res.NewPrice.GreaterThan(res.OldPrice) {
			t.Fatalf("sell raised price: %s -> %s", res.OldPrice, res.NewPrice)
		}
		if res.PriceImpactPct.Sign() < 0 {
			t.Fatalf("sell impact should be a positive magnitude: %s", res.PriceImpactPct)
		}
		if !res.OutputAmount.LessThan(x) {
			t.Fatalf("sell drained currency: %s", res.OutputAmount)
		}
		assertKNonDecreasing(t, x, y, res)
	}
}

func TestQuoteSellFeeTakenFromOutput(t *testing.T) {
	res, err := Quote(model.DirectionSell, d("1000000"), d("90000"), d("9000000"), d("1"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// k/(9e6+1e6) = 81000 exactly, so the curve pays 9000 gross.
	if !res.NewReserveCurrency.Equal(d("81000")) {
		t.Fatalf("new currency reserve: %s", res.NewReserveCurrency)
	}
	if !res.FeeAmount.Equal(d("90")) {
		t.Fatalf("fee: got %s want 90", res.FeeAmount)
	}
	if !res.OutputAmount.Equal(d("8910")) {
		t.Fatalf("output: got %s want 8910", res.OutputAmount)
	}
	if !res.GrossCurrency().Equal(d("9000")) {
		t.Fatalf("gross: got %s want 9000", res.GrossCurrency())
	}
}

func TestRoundTripLosesAtLeastBothFees(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	x, y := d("90000"), d("9000000")

	for _, spend := range []string{"1", "1000", "25000", "0.37"} {
		buy, err := engine.Quote(model.DirectionBuy, d(spend), x, y)
		if err != nil {
			t.Fatalf("buy %s: %v", spend, err)
		}
		sell, err := engine.Quote(model.DirectionSell, buy.OutputAmount, buy.NewReserveCurrency, buy.NewReserveTokens)
		if err != nil {
			t.Fatalf("sell back %s: %v", spend, err)
		}

		if !sell.OutputAmount.LessThan(d(spend)) {
			t.Fatalf("round trip of %s returned %s", spend, sell.OutputAmount)
		}
		deficit := d(spend).Sub(sell.OutputAmount)
		fees := buy.FeeAmount.Add(sell.FeeAmount)
		if deficit.LessThan(fees) {
			t.Fatalf("deficit %s below fees %s", deficit, fees)
		}
	}
}

func TestQuoteRejectsEmptyPool(t *testing.T) {
	if _, err := Quote(model.DirectionBuy, d("1"), decimal.Zero, d("100"), d("1")); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
	if _, err := Quote(model.DirectionSell, d("1"), d("100"), decimal.Zero, d("1")); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestQuoteRejectsBadFee(t *testing.T) {
	for _, fee := range []string{"-1", "100", "250"} {
		_, err := Quote(model.DirectionBuy, d("10"), d("100"), d("100"), d(fee))
		if !errors.Is(err, ErrInvariant) {
			t.Fatalf("fee %s: expected ErrInvariant, got %v", fee, err)
		}
	}
}

func TestQuoteDustRoundsToZero(t *testing.T) {
	_, err := Quote(model.DirectionBuy, Unit, d("1000000000000"), d("1"), d("1"))
	if !errors.Is(err, ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestSpotPrice(t *testing.T) {
	if !SpotPrice(d("90000"), d("9000000")).Equal(d("0.01")) {
		t.Fatalf("unexpected spot price")
	}
	if !SpotPrice(d("1"), decimal.Zero).IsZero() {
		t.Fatalf("empty token side should price at zero")
	}
}

func TestRepresentable(t *testing.T) {
	if !Representable(d("0.000000000000000001")) {
		t.Fatalf("one unit should be representable")
	}
	if Representable(d("0.0000000000000000001")) {
		t.Fatalf("sub-unit amount should not be representable")
	}
}

func assertKNonDecreasing(t *testing.T, x, y decimal.Decimal, res TradeResult) {
	t.Helper()
	before := x.Mul(y)
	after := res.NewReserveCurrency.Mul(res.NewReserveTokens)
	if after.LessThan(before) {
		t.Fatalf("k decreased: %s -> %s", before, after)
	}
}
