package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyBuyOpensPosition(t *testing.T) {
	h := ApplyBuy(model.Holding{UserID: "u", CreatorID: "c"}, d("100"), d("0.011"), d("1.1"))
	if !h.TokenAmount.Equal(d("100")) {
		t.Fatalf("amount: %s", h.TokenAmount)
	}
	if !h.AvgBuyPrice.Equal(d("0.011")) {
		t.Fatalf("avg: %s", h.AvgBuyPrice)
	}
	if !h.TotalCostBasis.Equal(d("1.1")) {
		t.Fatalf("cost basis: %s", h.TotalCostBasis)
	}
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	h := model.Holding{TokenAmount: d("100"), AvgBuyPrice: d("1"), TotalCostBasis: d("100")}
	h = ApplyBuy(h, d("300"), d("2"), d("600"))

	// (100*1 + 300*2) / 400
	if !h.AvgBuyPrice.Equal(d("1.75")) {
		t.Fatalf("avg: %s", h.AvgBuyPrice)
	}
	if !h.TokenAmount.Equal(d("400")) {
		t.Fatalf("amount: %s", h.TokenAmount)
	}
	if !h.TotalCostBasis.Equal(d("700")) {
		t.Fatalf("cost basis: %s", h.TotalCostBasis)
	}
}

func TestApplyBuyAverageBetweenPrices(t *testing.T) {
	h := model.Holding{TokenAmount: d("7.5"), AvgBuyPrice: d("0.013"), TotalCostBasis: d("0.0975")}
	for _, price := range []string{"0.01", "0.02", "0.0131", "5"} {
		p := d(price)
		next := ApplyBuy(h, d("3.3"), p, d("3.3").Mul(p))
		lo, hi := decimal.Min(h.AvgBuyPrice, p), decimal.Max(h.AvgBuyPrice, p)
		if next.AvgBuyPrice.LessThan(lo) || next.AvgBuyPrice.GreaterThan(hi) {
			t.Fatalf("avg %s outside [%s, %s]", next.AvgBuyPrice, lo, hi)
		}
	}
}

func TestApplySellPartial(t *testing.T) {
	h := model.Holding{TokenAmount: d("400"), AvgBuyPrice: d("1.75"), TotalCostBasis: d("700")}
	res := ApplySell(h, d("100"))

	if res.Closed {
		t.Fatalf("partial sell closed the holding")
	}
	if !res.Holding.AvgBuyPrice.Equal(d("1.75")) {
		t.Fatalf("avg changed: %s", res.Holding.AvgBuyPrice)
	}
	if !res.Holding.TokenAmount.Equal(d("300")) {
		t.Fatalf("amount: %s", res.Holding.TokenAmount)
	}
	if !res.Holding.TotalCostBasis.Equal(d("525")) {
		t.Fatalf("cost basis: %s", res.Holding.TotalCostBasis)
	}
	if !res.ReleasedCost.Equal(d("175")) {
		t.Fatalf("released: %s", res.ReleasedCost)
	}
}

func TestApplySellFull(t *testing.T) {
	h := model.Holding{TokenAmount: d("12.5"), AvgBuyPrice: d("0.02"), TotalCostBasis: d("0.25")}
	res := ApplySell(h, d("12.5"))

	if !res.Closed {
		t.Fatalf("full sell left the holding open")
	}
	if !res.Holding.TokenAmount.IsZero() || !res.Holding.TotalCostBasis.IsZero() {
		t.Fatalf("closed holding not zeroed: %+v", res.Holding)
	}
	if !res.ReleasedCost.Equal(d("0.25")) {
		t.Fatalf("released: %s", res.ReleasedCost)
	}
}
