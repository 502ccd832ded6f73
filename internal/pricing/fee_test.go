package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

func TestDynamicFeePctDecay(t *testing.T) {
	base, max, threshold := d("1"), d("10"), d("500000")

	cases := []struct {
		bought string
		want   string
	}{
		{"0", "10"},
		{"250000", "5.5"},
		{"500000", "1"},
		{"9000000", "1"},
		{"-5", "10"},
	}
	for _, tc := range cases {
		got := DynamicFeePct(d(tc.bought), base, max, threshold)
		if !got.Equal(d(tc.want)) {
			t.Fatalf("bought %s: got %s want %s", tc.bought, got, tc.want)
		}
	}
}

func TestDynamicFeePctMonotonic(t *testing.T) {
	base, max, threshold := d("0.3"), d("7.77"), d("123457")
	step := d("997")

	prev := DynamicFeePct(decimal.Zero, base, max, threshold)
	for bought := step; bought.LessThan(d("200000")); bought = bought.Add(step) {
		fee := DynamicFeePct(bought, base, max, threshold)
		if fee.GreaterThan(prev) {
			t.Fatalf("fee increased at %s: %s -> %s", bought, prev, fee)
		}
		if bought.GreaterThanOrEqual(threshold) && !fee.Equal(base) {
			t.Fatalf("fee past threshold at %s: %s", bought, fee)
		}
		prev = fee
	}
}

func TestEngineFeePctSellUsesBase(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if got := engine.FeePct(model.DirectionSell, d("9000000")); !got.Equal(d("1")) {
		t.Fatalf("sell fee: got %s want 1", got)
	}
	if got := engine.FeePct(model.DirectionBuy, d("9000000")); !got.Equal(d("10")) {
		t.Fatalf("buy fee at launch: got %s want 10", got)
	}
	if got := engine.FeePct(model.DirectionBuy, d("8750000")); !got.Equal(d("5.5")) {
		t.Fatalf("buy fee halfway: got %s want 5.5", got)
	}
}

func TestConfigValidate(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero threshold":     func(c *Config) { c.FeeDecayThreshold = decimal.Zero },
		"negative threshold": func(c *Config) { c.FeeDecayThreshold = d("-1") },
		"base 100":           func(c *Config) { c.BaseFeePct = d("100") },
		"negative max":       func(c *Config) { c.MaxFeePct = d("-0.1") },
		"max below base":     func(c *Config) { c.MaxFeePct = d("0.5") },
		"no supply":          func(c *Config) { c.InitialTokenSupply = decimal.Zero },
	}
	for name, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}

	if _, err := NewEngine(testConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
