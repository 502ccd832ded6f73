package pricing

import "testing"

func TestCheckSlippage(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		actual   string
		max      string
		ok       bool
		slippage string
	}{
		{"exact", "100", "100", "1", true, "0"},
		{"within", "100", "99.5", "1", true, "0.5"},
		{"at limit", "100", "99", "1", true, "1"},
		{"beyond", "100", "98.9", "1", false, "1.1"},
		{"better than quoted", "100", "120", "0", true, "-20"},
		{"zero expectation", "0", "5", "0", true, "0"},
	}
	for _, tc := range cases {
		ok, slippage := CheckSlippage(d(tc.expected), d(tc.actual), d(tc.max))
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.ok)
		}
		if !slippage.Equal(d(tc.slippage)) {
			t.Fatalf("%s: slippage %s want %s", tc.name, slippage, tc.slippage)
		}
	}
}

func TestCheckSlippageMatchesThreshold(t *testing.T) {
	expected, max := d("88448.8448"), d("2.5")
	floor := expected.Mul(d("1").Sub(max.Div(d("100"))))

	below := floor.Sub(d("0.0001"))
	if ok, _ := CheckSlippage(expected, below, max); ok {
		t.Fatalf("output %s below floor %s should be rejected", below, floor)
	}
	above := floor.Add(d("0.0001"))
	if ok, _ := CheckSlippage(expected, above, max); !ok {
		t.Fatalf("output %s above floor %s should pass", above, floor)
	}
}
