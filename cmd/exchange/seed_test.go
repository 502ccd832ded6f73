package main

import (
	"testing"

	"github.com/shopspring/decimal"

	"creatorExchange/internal/model"
)

func TestParseCredits(t *testing.T) {
	credits, err := parseCredits([]string{"u1=100", " u2 = 0.5 ", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(credits))
	}
	if credits[1].user != "u2" || !credits[1].amount.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected credit: %+v", credits[1])
	}

	for _, bad := range []string{"u1", "=5", "u1=abc", "u1=0", "u1=-3"} {
		if _, err := parseCredits([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseQuoteRequest(t *testing.T) {
	req, err := parseQuoteRequest("alice", "sell", "10", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Direction != model.DirectionSell || req.AmountCurrency != model.AmountToken {
		t.Fatalf("sell should default to token amounts: %+v", req)
	}

	req, err = parseQuoteRequest("alice", "BUY", "10", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.AmountCurrency != model.AmountPlatform {
		t.Fatalf("buy should default to platform amounts: %+v", req)
	}

	cases := [][4]string{
		{"", "buy", "1", ""},
		{"alice", "hold", "1", ""},
		{"alice", "buy", "one", ""},
		{"alice", "buy", "1", "usd"},
	}
	for _, tc := range cases {
		if _, err := parseQuoteRequest(tc[0], tc[1], tc[2], tc[3]); err == nil {
			t.Fatalf("expected error for %v", tc)
		}
	}
}
