package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeOrderLimitRoundsPriceAndQty(t *testing.T) {
	order := Order{
		Symbol: "SOL_USDC",
		Side:   Bid,
		Type:   Limit,
		Price:  decimal.RequireFromString("100.037"),
		Qty:    decimal.RequireFromString("0.123456"),
	}
	rules := Rules{
		MinQty:    decimal.RequireFromString("0.01"),
		PriceTick: decimal.RequireFromString("0.01"),
		QtyStep:   decimal.RequireFromString("0.001"),
	}

	got, err := NormalizeOrder(order, rules)
	if err != nil {
		t.Fatalf("NormalizeOrder() error = %v", err)
	}
	if !got.Price.Equal(decimal.RequireFromString("100.04")) {
		t.Fatalf("unexpected rounded price: %s", got.Price)
	}
	if !got.Qty.Equal(decimal.RequireFromString("0.123")) {
		t.Fatalf("unexpected rounded qty: %s", got.Qty)
	}
	if got.PriceText != "100.04" || got.QtyText != "0.123" {
		t.Fatalf("wire strings = %q/%q, want 100.04/0.123", got.PriceText, got.QtyText)
	}
}

func TestNormalizeOrderBelowMinQty(t *testing.T) {
	order := Order{
		Symbol: "SOL_USDC",
		Side:   Bid,
		Type:   Limit,
		Price:  decimal.RequireFromString("100"),
		Qty:    decimal.RequireFromString("0.009"),
	}
	rules := Rules{
		MinQty:    decimal.RequireFromString("0.01"),
		PriceTick: decimal.RequireFromString("0.01"),
		QtyStep:   decimal.RequireFromString("0.001"),
	}

	_, err := NormalizeOrder(order, rules)
	if !errors.Is(err, ErrBelowMinQty) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrBelowMinQty)
	}
}

func TestNormalizeOrderQtyRoundingToZero(t *testing.T) {
	order := Order{
		Side:  Ask,
		Type:  Limit,
		Price: decimal.RequireFromString("100"),
		Qty:   decimal.RequireFromString("0.4"),
	}
	rules := Rules{
		PriceTick: decimal.RequireFromString("0.01"),
		QtyStep:   decimal.RequireFromString("1"),
	}

	_, err := NormalizeOrder(order, rules)
	if !errors.Is(err, ErrBelowMinQty) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrBelowMinQty)
	}
}

func TestNormalizeOrderUnknownPrecisionFails(t *testing.T) {
	order := Order{
		Side:  Bid,
		Type:  Limit,
		Price: decimal.RequireFromString("100"),
		Qty:   decimal.RequireFromString("1"),
	}

	_, err := NormalizeOrder(order, Rules{QtyStep: decimal.RequireFromString("1")})
	if !errors.Is(err, ErrUnsupportedPrecision) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrUnsupportedPrecision)
	}
}

func TestNormalizeOrderPriceBounds(t *testing.T) {
	order := Order{
		Side:  Bid,
		Type:  Limit,
		Price: decimal.RequireFromString("0.001"),
		Qty:   decimal.RequireFromString("1"),
	}
	rules := Rules{
		PriceTick: decimal.RequireFromString("0.01"),
		QtyStep:   decimal.RequireFromString("1"),
	}

	_, err := NormalizeOrder(order, rules)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("NormalizeOrder() error = %v, want %v", err, ErrInvalidOrder)
	}

	order.Price = decimal.RequireFromString("5000")
	rules.MaxPrice = decimal.RequireFromString("1000")
	_, err = NormalizeOrder(order, rules)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("NormalizeOrder() above max error = %v, want %v", err, ErrInvalidOrder)
	}
}

func TestRoundToPrecision(t *testing.T) {
	tests := []struct {
		value string
		unit  string
		want  string
	}{
		{value: "99.95", unit: "0.01", want: "99.95"},
		{value: "100.005", unit: "0.01", want: "100"},
		{value: "100.015", unit: "0.01", want: "100.02"},
		{value: "30000.0", unit: "1", want: "30000"},
		{value: "12345", unit: "10", want: "12340"},
		{value: "0.123456", unit: "0.0010", want: "0.123"},
	}
	for _, tt := range tests {
		got, err := RoundToPrecision(decimal.RequireFromString(tt.value), decimal.RequireFromString(tt.unit))
		if err != nil {
			t.Fatalf("RoundToPrecision(%s, %s) error = %v", tt.value, tt.unit, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("RoundToPrecision(%s, %s) = %s, want %s", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestRoundToPrecisionIdempotent(t *testing.T) {
	units := []string{"0.0001", "0.01", "1", "100"}
	values := []string{"0.00005", "1.23456789", "99.995", "30000.5", "187.4449"}
	for _, u := range units {
		unit := decimal.RequireFromString(u)
		for _, v := range values {
			once, err := RoundToPrecision(decimal.RequireFromString(v), unit)
			if err != nil {
				t.Fatalf("RoundToPrecision(%s, %s) error = %v", v, u, err)
			}
			twice, err := RoundToPrecision(once, unit)
			if err != nil {
				t.Fatalf("RoundToPrecision(%s, %s) second error = %v", once, u, err)
			}
			if !once.Equal(twice) {
				t.Fatalf("RoundToPrecision not idempotent for %s @ %s: %s then %s", v, u, once, twice)
			}
		}
	}
}

func TestRoundToPrecisionRejectsNonPowerOfTen(t *testing.T) {
	for _, u := range []string{"0.003", "0.0025", "5", "0", "-0.01"} {
		_, err := RoundToPrecision(decimal.RequireFromString("100.123"), decimal.RequireFromString(u))
		if !errors.Is(err, ErrUnsupportedPrecision) {
			t.Fatalf("RoundToPrecision(unit=%s) error = %v, want %v", u, err, ErrUnsupportedPrecision)
		}
	}
}

func TestFormatToPrecision(t *testing.T) {
	got, err := FormatToPrecision(decimal.RequireFromString("99.9"), decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatalf("FormatToPrecision() error = %v", err)
	}
	if got != "99.90" {
		t.Fatalf("FormatToPrecision() = %q, want %q", got, "99.90")
	}
	got, err = FormatToPrecision(decimal.RequireFromString("30000.0"), decimal.RequireFromString("1"))
	if err != nil {
		t.Fatalf("FormatToPrecision() error = %v", err)
	}
	if got != "30000" {
		t.Fatalf("FormatToPrecision() = %q, want %q", got, "30000")
	}
}
