package core

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrBelowMinQty          = errors.New("qty below min")
	ErrUnsupportedPrecision = errors.New("unsupported precision")
)

var (
	bigOne = big.NewInt(1)
	bigTen = big.NewInt(10)
)

// NormalizeOrder rounds a limit order onto the market's tick and step grid
// and fills the wire strings. Both units must be powers of ten.
func NormalizeOrder(order Order, rules Rules) (Order, error) {
	if order.Qty.Sign() <= 0 {
		return order, fmt.Errorf("%w: qty %s must be > 0", ErrInvalidOrder, order.Qty)
	}
	if order.Price.Sign() <= 0 {
		return order, fmt.Errorf("%w: price %s must be > 0", ErrInvalidOrder, order.Price)
	}
	qty, err := RoundToPrecision(order.Qty, rules.QtyStep)
	if err != nil {
		return order, fmt.Errorf("qty step: %w", err)
	}
	if qty.Sign() <= 0 {
		return order, fmt.Errorf("%w: qty %s rounds to zero at step %s", ErrBelowMinQty, order.Qty, rules.QtyStep)
	}
	if rules.MinQty.Sign() > 0 && qty.Cmp(rules.MinQty) < 0 {
		return order, fmt.Errorf("%w: qty %s < min %s", ErrBelowMinQty, qty, rules.MinQty)
	}
	price, err := RoundToPrecision(order.Price, rules.PriceTick)
	if err != nil {
		return order, fmt.Errorf("price tick: %w", err)
	}
	if price.Sign() <= 0 {
		return order, fmt.Errorf("%w: price %s rounds to zero at tick %s", ErrInvalidOrder, order.Price, rules.PriceTick)
	}
	if rules.MinPrice.Sign() > 0 && price.Cmp(rules.MinPrice) < 0 {
		return order, fmt.Errorf("%w: price %s < min price %s", ErrInvalidOrder, price, rules.MinPrice)
	}
	if rules.MaxPrice.Sign() > 0 && price.Cmp(rules.MaxPrice) > 0 {
		return order, fmt.Errorf("%w: price %s > max price %s", ErrInvalidOrder, price, rules.MaxPrice)
	}
	order.Qty = qty
	order.Price = price
	order.QtyText, _ = FormatToPrecision(qty, rules.QtyStep)
	order.PriceText, _ = FormatToPrecision(price, rules.PriceTick)
	return order, nil
}

// RoundToPrecision rounds value half-to-even to the decimal places implied by unit.
// unit must be a positive power of ten (0.01, 1, 10, ...).
func RoundToPrecision(value, unit decimal.Decimal) (decimal.Decimal, error) {
	places, err := PrecisionPlaces(unit)
	if err != nil {
		return value, err
	}
	return value.RoundBank(places), nil
}

// FormatToPrecision renders value with exactly the places implied by unit.
func FormatToPrecision(value, unit decimal.Decimal) (string, error) {
	places, err := PrecisionPlaces(unit)
	if err != nil {
		return "", err
	}
	rounded := value.RoundBank(places)
	if places < 0 {
		places = 0
	}
	return rounded.StringFixed(places), nil
}

// PrecisionPlaces returns n such that unit == 10^-n.
func PrecisionPlaces(unit decimal.Decimal) (int32, error) {
	if unit.Sign() <= 0 {
		return 0, fmt.Errorf("%w: unit %s must be > 0", ErrUnsupportedPrecision, unit)
	}
	coef := unit.Coefficient()
	exp := unit.Exponent()
	for coef.Cmp(bigTen) >= 0 {
		q, r := new(big.Int).QuoRem(coef, bigTen, new(big.Int))
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}
	if coef.Cmp(bigOne) != 0 {
		return 0, fmt.Errorf("%w: unit %s is not a power of ten", ErrUnsupportedPrecision, unit)
	}
	return -exp, nil
}
