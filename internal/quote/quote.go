package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"backpack-mm/internal/config"
	"backpack-mm/internal/core"
)

var one = decimal.NewFromInt(1)

// ValidateSpreads rejects spreads that would put the bid at or below zero
// or on the wrong side of mid.
func ValidateSpreads(bidSpread, askSpread decimal.Decimal) error {
	if bidSpread.Sign() < 0 {
		return fmt.Errorf("%w: bid spread %s must be >= 0", core.ErrConfig, bidSpread)
	}
	if bidSpread.Cmp(one) >= 0 {
		return fmt.Errorf("%w: bid spread %s must be < 1", core.ErrConfig, bidSpread)
	}
	if askSpread.Sign() < 0 {
		return fmt.Errorf("%w: ask spread %s must be >= 0", core.ErrConfig, askSpread)
	}
	return nil
}

// ComputeQuote derives bid = mid*(1-bidSpread) and ask = mid*(1+askSpread).
// The result is unrounded; placement rounds each side to the market tick.
func ComputeQuote(mid, bidSpread, askSpread decimal.Decimal) (core.Quote, error) {
	if mid.Sign() <= 0 {
		return core.Quote{}, fmt.Errorf("%w: mid price %s must be > 0", core.ErrInvalidQuote, mid)
	}
	if err := ValidateSpreads(bidSpread, askSpread); err != nil {
		return core.Quote{}, fmt.Errorf("%w: %w", core.ErrInvalidQuote, err)
	}
	return core.Quote{
		Mid: mid,
		Bid: mid.Mul(one.Sub(bidSpread)),
		Ask: mid.Mul(one.Add(askSpread)),
	}, nil
}

// Quoter holds the validated quoting parameters for one market.
type Quoter struct {
	bidSpread decimal.Decimal
	askSpread decimal.Decimal
	size      decimal.Decimal
}

func NewQuoter(cfg config.QuoteConfig) (*Quoter, error) {
	if err := ValidateSpreads(cfg.BidSpread.Decimal, cfg.AskSpread.Decimal); err != nil {
		return nil, err
	}
	if cfg.PositionSize.Sign() <= 0 {
		return nil, fmt.Errorf("%w: position size %s must be > 0", core.ErrConfig, cfg.PositionSize.Decimal)
	}
	return &Quoter{
		bidSpread: cfg.BidSpread.Decimal,
		askSpread: cfg.AskSpread.Decimal,
		size:      cfg.PositionSize.Decimal,
	}, nil
}

func (q *Quoter) Size() decimal.Decimal {
	return q.size
}

func (q *Quoter) Quote(mid decimal.Decimal) (core.Quote, error) {
	return ComputeQuote(mid, q.bidSpread, q.askSpread)
}

// CheckSize fails with core.ErrBelowMinQty when the configured size cannot meet
// the market minimum, before or after rounding to the step.
func (q *Quoter) CheckSize(rules core.Rules) error {
	if rules.MinQty.Sign() > 0 && q.size.Cmp(rules.MinQty) < 0 {
		return fmt.Errorf("%w: position size %s < min %s", core.ErrBelowMinQty, q.size, rules.MinQty)
	}
	rounded, err := core.RoundToPrecision(q.size, rules.QtyStep)
	if err != nil {
		return fmt.Errorf("qty step: %w", err)
	}
	if rounded.Sign() <= 0 || (rules.MinQty.Sign() > 0 && rounded.Cmp(rules.MinQty) < 0) {
		return fmt.Errorf("%w: position size %s rounds to %s at step %s", core.ErrBelowMinQty, q.size, rounded, rules.QtyStep)
	}
	return nil
}

// Order builds a normalized limit order for one side at the configured size.
func (q *Quoter) Order(side core.Side, price decimal.Decimal, rules core.Rules) (core.Order, error) {
	return BuildOrder(side, price, q.size, rules)
}

func BuildOrder(side core.Side, price, qty decimal.Decimal, rules core.Rules) (core.Order, error) {
	return core.NormalizeOrder(core.Order{
		Symbol: rules.Symbol,
		Side:   side,
		Type:   core.Limit,
		Price:  price,
		Qty:    qty,
	}, rules)
}
