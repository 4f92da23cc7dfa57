package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

const (
	Bid Side = "Bid"
	Ask Side = "Ask"
)

const (
	Limit OrderType = "Limit"
)

// Order is a limit order request and, once accepted, the exchange's confirmation.
// PriceText and QtyText are the exact strings sent on the wire.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Type      OrderType
	Price     decimal.Decimal
	Qty       decimal.Decimal
	PriceText string
	QtyText   string
	Status    string
	CreatedAt time.Time
}

// Rules are the precision filters the exchange publishes for one market.
type Rules struct {
	Symbol    string
	PriceTick decimal.Decimal
	QtyStep   decimal.Decimal
	MinQty    decimal.Decimal
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
}

type Quote struct {
	Mid decimal.Decimal
	Bid decimal.Decimal
	Ask decimal.Decimal
}

type Stage string

const (
	StageIdle          Stage = "idle"
	StageFetchingPrice Stage = "fetching_price"
	StageValidating    Stage = "validating"
	StageCancelling    Stage = "cancelling"
	StagePlacingBid    Stage = "placing_bid"
	StagePlacingAsk    Stage = "placing_ask"
)

// CycleResult is produced once per market-making cycle, logged, then discarded.
type CycleResult struct {
	ID         string
	Symbol     string
	StartedAt  time.Time
	FinishedAt time.Time
	// Stage is the last stage the cycle entered before returning to idle.
	Stage      Stage
	Quote      Quote
	BidOrderID string
	AskOrderID string
	Cancelled  int
	Errors     []error
}

func (r CycleResult) OK() bool {
	return len(r.Errors) == 0
}

func (r CycleResult) Placed() int {
	n := 0
	if r.BidOrderID != "" {
		n++
	}
	if r.AskOrderID != "" {
		n++
	}
	return n
}
