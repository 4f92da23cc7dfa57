package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"backpack-mm/internal/core"
)

// Exchange is the trading surface one market-making cycle needs.
type Exchange interface {
	Name() string
	MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, order core.Order) (core.Order, error)
	CancelAllOrders(ctx context.Context, symbol string) (int, error)
}

// MarketSource lists the precision rules of every market.
type MarketSource interface {
	Markets(ctx context.Context) ([]core.Rules, error)
}
