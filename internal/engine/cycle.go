package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backpack-mm/internal/core"
	"backpack-mm/internal/exchange"
	"backpack-mm/internal/quote"
	"backpack-mm/internal/safety"
)

const defaultCallTimeout = 5 * time.Second

type RulesSource interface {
	Rules(symbol string) (core.Rules, error)
}

// OrderError ties a failed placement to the side and the values that were sent.
type OrderError struct {
	Side  core.Side
	Price string
	Qty   string
	Err   error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("place %s %s@%s: %v", e.Side, e.Qty, e.Price, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// httpDetail is implemented by exchange errors that carry the raw response.
type httpDetail interface {
	HTTPStatus() int
	ResponseBody() string
}

// Cycle runs one fetch-quote-cancel-place iteration for a single market.
// Failures are recorded in the returned result, never returned as errors.
type Cycle struct {
	Exchange    exchange.Exchange
	Rules       RulesSource
	Quoter      *quote.Quoter
	Symbol      string
	CallTimeout time.Duration
	Monitor     *safety.Monitor
	Logger      *zap.Logger

	now   func() time.Time
	newID func() string
}

func (c *Cycle) Run(ctx context.Context) (res core.CycleResult) {
	res = core.CycleResult{
		ID:        c.id(),
		Symbol:    c.Symbol,
		StartedAt: c.clock(),
		Stage:     core.StageIdle,
	}
	log := c.logger().With(zap.String("cycle_id", res.ID), zap.String("symbol", c.Symbol))
	defer func() {
		res.FinishedAt = c.clock()
		c.report(log, res)
	}()

	res.Stage = core.StageFetchingPrice
	mid, err := c.marketPrice(ctx)
	c.Monitor.RecordCycle(res.ID, safety.ActionPrice, err)
	if err != nil {
		c.fail(log, &res, "price_fetch_failed", fmt.Errorf("fetch price: %w", err))
		return res
	}

	res.Stage = core.StageValidating
	rules, err := c.Rules.Rules(c.Symbol)
	if err != nil {
		c.Monitor.RecordCycle(res.ID, safety.ActionPlace, err)
		c.fail(log, &res, "rules_lookup_failed", err)
		return res
	}
	if err := c.Quoter.CheckSize(rules); err != nil {
		c.Monitor.RecordCycle(res.ID, safety.ActionPlace, err)
		c.fail(log, &res, "size_below_minimum", err)
		return res
	}
	q, err := c.Quoter.Quote(mid)
	if err != nil {
		c.Monitor.RecordCycle(res.ID, safety.ActionPlace, err)
		c.fail(log, &res, "quote_failed", err)
		return res
	}
	res.Quote = q

	res.Stage = core.StageCancelling
	cancelled, err := c.cancelAll(ctx)
	c.Monitor.RecordCycle(res.ID, safety.ActionCancel, err)
	if err != nil {
		// a surviving stale order is accepted; placement goes ahead
		c.fail(log, &res, "cancel_failed", fmt.Errorf("cancel all: %w", err))
	} else {
		res.Cancelled = cancelled
	}

	res.Stage = core.StagePlacingBid
	bidID, bidErr := c.place(ctx, log, &res, core.Bid, q.Bid, rules)
	res.BidOrderID = bidID

	res.Stage = core.StagePlacingAsk
	askID, askErr := c.place(ctx, log, &res, core.Ask, q.Ask, rules)
	res.AskOrderID = askID

	c.Monitor.RecordCycle(res.ID, safety.ActionPlace, errors.Join(bidErr, askErr))
	return res
}

func (c *Cycle) marketPrice(ctx context.Context) (decimal.Decimal, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout())
	defer cancel()
	return c.Exchange.MarketPrice(callCtx, c.Symbol)
}

func (c *Cycle) cancelAll(ctx context.Context) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout())
	defer cancel()
	return c.Exchange.CancelAllOrders(callCtx, c.Symbol)
}

// place normalizes and submits one side. Any side that ends without an order id
// returns a non-nil error, whether it failed locally or at the exchange.
func (c *Cycle) place(ctx context.Context, log *zap.Logger, res *core.CycleResult, side core.Side, price decimal.Decimal, rules core.Rules) (string, error) {
	order, err := c.Quoter.Order(side, price, rules)
	if err != nil {
		oerr := &OrderError{Side: side, Price: price.String(), Qty: c.Quoter.Size().String(), Err: err}
		c.fail(log, res, "order_build_failed", oerr)
		return "", oerr
	}
	if err := ctx.Err(); err != nil {
		oerr := &OrderError{Side: side, Price: order.PriceText, Qty: order.QtyText, Err: err}
		c.fail(log, res, "order_skipped", oerr)
		return "", oerr
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout())
	defer cancel()
	placed, err := c.Exchange.PlaceOrder(callCtx, order)
	if err != nil {
		event := "order_place_failed"
		if errors.Is(err, core.ErrNoResponseBody) {
			event = "order_outcome_unknown"
		}
		c.fail(log, res, event, &OrderError{Side: side, Price: order.PriceText, Qty: order.QtyText, Err: err})
		return "", err
	}
	log.Info("order_placed",
		zap.String("side", string(side)),
		zap.String("order_id", placed.ID),
		zap.String("price", order.PriceText),
		zap.String("qty", order.QtyText),
		zap.String("status", placed.Status),
	)
	return placed.ID, nil
}

func (c *Cycle) fail(log *zap.Logger, res *core.CycleResult, event string, err error) {
	res.Errors = append(res.Errors, err)
	fields := []zap.Field{zap.String("stage", string(res.Stage)), zap.Error(err)}
	var oe *OrderError
	if errors.As(err, &oe) {
		fields = append(fields, zap.String("side", string(oe.Side)), zap.String("price", oe.Price), zap.String("qty", oe.Qty))
	}
	var detail httpDetail
	if errors.As(err, &detail) {
		fields = append(fields, zap.Int("http_status", detail.HTTPStatus()), zap.String("body", detail.ResponseBody()))
	}
	log.Error(event, fields...)
}

func (c *Cycle) report(log *zap.Logger, res core.CycleResult) {
	fields := []zap.Field{
		zap.String("stage", string(res.Stage)),
		zap.Int("placed", res.Placed()),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	if !res.Quote.Mid.IsZero() {
		fields = append(fields,
			zap.String("mid", res.Quote.Mid.String()),
			zap.String("bid", res.Quote.Bid.String()),
			zap.String("ask", res.Quote.Ask.String()),
		)
	}
	if res.BidOrderID != "" {
		fields = append(fields, zap.String("bid_order_id", res.BidOrderID))
	}
	if res.AskOrderID != "" {
		fields = append(fields, zap.String("ask_order_id", res.AskOrderID))
	}
	if res.Stage == core.StagePlacingAsk {
		fields = append(fields, zap.Int("cancelled", res.Cancelled))
	}
	if res.OK() {
		log.Info("cycle_completed", fields...)
		return
	}
	log.Warn("cycle_completed", fields...)
}

func (c *Cycle) callTimeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return defaultCallTimeout
}

func (c *Cycle) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cycle) clock() time.Time {
	if c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

func (c *Cycle) id() string {
	if c.newID != nil {
		return c.newID()
	}
	return uuid.NewString()
}
