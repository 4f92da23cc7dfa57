package core

import "errors"

var (
	// ErrConfig marks fatal startup configuration problems.
	ErrConfig = errors.New("invalid configuration")
	// ErrNoPriceData indicates the ticker carried neither a last price nor a high/low pair.
	ErrNoPriceData = errors.New("no price data")
	// ErrSymbolNotFound indicates the market is absent from the instrument snapshot.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrOrderRejected indicates the exchange answered an order with a non-success status.
	ErrOrderRejected = errors.New("order rejected")
	// ErrCancelRejected indicates the exchange refused the bulk cancel.
	ErrCancelRejected = errors.New("cancel rejected")
	// ErrTransport covers network failures and timeouts.
	ErrTransport = errors.New("transport error")
	// ErrInvalidQuote indicates a mid price or spread that cannot produce a bid below an ask.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrNoResponseBody indicates a success status whose body could not be read as an order.
	// The order may be live on the exchange.
	ErrNoResponseBody = errors.New("no response body")
)
