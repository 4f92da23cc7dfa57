package backpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"backpack-mm/internal/config"
	"backpack-mm/internal/core"
)

const (
	instructionOrderExecute   = "orderExecute"
	instructionOrderCancelAll = "orderCancelAll"

	maxResponseBytes = 4 << 20
)

var two = decimal.NewFromInt(2)

type Client struct {
	apiKey     string
	baseURL    string
	signer     *Signer
	window     int64
	httpClient *http.Client
	now        func() time.Time
}

type Options struct {
	APIKey         string
	Signer         *Signer
	RestBaseURL    string
	WindowMs       int64
	HTTPTimeoutSec int64
	Now            func() time.Time
}

// NewClient parses the signing key up front so a bad secret fails at startup, not per request.
func NewClient(cfg config.ExchangeConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api_key required")
	}
	signer, err := NewSigner(cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("api_secret: %w", err)
	}
	return NewClientWithOptions(Options{
		APIKey:         cfg.APIKey,
		Signer:         signer,
		RestBaseURL:    cfg.RestBaseURL,
		WindowMs:       cfg.WindowMs,
		HTTPTimeoutSec: cfg.HTTPTimeoutSec,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 5 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	window := opts.WindowMs
	if window <= 0 {
		window = DefaultWindowMs
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.RestBaseURL, "/"),
		signer:     opts.Signer,
		window:     window,
		httpClient: &http.Client{Timeout: timeout},
		now:        now,
	}
}

func (c *Client) Name() string { return "backpack" }

// PublicKey is the base64 verifying key matching the configured secret.
func (c *Client) PublicKey() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey()
}

// MarketPrice prefers the last trade price and falls back to the high/low midpoint.
// A non-2xx ticker response is reported as ErrTransport joined with an APIError
// carrying the status and body, so a "fetch price" transport error may be an HTTP error status.
func (c *Client) MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/ticker", query, nil, "", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status/100 != 2 {
		return decimal.Zero, parseAPIError("ticker", status, body, core.ErrTransport)
	}
	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode ticker %s: %v", core.ErrNoPriceData, symbol, err)
	}
	if last, ok := parseRawDecimal(resp.LastPrice); ok && last.Sign() > 0 {
		return last, nil
	}
	high, okHigh := parseRawDecimal(resp.High)
	low, okLow := parseRawDecimal(resp.Low)
	if okHigh && okLow && high.Sign() > 0 && low.Sign() > 0 {
		return high.Add(low).Div(two), nil
	}
	return decimal.Zero, fmt.Errorf("%w: ticker %s has neither lastPrice nor high/low", core.ErrNoPriceData, symbol)
}

// PlaceOrder submits a normalized limit order. Only 200/201/202 count as accepted;
// an accepted call whose body cannot be read yields ErrNoResponseBody.
func (c *Client) PlaceOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if order.PriceText == "" || order.QtyText == "" {
		return order, fmt.Errorf("%w: order must be normalized before placement", core.ErrInvalidOrder)
	}
	orderType := order.Type
	if orderType == "" {
		orderType = core.Limit
	}
	req := orderRequest{
		Symbol:    order.Symbol,
		OrderType: string(orderType),
		Side:      string(order.Side),
		Price:     order.PriceText,
		Quantity:  order.QtyText,
	}
	status, body, err := c.do(ctx, http.MethodPost, "/api/v1/order", nil, req, instructionOrderExecute, req.params())
	if err != nil {
		if status/100 == 2 {
			return order, errors.Join(core.ErrNoResponseBody, err)
		}
		return order, err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return order, parseAPIError("place order", status, body, core.ErrOrderRejected)
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return order, errors.Join(core.ErrNoResponseBody, fmt.Errorf("decode order response (http %d): %w", status, err))
	}
	id := rawText(resp.ID)
	if id == "" {
		return order, fmt.Errorf("%w: order response (http %d) has no id: %s", core.ErrNoResponseBody, status, truncateBody(body))
	}
	placed := order
	placed.ID = id
	placed.Type = orderType
	placed.Status = rawText(resp.Status)
	if ms, err := strconv.ParseInt(rawText(resp.CreatedAt), 10, 64); err == nil && ms > 0 {
		placed.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return placed, nil
}

// CancelAllOrders cancels every open order on symbol. It returns the number of
// cancelled orders, or -1 when the exchange acknowledged without listing them.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	req := cancelAllRequest{Symbol: symbol}
	status, body, err := c.do(ctx, http.MethodDelete, "/api/v1/orders", nil, req, instructionOrderCancelAll, map[string]string{"symbol": symbol})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, parseAPIError("cancel all", status, body, core.ErrCancelRejected)
	}
	var cancelled []json.RawMessage
	if err := json.Unmarshal(body, &cancelled); err != nil {
		return -1, nil
	}
	return len(cancelled), nil
}

// Markets returns the precision rules of every listed market.
func (c *Client) Markets(ctx context.Context) ([]core.Rules, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/v1/markets", nil, nil, "", nil)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, parseAPIError("markets", status, body, core.ErrTransport)
	}
	var resp []marketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	rules := make([]core.Rules, 0, len(resp))
	for _, m := range resp {
		r := parseMarket(m)
		if r.Symbol == "" {
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// do sends one request. A non-empty instruction signs it with a fresh timestamp.
// Only network failures are returned as errors; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, instruction string, params map[string]string) (int, []byte, error) {
	urlStr := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		urlStr += "?" + encoded
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if instruction != "" {
		if c.signer == nil {
			return 0, nil, errors.New("signed request without signer")
		}
		timestamp := c.now().UnixMilli()
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-Window", strconv.FormatInt(c.window, 10))
		req.Header.Set("X-Signature", c.signer.Sign(instruction, params, timestamp, c.window))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", core.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s %s: %w", core.ErrTransport, method, path, err)
	}
	return resp.StatusCode, body, nil
}
