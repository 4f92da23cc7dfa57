package backpack

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"backpack-mm/internal/core"
)

type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Numeric fields arrive as strings, bare numbers or null depending on the
// endpoint, so they are decoded lazily through rawText.
type tickerResponse struct {
	Symbol    string          `json:"symbol"`
	LastPrice json.RawMessage `json:"lastPrice"`
	High      json.RawMessage `json:"high"`
	Low       json.RawMessage `json:"low"`
}

type orderRequest struct {
	Symbol    string `json:"symbol"`
	OrderType string `json:"orderType"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
}

func (r orderRequest) params() map[string]string {
	return map[string]string{
		"symbol":    r.Symbol,
		"orderType": r.OrderType,
		"side":      r.Side,
		"price":     r.Price,
		"quantity":  r.Quantity,
	}
}

type orderResponse struct {
	ID        json.RawMessage `json:"id"`
	Status    json.RawMessage `json:"status"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

type cancelAllRequest struct {
	Symbol string `json:"symbol"`
}

type marketResponse struct {
	Symbol  string `json:"symbol"`
	Filters struct {
		Price struct {
			TickSize json.RawMessage `json:"tickSize"`
			MinPrice json.RawMessage `json:"minPrice"`
			MaxPrice json.RawMessage `json:"maxPrice"`
		} `json:"price"`
		Quantity struct {
			StepSize    json.RawMessage `json:"stepSize"`
			MinQuantity json.RawMessage `json:"minQuantity"`
		} `json:"quantity"`
	} `json:"filters"`
}

func parseMarket(src marketResponse) core.Rules {
	return core.Rules{
		Symbol:    strings.ToUpper(strings.TrimSpace(src.Symbol)),
		PriceTick: rawDecimal(src.Filters.Price.TickSize),
		QtyStep:   rawDecimal(src.Filters.Quantity.StepSize),
		MinQty:    rawDecimal(src.Filters.Quantity.MinQuantity),
		MinPrice:  rawDecimal(src.Filters.Price.MinPrice),
		MaxPrice:  rawDecimal(src.Filters.Price.MaxPrice),
	}
}

// rawText returns the scalar inside raw with quotes stripped; null and absent give "".
func rawText(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(raw, &out); err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}
	return s
}

func rawDecimal(raw json.RawMessage) decimal.Decimal {
	d, ok := parseRawDecimal(raw)
	if !ok {
		return decimal.Zero
	}
	return d
}

func parseRawDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := rawText(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
