package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal accepts quoted ("0.0005") and bare (0.0005) YAML scalars without a float round-trip.
// Set reports whether the key carried a non-empty value.
type Decimal struct {
	decimal.Decimal
	Set bool
}

func NewDecimal(v string) Decimal {
	return Decimal{Decimal: decimal.RequireFromString(v), Set: true}
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: decimal must be a scalar", value.Line)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Decimal = decimal.Zero
		d.Set = false
		return nil
	}
	dec, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid decimal %q: %w", value.Line, value.Value, err)
	}
	d.Decimal = dec
	d.Set = true
	return nil
}

func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
