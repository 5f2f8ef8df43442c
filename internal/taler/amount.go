package taler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Amount is a Taler monetary amount. On the wire it travels as
// "<CURRENCY>:<value>" where the value is a decimal string; floats never
// touch the wire.
type Amount struct {
	Currency string
	Value    string
}

// NewAmount builds an amount from a currency code and a decimal value string.
func NewAmount(currency, value string) Amount {
	return Amount{Currency: strings.ToUpper(strings.TrimSpace(currency)), Value: strings.TrimSpace(value)}
}

// ParseAmount decodes the "<CURRENCY>:<value>" wire form.
func ParseAmount(s string) (Amount, error) {
	currency, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Amount{}, fmt.Errorf("taler: malformed amount %q", s)
	}
	a := NewAmount(currency, value)
	if a.Currency == "" || a.Value == "" || !validDecimal(a.Value) {
		return Amount{}, fmt.Errorf("taler: malformed amount %q", s)
	}
	return a, nil
}

// String renders the wire form.
func (a Amount) String() string {
	return a.Currency + ":" + a.Value
}

// MarshalJSON renders the wire form as a JSON string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the wire form from a JSON string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// IsZero reports whether the amount is entirely unset.
func (a Amount) IsZero() bool {
	return a.Currency == "" && a.Value == ""
}

// withCurrency fills in the fallback currency when none was given.
func (a Amount) withCurrency(fallback string) Amount {
	if a.Currency == "" {
		a.Currency = fallback
	}
	return a
}

func (a Amount) validate() error {
	if a.Currency == "" {
		return fmt.Errorf("taler: amount %q has no currency", a.Value)
	}
	if a.Value == "" || !validDecimal(a.Value) {
		return fmt.Errorf("taler: amount value %q is not a decimal", a.Value)
	}
	return nil
}

// validDecimal accepts unsigned decimal numbers with at most one fraction
// separator, matching the Taler amount grammar.
func validDecimal(value string) bool {
	whole, frac, hasFrac := strings.Cut(value, ".")
	if !allDigits(whole) || whole == "" {
		return false
	}
	if hasFrac && (!allDigits(frac) || frac == "") {
		return false
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
