package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Cents is a price in minor currency units.
//
// Storefront JSON is inconsistent: the `.js` product endpoint and embedded
// variant data carry integers in minor units (1999), while `.json` endpoints
// carry decimal strings in major units ("19.99"). UnmarshalJSON accepts both.
type Cents int64

// ParseCents converts decimal string amounts (major units) to cents.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) Cents {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return Cents(math.Round(f * 100))
}

// UnmarshalJSON accepts a JSON number (minor units), a decimal string
// (major units) or null.
func (c *Cents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("price string: %w", err)
		}
		*c = ParseCents(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("price number: %w", err)
	}
	*c = Cents(math.Round(f))
	return nil
}

// String renders the amount in major units with two decimals.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
