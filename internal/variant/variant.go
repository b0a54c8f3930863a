// Package variant models a product's purchasable variants and resolves a
// selection of option values to exactly one of them.
package variant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"variant-sync/internal/model"
)

// MaxOptions is the number of option slots a product can declare.
const MaxOptions = 3

// ID is an opaque identifier. Storefront JSON emits ids as numbers,
// embedded data sometimes as strings; both decode to the same ID.
type ID string

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so re-embedded data matches
// what the storefront renders.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// Media is the subset of a media record carried on a variant.
type Media struct {
	ID ID `json:"id"`
}

// Variant is one purchasable configuration of a product.
type Variant struct {
	ID              ID          `json:"id"`
	Title           string      `json:"title,omitempty"`
	Option1         *string     `json:"option1"`
	Option2         *string     `json:"option2"`
	Option3         *string     `json:"option3"`
	Options         []string    `json:"options"`
	Available       bool        `json:"available"`
	Price           model.Cents `json:"price,omitempty"`
	SKU             string      `json:"sku,omitempty"`
	FeaturedMedia   *Media      `json:"featured_media,omitempty"`
	FeaturedMediaID ID          `json:"featured_media_id,omitempty"`
}

// Option returns the value of option slot i (0-based), nil when absent.
func (v Variant) Option(i int) *string {
	switch i {
	case 0:
		return v.Option1
	case 1:
		return v.Option2
	case 2:
		return v.Option3
	}
	return nil
}

// MediaID returns the featured media id, preferring the nested record.
func (v Variant) MediaID() ID {
	if v.FeaturedMedia != nil && v.FeaturedMedia.ID != "" {
		return v.FeaturedMedia.ID
	}
	return v.FeaturedMediaID
}

// ParseVariant decodes a single variant record, as embedded in a
// `[data-selected-variant]` script.
func ParseVariant(data []byte) (*Variant, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var v Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing variant JSON: %w", err)
	}
	if v.ID == "" {
		return nil, fmt.Errorf("variant JSON has no id")
	}
	return &v, nil
}

// ParseVariants decodes a variant list, as embedded in a `[data-variants]` script.
func ParseVariants(data []byte) ([]Variant, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var vs []Variant
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("parsing variants JSON: %w", err)
	}
	return vs, nil
}
