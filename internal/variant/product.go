package variant

import (
	"encoding/json"
	"fmt"
	"strings"

	"variant-sync/internal/model"
)

// Product is an immutable snapshot of a product's options and variants.
// A new snapshot is built whenever the host swaps in new markup; the
// lookup index lives exactly as long as the snapshot.
type Product struct {
	id       ID
	handle   string
	options  []string
	variants []Variant
	index    map[Key]int
	byID     map[ID]int
}

// NewProduct validates the variant list and builds the lookup index.
// Fails with an invariant error when two variants normalize to the same
// option tuple or share an id.
func NewProduct(id ID, options []string, variants []Variant) (*Product, error) {
	if len(options) > MaxOptions {
		return nil, model.NewInvariantError("product %s declares %d options, at most %d supported", id, len(options), MaxOptions)
	}

	p := &Product{
		id:       id,
		options:  append([]string(nil), options...),
		variants: append([]Variant(nil), variants...),
		index:    make(map[Key]int, len(variants)),
		byID:     make(map[ID]int, len(variants)),
	}

	for i, v := range p.variants {
		if v.ID == "" {
			return nil, model.NewInvariantError("variant at position %d has no id", i)
		}
		if prev, dup := p.byID[v.ID]; dup {
			return nil, model.NewInvariantError("variant id %s appears at positions %d and %d", v.ID, prev, i)
		}
		p.byID[v.ID] = i

		key := KeyOf(v)
		if prev, dup := p.index[key]; dup {
			return nil, model.NewInvariantError("variants %s and %s share option tuple %s",
				p.variants[prev].ID, v.ID, key)
		}
		p.index[key] = i
	}

	return p, nil
}

// ID returns the product id.
func (p *Product) ID() ID { return p.id }

// Handle returns the product handle, empty when unknown.
func (p *Product) Handle() string { return p.handle }

// Options returns the declared option names in order.
func (p *Product) Options() []string { return append([]string(nil), p.options...) }

// Variants returns the variants in document order.
func (p *Product) Variants() []Variant { return append([]Variant(nil), p.variants...) }

// Len returns the number of variants.
func (p *Product) Len() int { return len(p.variants) }

// Variant looks a variant up by id.
func (p *Product) Variant(id ID) (Variant, bool) {
	i, ok := p.byID[id]
	if !ok {
		return Variant{}, false
	}
	return p.variants[i], true
}

// productJSON covers both storefront product endpoints: `.js` lists option
// names as strings, `.json` as objects with a name field.
type productJSON struct {
	ID       ID                `json:"id"`
	Handle   string            `json:"handle"`
	Options  []json.RawMessage `json:"options"`
	Variants []Variant         `json:"variants"`
}

// ParseProduct decodes a product record and builds a snapshot from it.
// A `{"product": {...}}` envelope is unwrapped.
func ParseProduct(data []byte) (*Product, error) {
	var envelope struct {
		Product *productJSON `json:"product"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing product JSON: %w", err)
	}

	raw := envelope.Product
	if raw == nil {
		raw = &productJSON{}
		if err := json.Unmarshal(data, raw); err != nil {
			return nil, fmt.Errorf("parsing product JSON: %w", err)
		}
	}

	names := make([]string, 0, len(raw.Options))
	for _, o := range raw.Options {
		name, err := optionName(o)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	p, err := NewProduct(raw.ID, names, raw.Variants)
	if err != nil {
		return nil, err
	}
	p.handle = raw.Handle
	return p, nil
}

func optionName(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("parsing option name: %w", err)
	}
	return strings.TrimSpace(obj.Name), nil
}
