package fragment

import (
	"strconv"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
)

// QuantityRules are the purchase limits carried on the quantity input.
type QuantityRules struct {
	CartQuantity int
	Min          int
	Max          *int
	Step         int
}

// Bounds returns the effective input min and max. The max shrinks by what
// is already in the cart; once the cart holds at least the minimum, a
// single step is enough.
func (q QuantityRules) Bounds() (min int, max *int) {
	min = q.Min
	if q.Max != nil {
		m := *q.Max - q.CartQuantity
		max = &m
		if m < min {
			min = m
		}
	}
	if q.CartQuantity >= q.Min && q.Step < min {
		min = q.Step
	}
	return min, max
}

// quantityAttrs are copied from the fetched input to the live one.
var quantityAttrs = []string{"data-cart-quantity", "data-min", "data-max", "step"}

// QuantityInput returns the quantity input under root.
func QuantityInput(root *html.Node) *html.Node {
	return dom.ByClass(root, "quantity__input")
}

// ReadQuantityRules parses the rule attributes of a quantity input.
func ReadQuantityRules(input *html.Node) QuantityRules {
	q := QuantityRules{
		CartQuantity: attrInt(input, "data-cart-quantity", 0),
		Min:          attrInt(input, "data-min", 1),
		Step:         attrInt(input, "step", 1),
	}
	if v, ok := dom.Attr(input, "data-max"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Max = &n
		}
	}
	return q
}

// ApplyQuantityBounds writes the effective bounds to the input and resets
// its value to the minimum. Returns the rules that were applied.
func ApplyQuantityBounds(input *html.Node) (QuantityRules, bool) {
	if input == nil {
		return QuantityRules{}, false
	}
	q := ReadQuantityRules(input)
	min, max := q.Bounds()

	dom.SetAttr(input, "min", strconv.Itoa(min))
	if max != nil && *max != 0 {
		dom.SetAttr(input, "max", strconv.Itoa(*max))
	} else {
		dom.RemoveAttr(input, "max")
	}
	dom.SetAttr(input, "value", strconv.Itoa(min))
	return q, true
}

// UpdateQuantityForm copies quantity rules from the fetched
// `Quantity-Form-{section}` into the live quantity form: rule attributes on
// the input, and the rules and label markup.
func UpdateQuantityForm(liveForm, fetched *html.Node, fetchedSection string) bool {
	if liveForm == nil {
		return false
	}
	updated := dom.ByID(fetched, BlockID("Quantity-Form", fetchedSection))
	if updated == nil {
		return false
	}

	if cur, upd := QuantityInput(liveForm), QuantityInput(updated); cur != nil && upd != nil {
		for _, attr := range quantityAttrs {
			if v, ok := dom.Attr(upd, attr); ok {
				dom.SetAttr(cur, attr, v)
			} else {
				dom.RemoveAttr(cur, attr)
			}
		}
	}
	for _, class := range []string{"quantity__rules", "quantity__label"} {
		if cur, upd := dom.ByClass(liveForm, class), dom.ByClass(updated, class); cur != nil && upd != nil {
			dom.CopyChildren(cur, upd)
		}
	}
	return true
}

func attrInt(n *html.Node, key string, def int) int {
	v, ok := dom.Attr(n, key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
