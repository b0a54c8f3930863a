package variant

import (
	"fmt"
	"strings"

	"variant-sync/internal/model"
)

// Key is a normalized option tuple. Absent slots are empty strings.
type Key [MaxOptions]string

func (k Key) String() string {
	return "(" + strings.Join(k[:], "|") + ")"
}

// Normalize trims and lowercases an option value; nil becomes "".
func Normalize(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*v))
}

// KeyOf returns the normalized option tuple of a variant.
func KeyOf(v Variant) Key {
	return Key{Normalize(v.Option1), Normalize(v.Option2), Normalize(v.Option3)}
}

// Selection is the chosen value per option slot. A nil slot is unselected
// and only matches a variant whose slot is absent too.
type Selection [MaxOptions]*string

// NewSelection builds a selection from up to three values, slot order.
// Slots beyond len(values) stay unselected.
func NewSelection(values ...string) Selection {
	var s Selection
	for i := 0; i < len(values) && i < MaxOptions; i++ {
		v := values[i]
		s[i] = &v
	}
	return s
}

// Key returns the normalized tuple of the selection.
func (s Selection) Key() Key {
	return Key{Normalize(s[0]), Normalize(s[1]), Normalize(s[2])}
}

// Values returns the selected values, "" for unselected slots.
func (s Selection) Values() []string {
	out := make([]string, MaxOptions)
	for i, v := range s {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

func (s Selection) String() string {
	parts := make([]string, MaxOptions)
	for i, v := range s {
		if v == nil {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%q", *v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Resolve returns the variant whose normalized option tuple equals the
// normalized selection. Exact match only.
func Resolve(p *Product, sel Selection) (Variant, error) {
	if p == nil {
		return Variant{}, model.NewResolutionError("no product data")
	}
	return p.Resolve(sel)
}

// Resolve looks the selection up in the product's index.
func (p *Product) Resolve(sel Selection) (Variant, error) {
	key := sel.Key()
	i, ok := p.index[key]
	if !ok {
		return Variant{}, model.NewResolutionError(
			fmt.Sprintf("no variant of product %s matches %s", p.id, key))
	}
	return p.variants[i], nil
}
