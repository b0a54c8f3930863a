// Package fragment reads product state out of server-rendered product
// markup: embedded variant data, the media gallery, text sub-fragments
// and quantity rules. The same functions work on the live document and on
// a freshly fetched one.
package fragment

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/variant"
)

// XPath expressions for the theme's product markup.
const (
	productInfoExpr     = ".//product-info"
	mainProductInfoExpr = ".//product-info[starts-with(@id,'MainProduct')]"
	variantSelectsExpr  = ".//variant-selects"
	selectedVariantExpr = ".//variant-selects//*[@data-selected-variant]"
	mediaListExpr       = ".//media-gallery//ul"
	radioExpr           = ".//input[@type='radio']"
)

// variantsExprs are tried in order to find the embedded variant list.
var variantsExprs = []string{
	".//variant-selects//*[@data-variants]",
	".//script[@type='application/json'][@data-variants]",
	".//script[@data-variants]",
}

// ProductInfo returns the product-info element of a document. In full-page
// mode the main product block is preferred over quick-view copies.
func ProductInfo(doc *html.Node, fullPage bool) *html.Node {
	if fullPage {
		if n := dom.One(doc, mainProductInfoExpr); n != nil {
			return n
		}
	}
	return dom.One(doc, productInfoExpr)
}

// VariantSelects returns the option picker element.
func VariantSelects(root *html.Node) *html.Node {
	return dom.One(root, variantSelectsExpr)
}

// SelectedVariant decodes the `[data-selected-variant]` script, nil when
// the markup carries none.
func SelectedVariant(root *html.Node) (*variant.Variant, error) {
	n := dom.One(root, selectedVariantExpr)
	if n == nil {
		return nil, nil
	}
	return variant.ParseVariant([]byte(dom.Text(n)))
}

// SetSelectedVariant rewrites the `[data-selected-variant]` script.
func SetSelectedVariant(root *html.Node, data []byte) bool {
	n := dom.One(root, selectedVariantExpr)
	if n == nil {
		return false
	}
	dom.SetText(n, string(data))
	return true
}

// Variants decodes the embedded variant list.
func Variants(root *html.Node) ([]variant.Variant, error) {
	for _, expr := range variantsExprs {
		if n := dom.One(root, expr); n != nil {
			return variant.ParseVariants([]byte(dom.Text(n)))
		}
	}
	return nil, nil
}

// OptionNames reads option names from the picker's fieldset legends,
// e.g. "Color: Red" → "Color".
func OptionNames(root *html.Node) []string {
	var names []string
	for _, legend := range dom.All(root, ".//variant-selects//fieldset/legend") {
		name, _, _ := strings.Cut(dom.Text(legend), ":")
		names = append(names, strings.TrimSpace(name))
	}
	return names
}

// Product builds a product snapshot from embedded markup. Returns nil, nil
// when the markup embeds no variant data.
func Product(root *html.Node) (*variant.Product, error) {
	vs, err := Variants(root)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		return nil, nil
	}

	id := variant.ID("")
	if info := dom.One(root, "descendant-or-self::product-info"); info != nil {
		id = variant.ID(dom.AttrOr(info, "data-product-id", ""))
	}

	names := OptionNames(root)
	if len(names) > variant.MaxOptions {
		names = names[:variant.MaxOptions]
	}
	p, err := variant.NewProduct(id, names, vs)
	if err != nil {
		return nil, fmt.Errorf("embedded variant data: %w", err)
	}
	return p, nil
}

// MediaList returns the gallery's list element.
func MediaList(root *html.Node) *html.Node {
	return dom.One(root, mediaListExpr)
}

// Radios returns the option radio inputs under the picker in document order.
func Radios(root *html.Node) []*html.Node {
	return dom.All(VariantSelects(root), radioExpr)
}

// Title returns the document's <title> element.
func Title(doc *html.Node) *html.Node {
	return dom.One(doc, "//head/title")
}

// Main returns the document's <main> element.
func Main(doc *html.Node) *html.Node {
	return dom.One(doc, "//main")
}

// SelectionFromForm reads the current option choice from a product form:
// the checked radio named optionN (data-value preferred), else the select
// named optionN. Slots with neither stay unselected.
func SelectionFromForm(root *html.Node) variant.Selection {
	var sel variant.Selection
	for i := 0; i < variant.MaxOptions; i++ {
		name := dom.Literal(fmt.Sprintf("option%d", i+1))

		if radios := dom.All(root, ".//input[@type='radio'][@name="+name+"]"); len(radios) > 0 {
			for _, r := range radios {
				if dom.HasAttr(r, "checked") {
					v := dom.AttrOr(r, "data-value", dom.AttrOr(r, "value", ""))
					sel[i] = &v
					break
				}
			}
			continue
		}

		if s := dom.One(root, ".//select[@name="+name+"]"); s != nil {
			v := selectValue(s)
			sel[i] = &v
		}
	}
	return sel
}

// selectValue mirrors HTMLSelectElement.value: the selected option, else
// the first one.
func selectValue(s *html.Node) string {
	opt := dom.One(s, ".//option[@selected]")
	if opt == nil {
		opt = dom.One(s, ".//option")
	}
	if opt == nil {
		return ""
	}
	if v, ok := dom.Attr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(dom.Text(opt))
}
