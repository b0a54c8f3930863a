package fragment

import (
	"strings"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
)

// HiddenClass is the theme's visibility toggle.
const HiddenClass = "hidden"

// TextBlock is a sub-fragment copied from the fetched markup into the live
// one, keyed by id prefix. Hide decides visibility from the fetched node.
type TextBlock struct {
	Prefix string
	Hide   func(src *html.Node) bool
}

func never(*html.Node) bool { return false }

func sourceHidden(src *html.Node) bool { return dom.HasClass(src, HiddenClass) }

func sourceEmpty(src *html.Node) bool { return strings.TrimSpace(dom.Text(src)) == "" }

// TextBlocks are swapped after every variant update, in this order.
var TextBlocks = []TextBlock{
	{Prefix: "price", Hide: never},
	{Prefix: "Sku", Hide: sourceHidden},
	{Prefix: "Inventory", Hide: sourceEmpty},
	{Prefix: "Volume", Hide: never},
	{Prefix: "Price-Per-Item", Hide: sourceHidden},
}

// UnavailableBlocks are hidden when no variant can be resolved.
var UnavailableBlocks = []string{
	"price", "Inventory", "Sku", "Price-Per-Item", "Volume-Note", "Volume", "Quantity-Rules",
}

// BlockID joins a block prefix with a section id.
func BlockID(prefix, section string) string {
	return prefix + "-" + section
}

// SwapText copies each text block from fetched (ids suffixed with
// fetchedSection) into live (ids suffixed with liveSection). Blocks missing
// on either side are skipped. Returns the prefixes that were swapped.
func SwapText(live, fetched *html.Node, liveSection, fetchedSection string) []string {
	var swapped []string
	for _, b := range TextBlocks {
		src := dom.ByID(fetched, BlockID(b.Prefix, fetchedSection))
		dst := dom.ByID(live, BlockID(b.Prefix, liveSection))
		if src == nil || dst == nil {
			continue
		}
		dom.CopyChildren(dst, src)
		dom.ToggleClass(dst, HiddenClass, b.Hide(src))
		swapped = append(swapped, b.Prefix)
	}
	return swapped
}

// HideUnavailable hides the price, inventory, SKU and volume blocks of a
// section.
func HideUnavailable(root *html.Node, section string) {
	for _, prefix := range UnavailableBlocks {
		dom.ToggleClass(dom.ByID(root, BlockID(prefix, section)), HiddenClass, true)
	}
}

// Reveal removes the hidden class from the given blocks of a section.
func Reveal(root *html.Node, section string, prefixes ...string) {
	for _, prefix := range prefixes {
		dom.ToggleClass(dom.ByID(root, BlockID(prefix, section)), HiddenClass, false)
	}
}
