package controller

import (
	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/fragment"
	"variant-sync/internal/storefront"
	"variant-sync/internal/variant"
)

const submitButtonsExpr = ".//button[@type='submit' or @id='AddToCart' or @id='BuyNow']"

func (c *Controller) productForm() *html.Node {
	return dom.One(c.root, ".//product-form")
}

func (c *Controller) submitButtons() []*html.Node {
	return dom.All(c.productForm(), submitButtonsExpr)
}

// toggleSubmitButton disables or enables the add-to-cart affordances. The
// add button's label shows text when disabling with a reason, and the
// add-to-cart label otherwise.
func (c *Controller) toggleSubmitButton(disable bool, text string) {
	for _, b := range c.submitButtons() {
		dom.ToggleAttr(b, "disabled", disable)
		dom.ToggleClass(b, "disabled", disable)
	}

	label := dom.One(c.productForm(), ".//button[@name='add']//span")
	switch {
	case label == nil:
	case disable && text != "":
		dom.SetText(label, text)
	case !disable:
		dom.SetText(label, c.cfg.AddToCartLabel)
	}
}

func (c *Controller) enableSubmitButtons() {
	for _, b := range c.submitButtons() {
		dom.RemoveAttr(b, "disabled")
		dom.RemoveAttr(b, "aria-disabled")
		dom.ToggleClass(b, "disabled", false)
	}
}

// resetProductFormState disables the submit affordances and clears the
// form's error message while a change is in progress.
func (c *Controller) resetProductFormState() {
	c.toggleSubmitButton(true, "")
	form := c.productForm()
	dom.ToggleClass(dom.ByClass(form, "product-form__error-message-wrapper"), fragment.HiddenClass, true)
	if msg := dom.ByClass(form, "product-form__error-message"); msg != nil {
		dom.RemoveChildren(msg)
	}
}

// setUnavailable disables the submit affordances and hides the price,
// inventory, SKU and volume blocks. Hidden id inputs keep their value.
func (c *Controller) setUnavailable() {
	c.unavailable = true
	c.toggleSubmitButton(true, c.cfg.UnavailableLabel)
	fragment.HideUnavailable(c.doc, c.cfg.SectionID)
}

// updateURL points the share button at the variant and, unless the block
// freezes its URL, replaces the visible address.
func (c *Controller) updateURL(productURL string, id variant.ID) {
	c.shareURL = storefront.ShareURL(c.cfg.ShopURL, productURL, id)
	if share := dom.One(c.root, ".//share-button"); share != nil {
		dom.SetAttr(share, "data-share-url", c.shareURL)
		if input := dom.One(share, ".//input"); input != nil {
			dom.SetAttr(input, "value", c.shareURL)
		}
	}

	if c.cfg.URLMode == URLFrozen {
		return
	}
	c.visibleURL = storefront.VariantURL(productURL, id)
	if c.history != nil {
		c.history.ReplaceState(c.visibleURL)
	}
}
