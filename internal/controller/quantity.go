package controller

import (
	"context"
	"errors"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/fragment"
	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/storefront"
	"variant-sync/internal/variant"
)

var spinnerExpr = ".//*[" + dom.HasClassExpr("quantity__rules-cart") + "]//*[" + dom.HasClassExpr("loading__spinner") + "]"

func (c *Controller) quantityForm() *html.Node {
	if fragment.QuantityInput(c.root) == nil {
		return nil
	}
	return dom.ByClass(c.root, "product-form__quantity")
}

// applyQuantityBounds recomputes min/max/value of the quantity input.
// Caller holds mu.
func (c *Controller) applyQuantityBounds() {
	input := fragment.QuantityInput(c.quantityForm())
	rules, ok := fragment.ApplyQuantityBounds(input)
	if !ok {
		return
	}
	min, max := rules.Bounds()
	c.emit(pubsub.QuantityUpdate, pubsub.QuantityUpdated{SectionID: c.cfg.SectionID, Min: min, Max: max, Value: min})
}

// updateQuantityRules copies the fetched quantity rules into the live
// quantity form and reapplies the bounds. Caller holds mu.
func (c *Controller) updateQuantityRules(section string, fetched *html.Node) {
	form := c.quantityForm()
	if form == nil {
		return
	}
	if !fragment.UpdateQuantityForm(form, fetched, section) {
		c.logger.Debug("fetched fragment has no quantity form", "section", section)
	}
	c.applyQuantityBounds()
}

// OnCartUpdate refetches the section for the current variant and
// refreshes the quantity rules, showing the loading spinner meanwhile.
// Rules fetched for a product that was swapped out in the meantime are
// dropped.
func (c *Controller) OnCartUpdate(ctx context.Context, _ pubsub.CartUpdated) error {
	defer c.flush(ctx)

	c.mu.Lock()
	id := c.currentVariantID()
	if id == "" || c.quantityForm() == nil {
		c.mu.Unlock()
		return nil
	}
	spinner := dom.One(c.root, spinnerExpr)
	dom.ToggleClass(spinner, fragment.HiddenClass, false)
	url := storefront.QuantityRulesURL(c.cfg.ProductURL, id, c.cfg.SectionID)
	root, productURL, section := c.root, c.cfg.ProductURL, c.cfg.SectionID
	c.mu.Unlock()

	body, err := c.fetcher.Fetch(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	dom.ToggleClass(spinner, fragment.HiddenClass, true)
	if err != nil {
		if model.IsCanceled(err) || errors.Is(err, context.Canceled) {
			return nil
		}
		c.logger.Error("quantity rules fetch failed", "url", url, "error", err)
		return err
	}
	if c.root != root || c.cfg.ProductURL != productURL || c.cfg.SectionID != section {
		c.logger.Debug("product swapped during quantity refresh", "url", url)
		return nil
	}
	fetched, err := dom.ParseString(body)
	if err != nil {
		return model.NewNetworkError(url, err)
	}
	c.updateQuantityRules(section, fetched)
	return nil
}

// currentVariantID reads the product form's hidden id input.
func (c *Controller) currentVariantID() variant.ID {
	input := dom.One(c.productForm(), ".//input[@name='id']")
	return variant.ID(dom.AttrOr(input, "value", ""))
}

// hideSpinners clears every loading indicator of the block.
func (c *Controller) hideSpinners() {
	for _, s := range dom.All(c.root, ".//*["+dom.HasClassExpr("loading__spinner")+"]") {
		dom.ToggleClass(s, fragment.HiddenClass, true)
	}
}
