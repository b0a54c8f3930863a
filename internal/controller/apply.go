package controller

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/fragment"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/variant"
)

// handleUpdateProductInfo applies a fetched fragment of the current
// product. The variant is re-derived from the fragment, not from the
// pre-fetch selection. Caller holds mu.
func (c *Controller) handleUpdateProductInfo(u *update, productURL string, fetched *html.Node) error {
	v, err := fragment.SelectedVariant(fetched)
	if err != nil {
		c.logger.Warn("fetched variant data unreadable", "error", err)
		v = nil
	}
	if c.override != "" && v != nil && v.ID != c.override {
		v = c.lookup(c.override)
	}

	if v == nil {
		c.logger.Warn("no variant found, setting unavailable")
		c.setUnavailable()
		first := c.firstAvailableRadio()
		if first == nil || u.fellBack {
			c.logger.Warn("no available variants found")
			return nil
		}
		u.fellBack = true
		id := variant.ID(dom.AttrOr(first, "value", ""))
		c.logger.Warn("falling back to first available variant", "variant", id)
		dom.SetAttr(first, "checked", "")
		if err := c.updateVariantInputs(u, id); err != nil {
			return err
		}
		v = c.lookup(id)
		if v == nil {
			return nil
		}
		c.writeSelectedVariant(*v)
	}

	if err := c.updateOptionValues(u, fetched); err != nil {
		return err
	}
	c.updateURL(productURL, v.ID)
	if err := c.updateVariantInputs(u, v.ID); err != nil {
		return err
	}
	if sv := c.settled(u, *v); sv.ID != v.ID {
		v = &sv
	}

	c.unavailable = false
	c.updateMedia(fetched, v.MediaID())
	fragment.SwapText(c.root, fetched, c.cfg.SectionID, c.renderSection())
	c.updateQuantityRules(c.renderSection(), fetched)
	fragment.Reveal(c.root, c.cfg.SectionID, "Quantity-Rules", "Volume-Note")

	c.toggleSubmitButton(!v.Available, soldOutIf(!v.Available, c.cfg.SoldOutLabel))
	if v.Available {
		c.enableSubmitButtons()
	}

	c.emit(pubsub.VariantChange, pubsub.VariantChanged{
		SectionID: c.renderSection(),
		Variant:   *v,
		Fragment:  fetched,
	})
	c.override = ""
	return c.refreshProduct(u.ctx)
}

// updateOptionValues replaces the live option picker with the fetched one,
// keeps the override variant in its data, sets colour labels and re-checks
// the previous choice. Caller holds mu.
func (c *Controller) updateOptionValues(u *update, fetched *html.Node) error {
	incoming := fragment.VariantSelects(fetched)
	live := fragment.VariantSelects(c.root)
	if incoming == nil || live == nil {
		return nil
	}

	current := c.override
	if current == "" {
		current = variant.ID(dom.AttrOr(c.checkedRadio(), "value", ""))
	}

	live = dom.Replace(live, incoming)
	all, _ := fragment.Variants(live)

	selected, _ := fragment.SelectedVariant(live)
	if c.override != "" && selected != nil && selected.ID != c.override {
		selected = findVariant(all, c.override)
		if selected != nil {
			c.writeSelectedVariant(*selected)
		}
	}
	if selected != nil {
		if sv := findVariant(all, selected.ID); sv != nil {
			setColorLabels(live, *sv)
		}
	}

	if current == "" {
		return nil
	}
	for _, r := range fragment.Radios(c.root) {
		if dom.AttrOr(r, "value", "") == current.String() && !dom.HasAttr(r, "disabled") {
			dom.SetAttr(r, "checked", "")
			return nil
		}
	}

	c.logger.Warn("no matching radio for current selection", "variant", current)
	if u.fellBack {
		return nil
	}
	if first := c.firstAvailableRadio(); first != nil {
		u.fellBack = true
		dom.SetAttr(first, "checked", "")
		return c.updateVariantInputs(u, variant.ID(dom.AttrOr(first, "value", "")))
	}
	return nil
}

// setColorLabels writes the selected value into each colour fieldset's
// `[data-selected-value]` label.
func setColorLabels(picker *html.Node, v variant.Variant) {
	for i, fieldset := range dom.All(picker, ".//fieldset") {
		name, _, _ := strings.Cut(dom.Text(dom.One(fieldset, ".//legend")), ":")
		name = strings.ToLower(strings.TrimSpace(name))
		label := dom.One(fieldset, ".//*[@data-selected-value]")
		if label == nil || !strings.Contains(name, "color") || i >= len(v.Options) || v.Options[i] == "" {
			continue
		}
		dom.SetText(label, v.Options[i])
	}
}

// handleSwapProduct replaces the live product block (or the whole main
// element in full-page mode) with the fetched one. Caller holds mu.
func (c *Controller) handleSwapProduct(u *update, productURL string, fullPage bool, fetched *html.Node) error {
	dom.Detach(dom.ByID(c.doc, "ProductModal-"+c.cfg.SectionID))

	incoming := fragment.ProductInfo(fetched, fullPage)
	if incoming == nil {
		c.logger.Warn("fetched document has no product-info", "url", productURL)
		return nil
	}
	v, _ := fragment.SelectedVariant(incoming)
	var id variant.ID
	if v != nil {
		id = v.ID
	}
	c.updateURL(productURL, id)

	for _, n := range dom.All(fetched, ".//*["+dom.HasClassExpr("scroll-trigger")+"]") {
		dom.ToggleClass(n, "scroll-trigger--cancel", true)
	}

	if fullPage {
		if title, next := fragment.Title(c.doc), fragment.Title(fetched); title != nil && next != nil {
			dom.CopyChildren(title, next)
		}
		if dom.Replace(fragment.Main(c.doc), fragment.Main(fetched)) == nil {
			c.logger.Warn("full-page swap without main element", "url", productURL)
			return nil
		}
		c.root = fragment.ProductInfo(c.doc, true)
	} else {
		c.root = dom.Replace(c.root, incoming)
	}
	if c.root == nil {
		return nil
	}

	c.cfg.SectionID = dom.AttrOr(c.root, "data-section", c.cfg.SectionID)
	c.cfg.OriginalSectionID = dom.AttrOr(c.root, "data-original-section", "")
	c.cfg.ProductURL = dom.AttrOr(c.root, "data-url", productURL)
	c.lastProcessed = ""
	c.override = ""
	c.unavailable = false
	c.activeMedia = ""
	c.logger = c.logger.With("product_url", c.cfg.ProductURL)
	return c.refreshProduct(u.ctx)
}

// updateMedia reconciles the gallery with the fetched one and activates
// the variant's featured media. Caller holds mu.
func (c *Controller) updateMedia(fetched *html.Node, mediaID variant.ID) {
	if mediaID == "" {
		c.logger.Warn("no featured media for variant, skipping media update")
		return
	}

	live, incoming := fragment.MediaList(c.root), fragment.MediaList(fetched)
	if live != nil && incoming != nil {
		res, err := dom.Reconcile(live, incoming)
		if err != nil {
			c.logger.Error("media reconciliation failed", "error", err)
		} else if !res.IsEmpty() {
			removed, inserted, moved := res.Counts()
			c.logger.Debug("media reconciled", "removed", removed, "inserted", inserted, "moved", moved)
		}
	}

	c.activeMedia = c.cfg.SectionID + "-" + mediaID.String()
	if gallery := dom.One(c.root, ".//media-gallery"); gallery != nil {
		dom.SetAttr(gallery, "data-active-media", c.activeMedia)
	}
	for _, item := range dom.MediaItems(live) {
		dom.ToggleClass(item, "is-active", dom.MediaID(item) == c.activeMedia)
	}

	modal := dom.ByID(c.doc, "ProductModal-"+c.cfg.SectionID)
	content := dom.ByClass(modal, "product-media-modal__content")
	next := dom.ByClass(dom.One(fetched, ".//product-modal"), "product-media-modal__content")
	if content != nil && next != nil {
		dom.CopyChildren(content, next)
	}
}

// updateVariantInputs writes id into the product forms' hidden inputs and
// checks the matching radio. When the radio is not rendered yet it waits,
// up to MaxInputRetries times, for NotifyMarkupReady or the retry delay,
// then falls back to the first enabled radio. Caller holds mu; it is
// released while waiting.
func (c *Controller) updateVariantInputs(u *update, id variant.ID) error {
	for attempt := 0; ; attempt++ {
		c.setIDInputs(id)
		if c.syncRadios(id) || id == "" {
			c.enableSubmitButtons()
			return nil
		}
		if attempt >= c.cfg.MaxInputRetries {
			break
		}
		c.logger.Warn("radio for variant not rendered yet", "variant", id, "retry", attempt+1)
		if err := c.waitForMarkup(u); err != nil {
			return err
		}
	}

	if u.fellBack {
		return nil
	}
	first := c.firstEnabledRadio()
	if first == nil {
		return nil
	}
	u.fellBack = true
	fallback := variant.ID(dom.AttrOr(first, "value", ""))
	c.logger.Warn("falling back to first available variant", "variant", fallback)
	dom.SetAttr(first, "checked", "")
	c.setIDInputs(fallback)
	if v := c.lookup(fallback); v != nil {
		c.writeSelectedVariant(*v)
	}
	c.enableSubmitButtons()
	return nil
}

// waitForMarkup releases mu until the markup-ready signal, the retry delay
// or cancellation. Returns errSuperseded if a newer change took over.
func (c *Controller) waitForMarkup(u *update) error {
	ready := c.ready
	timer := time.NewTimer(c.cfg.InputRetryDelay)
	c.mu.Unlock()

	var err error
	select {
	case <-ready:
	case <-timer.C:
	case <-u.ctx.Done():
		err = errSuperseded
	}
	timer.Stop()

	c.mu.Lock()
	if u.gen != c.gen {
		return errSuperseded
	}
	return err
}

// syncRadios checks the enabled radio whose value is id and unchecks the
// others. Dropdown pickers have no radios and always succeed.
func (c *Controller) syncRadios(id variant.ID) bool {
	radios := fragment.Radios(c.root)
	if len(radios) == 0 && dom.One(fragment.VariantSelects(c.root), ".//select") != nil {
		return true
	}
	updated := false
	for _, r := range radios {
		value := dom.AttrOr(r, "value", "")
		switch {
		case value != "" && value == id.String() && !dom.HasAttr(r, "disabled"):
			dom.SetAttr(r, "checked", "")
			updated = true
		case dom.HasAttr(r, "checked") && value != id.String():
			dom.RemoveAttr(r, "checked")
		}
	}
	return updated
}

// setIDInputs writes id into the hidden input of the product and
// installment forms.
func (c *Controller) setIDInputs(id variant.ID) {
	for _, formID := range []string{"product-form-" + c.cfg.SectionID, "product-form-installment-" + c.cfg.SectionID} {
		if input := dom.One(dom.ByID(c.root, formID), ".//input[@name='id']"); input != nil {
			dom.SetAttr(input, "value", id.String())
		}
	}
}

// writeSelectedVariant stores v in the picker's `[data-selected-variant]`.
func (c *Controller) writeSelectedVariant(v variant.Variant) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encoding selected variant", "error", err)
		return
	}
	fragment.SetSelectedVariant(c.root, data)
}

// lookup finds a variant by id, first in the snapshot, then in the live
// picker's embedded data.
func (c *Controller) lookup(id variant.ID) *variant.Variant {
	if c.product != nil {
		if v, ok := c.product.Variant(id); ok {
			return &v
		}
	}
	all, _ := fragment.Variants(c.root)
	return findVariant(all, id)
}

// settled returns the variant the form ended up on: v, or the fallback
// variant when the update had to fall back.
func (c *Controller) settled(u *update, v variant.Variant) variant.Variant {
	if !u.fellBack {
		return v
	}
	if fv := c.lookup(c.currentVariantID()); fv != nil {
		return *fv
	}
	return v
}

func findVariant(all []variant.Variant, id variant.ID) *variant.Variant {
	for i := range all {
		if all[i].ID == id {
			return &all[i]
		}
	}
	return nil
}

func (c *Controller) checkedRadio() *html.Node {
	for _, r := range fragment.Radios(c.root) {
		if dom.HasAttr(r, "checked") {
			return r
		}
	}
	return nil
}

// firstAvailableRadio is the first radio not marked with the disabled class.
func (c *Controller) firstAvailableRadio() *html.Node {
	for _, r := range fragment.Radios(c.root) {
		if !dom.HasClass(r, "disabled") {
			return r
		}
	}
	return nil
}

// firstEnabledRadio is the first radio without the disabled attribute.
func (c *Controller) firstEnabledRadio() *html.Node {
	for _, r := range fragment.Radios(c.root) {
		if !dom.HasAttr(r, "disabled") {
			return r
		}
	}
	return nil
}
