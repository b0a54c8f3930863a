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

// errSuperseded aborts an update whose request is no longer the latest.
var errSuperseded = errors.New("update superseded")

// update is the per-change bookkeeping of one option change.
type update struct {
	ctx      context.Context
	gen      uint64
	fellBack bool
}

// HandleOptionChange applies an option change. When the selection resolves
// locally and neither a product swap nor a forced refetch is needed, the
// id inputs, submit state and URL are updated in place. Otherwise a
// fragment is fetched and applied. A change superseded by a newer one
// returns nil without touching the document; network failures are logged
// and returned.
func (c *Controller) HandleOptionChange(ctx context.Context, ch pubsub.OptionChange) error {
	defer c.flush(ctx)

	c.mu.Lock()
	if ch.SectionID != "" && ch.SectionID != c.cfg.SectionID {
		c.mu.Unlock()
		return nil
	}

	resolved, resolveErr := c.resolve(ch)
	id := ch.VariantID
	if id == "" && resolveErr == nil {
		id = resolved.ID
	}
	if id != "" && id == c.lastProcessed {
		c.logger.Debug("skipping duplicate variant change", "variant", id)
		c.mu.Unlock()
		return nil
	}
	c.lastProcessed = id
	c.override = ch.VariantID

	requestID := id
	if requestID == "" {
		if v, _ := fragment.SelectedVariant(c.root); v != nil {
			requestID = v.ID
		}
	}

	c.resetProductFormState()
	productURL := firstNonEmpty(ch.ProductURL, c.pendingURL, c.cfg.ProductURL)
	c.pendingURL = productURL
	swap := productURL != c.cfg.ProductURL
	fullPage := c.cfg.URLMode == URLUpdate && swap

	if ch.VariantID != "" {
		c.checkExclusive(ch.VariantID)
	}

	if !swap && !c.cfg.ForceRefetch && c.product != nil {
		defer c.mu.Unlock()
		gen := c.supersede()
		c.pendingURL = ""
		c.state = Idle
		if resolveErr != nil {
			c.logger.Warn("no variant matches selection", "selection", ch.Selection.String())
			c.setUnavailable()
			return nil
		}
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		c.cancel = cancel
		err := c.applyLocal(&update{ctx: lctx, gen: gen}, productURL, resolved)
		if gen == c.gen {
			c.cancel = nil
		}
		if errors.Is(err, errSuperseded) {
			c.logger.Debug("local update superseded", "variant", resolved.ID)
			return nil
		}
		return err
	}

	req := storefront.Request{
		ProductURL:   productURL,
		SectionID:    c.renderSection(),
		OptionValues: ch.OptionValueIDs,
		FullPage:     fullPage,
		VariantID:    requestID,
		ThemeVersion: c.cfg.ThemeVersion,
	}
	return c.render(ctx, req.URL(), ch.TargetID, func(u *update, fetched *html.Node) error {
		if swap {
			return c.handleSwapProduct(u, productURL, fullPage, fetched)
		}
		return c.handleUpdateProductInfo(u, productURL, fetched)
	})
}

// resolve maps an option change to a variant of the current product.
// Caller holds mu.
func (c *Controller) resolve(ch pubsub.OptionChange) (variant.Variant, error) {
	if c.product == nil {
		return variant.Variant{}, model.NewResolutionError("no product data")
	}
	if ch.VariantID != "" {
		if v, ok := c.product.Variant(ch.VariantID); ok {
			return v, nil
		}
		return variant.Variant{}, model.NewResolutionError("unknown variant " + ch.VariantID.String())
	}
	return c.product.Resolve(ch.Selection)
}

// render fetches url and, if the request is still the latest when the
// response arrives, parses it and hands it to apply. Caller holds mu;
// render releases it.
func (c *Controller) render(ctx context.Context, url, targetID string, apply func(*update, *html.Node) error) error {
	gen := c.supersede()
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel
	c.state = AwaitingFragment
	c.mu.Unlock()

	c.logger.Debug("fetching fragment", "url", url)
	body, err := c.fetcher.Fetch(fctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug("discarding superseded fragment", "url", url)
		return nil
	}
	defer func() {
		if gen == c.gen {
			c.cancel = nil
		}
	}()

	if err != nil {
		c.state = Idle
		if model.IsCanceled(err) || errors.Is(err, context.Canceled) {
			c.logger.Debug("fetch aborted", "url", url)
			return nil
		}
		c.hideSpinners()
		c.lastErr = err
		c.logger.Error("fragment fetch failed", "url", url, "error", err)
		return err
	}

	fetched, err := dom.ParseString(body)
	if err != nil {
		c.state = Idle
		c.lastErr = err
		c.logger.Error("fragment parse failed", "url", url, "error", err)
		return model.NewNetworkError(url, err)
	}

	c.pendingURL = ""
	c.lastErr = nil
	c.state = Applying
	err = apply(&update{ctx: fctx, gen: gen}, fetched)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	if gen == c.gen {
		c.state = Idle
	}
	if err == nil && targetID != "" && dom.ByID(c.doc, targetID) != nil {
		c.focused = targetID
	}
	return err
}

// applyLocal is the no-fetch path: id inputs, submit state and URL follow
// the locally resolved variant. Caller holds mu.
func (c *Controller) applyLocal(u *update, productURL string, v variant.Variant) error {
	c.unavailable = false
	c.updateURL(productURL, v.ID)
	if err := c.updateVariantInputs(u, v.ID); err != nil {
		return err
	}
	v = c.settled(u, v)
	c.writeSelectedVariant(v)
	c.toggleSubmitButton(!v.Available, soldOutIf(!v.Available, c.cfg.SoldOutLabel))
	c.override = ""
	c.emit(pubsub.VariantChange, pubsub.VariantChanged{SectionID: c.renderSection(), Variant: v})
	return nil
}

// checkExclusive makes the radio carrying id the only checked input of its
// group. Caller holds mu.
func (c *Controller) checkExclusive(id variant.ID) {
	var clicked *html.Node
	for _, r := range fragment.Radios(c.root) {
		if dom.AttrOr(r, "value", "") == id.String() {
			clicked = r
			break
		}
	}
	name := dom.AttrOr(clicked, "name", "")
	if name == "" {
		return
	}
	for _, r := range fragment.Radios(c.root) {
		if dom.AttrOr(r, "name", "") == name {
			dom.ToggleAttr(r, "checked", r == clicked)
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func soldOutIf(cond bool, label string) string {
	if cond {
		return label
	}
	return ""
}
