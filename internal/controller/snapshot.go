package controller

import (
	"strconv"
	"strings"

	"variant-sync/internal/dom"
	"variant-sync/internal/fragment"
	"variant-sync/internal/variant"
)

// Snapshot is a read-only view of the live product block.
type Snapshot struct {
	State          string     `json:"state"`
	SectionID      string     `json:"section_id"`
	ProductURL     string     `json:"product_url"`
	VariantID      variant.ID `json:"variant_id"`
	SelectedTitle  string     `json:"selected_title,omitempty"`
	SubmitDisabled bool       `json:"submit_disabled"`
	SubmitLabel    string     `json:"submit_label,omitempty"`
	Unavailable    bool       `json:"unavailable"`
	VisibleURL     string     `json:"visible_url,omitempty"`
	ShareURL       string     `json:"share_url,omitempty"`
	Price          string     `json:"price,omitempty"`
	SKU            string     `json:"sku,omitempty"`
	Inventory      string     `json:"inventory,omitempty"`
	Hidden         []string   `json:"hidden_blocks,omitempty"`
	Media          []string   `json:"media"`
	ActiveMedia    string     `json:"active_media,omitempty"`
	Quantity       *Quantity  `json:"quantity,omitempty"`
	Selection      []string   `json:"selection"`
	Focused        string     `json:"focused,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Quantity is the quantity input's effective state.
type Quantity struct {
	Min   int  `json:"min"`
	Max   *int `json:"max,omitempty"`
	Value int  `json:"value"`
}

// Snapshot captures the block's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:       c.state.String(),
		SectionID:   c.cfg.SectionID,
		ProductURL:  c.cfg.ProductURL,
		VariantID:   c.currentVariantID(),
		Unavailable: c.unavailable,
		VisibleURL:  c.visibleURL,
		ShareURL:    c.shareURL,
		Media:       dom.NewGallery(fragment.MediaList(c.root)).Keys(),
		ActiveMedia: c.activeMedia,
		Selection:   fragment.SelectionFromForm(c.root).Values(),
		Focused:     c.focused,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if v, _ := fragment.SelectedVariant(c.root); v != nil {
		s.SelectedTitle = v.Title
	}

	if buttons := c.submitButtons(); len(buttons) > 0 {
		s.SubmitDisabled = dom.HasAttr(buttons[0], "disabled")
	}
	s.SubmitLabel = strings.TrimSpace(dom.Text(dom.One(c.productForm(), ".//button[@name='add']//span")))

	s.Price = c.blockText("price")
	s.SKU = c.blockText("Sku")
	s.Inventory = c.blockText("Inventory")
	for _, prefix := range fragment.UnavailableBlocks {
		if dom.HasClass(dom.ByID(c.doc, fragment.BlockID(prefix, c.cfg.SectionID)), fragment.HiddenClass) {
			s.Hidden = append(s.Hidden, prefix)
		}
	}

	if input := fragment.QuantityInput(c.quantityForm()); input != nil {
		q := &Quantity{Min: atoi(dom.AttrOr(input, "min", "1")), Value: atoi(dom.AttrOr(input, "value", "1"))}
		if v, ok := dom.Attr(input, "max"); ok {
			m := atoi(v)
			q.Max = &m
		}
		s.Quantity = q
	}
	return s
}

func (c *Controller) blockText(prefix string) string {
	return strings.Join(strings.Fields(dom.Text(dom.ByID(c.root, fragment.BlockID(prefix, c.cfg.SectionID)))), " ")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
