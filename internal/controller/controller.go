// Package controller keeps a live product document in step with option
// choices. It resolves variants locally when it can, fetches a fresh
// section fragment when it must, and applies that fragment: media order,
// text blocks, hidden id inputs, submit affordances, visible URL.
//
// At most one fragment fetch is in flight per controller. Starting a new
// one cancels the previous one, and a response is only applied if no newer
// request has been issued since (last write wins).
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/fragment"
	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/storefront"
	"variant-sync/internal/variant"
)

// State of the selection state machine.
type State int

const (
	Idle State = iota
	AwaitingFragment
	Applying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingFragment:
		return "awaiting_fragment"
	case Applying:
		return "applying"
	}
	return "unknown"
}

// URLMode mirrors the product block's data-update-url attribute.
type URLMode int

const (
	// URLDefault keeps the visible URL in sync; product swaps render a section.
	URLDefault URLMode = iota
	// URLUpdate additionally fetches the full page when swapping products.
	URLUpdate
	// URLFrozen never touches the visible URL.
	URLFrozen
)

// ParseURLMode reads a data-update-url value.
func ParseURLMode(v string) URLMode {
	switch v {
	case "true":
		return URLUpdate
	case "false":
		return URLFrozen
	}
	return URLDefault
}

// Defaults for the bounded wait on asynchronously rendered option markup.
const (
	DefaultMaxInputRetries = 6
	DefaultInputRetryDelay = 300 * time.Millisecond
)

// Config carries the product block's settings. Zero fields are filled from
// the product-info element's data attributes where it has them.
type Config struct {
	SectionID         string // data-section
	OriginalSectionID string // data-original-section; used to render fragments when set
	ProductURL        string // data-url
	ShopURL           string
	URLMode           URLMode
	ForceRefetch      bool   // always fetch a fragment, even when the variant resolves locally
	ThemeVersion      string // gates option_values on older themes
	FullPage          bool   // the live document is a full product page

	MaxInputRetries int
	InputRetryDelay time.Duration

	AddToCartLabel   string
	SoldOutLabel     string
	UnavailableLabel string
}

func (c *Config) withDefaults(root *html.Node) {
	if c.SectionID == "" {
		c.SectionID = dom.AttrOr(root, "data-section", "")
	}
	if c.OriginalSectionID == "" {
		c.OriginalSectionID = dom.AttrOr(root, "data-original-section", "")
	}
	if c.ProductURL == "" {
		c.ProductURL = dom.AttrOr(root, "data-url", "")
	}
	if c.URLMode == URLDefault {
		c.URLMode = ParseURLMode(dom.AttrOr(root, "data-update-url", ""))
	}
	if c.MaxInputRetries == 0 {
		c.MaxInputRetries = DefaultMaxInputRetries
	}
	if c.InputRetryDelay == 0 {
		c.InputRetryDelay = DefaultInputRetryDelay
	}
	if c.AddToCartLabel == "" {
		c.AddToCartLabel = "Add to cart"
	}
	if c.SoldOutLabel == "" {
		c.SoldOutLabel = "Sold out"
	}
	if c.UnavailableLabel == "" {
		c.UnavailableLabel = "Unavailable"
	}
}

// History is the page address collaborator.
type History interface {
	ReplaceState(url string)
}

// HistoryFunc adapts a function to History.
type HistoryFunc func(url string)

// ReplaceState calls f.
func (f HistoryFunc) ReplaceState(url string) { f(url) }

// ProductLoader supplies a product snapshot when the markup embeds none.
type ProductLoader interface {
	Product(ctx context.Context, productURL string) (*variant.Product, error)
}

// Deps are the controller's collaborators. Fetcher and Logger are
// required.
type Deps struct {
	Fetcher  storefront.Fetcher
	Bus      *pubsub.Bus
	History  History
	Products ProductLoader
	Logger   *slog.Logger
}

// Controller drives one product-info block of a live document.
type Controller struct {
	fetcher  storefront.Fetcher
	bus      *pubsub.Bus
	history  History
	products ProductLoader
	logger   *slog.Logger

	mu      sync.Mutex
	cfg     Config
	doc     *html.Node
	root    *html.Node
	product *variant.Product
	state   State

	lastProcessed variant.ID
	override      variant.ID
	pendingURL    string

	gen    uint64
	cancel context.CancelFunc
	ready  chan struct{}

	visibleURL  string
	shareURL    string
	activeMedia string
	unavailable bool
	focused     string
	lastErr     error

	outbox []event
}

type event struct {
	topic   pubsub.Topic
	payload any
}

// New binds a controller to the product-info element of doc. The product
// snapshot is taken from the embedded variant data, or from deps.Products
// when the markup has none.
func New(ctx context.Context, doc *html.Node, cfg Config, deps Deps) (*Controller, error) {
	root := fragment.ProductInfo(doc, cfg.FullPage)
	if root == nil {
		return nil, model.NewValidationError("document", "no product-info element")
	}
	cfg.withDefaults(root)
	if cfg.SectionID == "" {
		return nil, model.NewValidationError("section_id", "required")
	}
	if deps.Fetcher == nil {
		return nil, model.NewValidationError("fetcher", "required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c := &Controller{
		fetcher:  deps.Fetcher,
		bus:      deps.Bus,
		history:  deps.History,
		products: deps.Products,
		logger:   deps.Logger.With("section", cfg.SectionID),
		cfg:      cfg,
		doc:      doc,
		root:     root,
		ready:    make(chan struct{}),
	}
	if err := c.refreshProduct(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// refreshProduct rebuilds the product snapshot from the live markup.
// Called whenever new markup is swapped in. Caller holds mu or owns c.
func (c *Controller) refreshProduct(ctx context.Context) error {
	p, err := fragment.Product(c.root)
	if err != nil {
		return err
	}
	if p == nil && c.products != nil && c.cfg.ProductURL != "" {
		p, err = c.products.Product(ctx, c.cfg.ProductURL)
		if err != nil {
			c.logger.Warn("product JSON unavailable", "url", c.cfg.ProductURL, "error", err)
			p = nil
		}
	}
	c.product = p
	return nil
}

// renderSection is the section id used when requesting fragments and
// reading blocks out of them.
func (c *Controller) renderSection() string {
	if c.cfg.OriginalSectionID != "" {
		return c.cfg.OriginalSectionID
	}
	return c.cfg.SectionID
}

// Connect subscribes the controller to option changes and, when the block
// has a quantity form and is not a quick-add copy, to cart updates.
// Initial quantity bounds are applied. The returned disposer unsubscribes
// and cancels any in-flight fetch.
func (c *Controller) Connect(ctx context.Context, bus *pubsub.Bus) (dispose func()) {
	c.mu.Lock()
	c.bus = bus
	subs := []func(){
		pubsub.On(bus, pubsub.OptionValueSelectionChange, func(ctx context.Context, ch pubsub.OptionChange) error {
			if err := c.HandleOptionChange(ctx, ch); err != nil {
				c.logger.Error("option change failed", "error", err)
			}
			return nil
		}),
	}
	if c.quantityForm() != nil {
		c.applyQuantityBounds()
		if c.cfg.OriginalSectionID == "" {
			subs = append(subs, pubsub.On(bus, pubsub.CartUpdate, func(ctx context.Context, ev pubsub.CartUpdated) error {
				if err := c.OnCartUpdate(ctx, ev); err != nil {
					c.logger.Error("quantity rules refresh failed", "error", err)
				}
				return nil
			}))
		}
	}
	c.mu.Unlock()
	c.flush(ctx)

	return func() {
		for _, unsubscribe := range subs {
			unsubscribe()
		}
		c.Close()
	}
}

// Close cancels any in-flight fetch. Its response will not be applied.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supersede()
	c.state = Idle
}

// supersede invalidates the pending request, if any. Caller holds mu.
func (c *Controller) supersede() uint64 {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	return c.gen
}

// NotifyMarkupReady wakes any update waiting for option markup to render.
func (c *Controller) NotifyMarkupReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.ready)
	c.ready = make(chan struct{})
}

// Mutate runs fn against the live document under the controller's lock,
// for hosts that render markup into it.
func (c *Controller) Mutate(fn func(doc *html.Node)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.doc)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Product returns the current product snapshot, nil when none is known.
func (c *Controller) Product() *variant.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.product
}

// emit queues a bus event; flush publishes queued events once mu is
// released so subscribers may call back into the controller.
func (c *Controller) emit(topic pubsub.Topic, payload any) {
	if c.bus != nil {
		c.outbox = append(c.outbox, event{topic: topic, payload: payload})
	}
}

func (c *Controller) flush(ctx context.Context) {
	c.mu.Lock()
	events, bus := c.outbox, c.bus
	c.outbox = nil
	c.mu.Unlock()

	for _, ev := range events {
		if err := bus.Publish(ctx, ev.topic, ev.payload); err != nil {
			c.logger.Warn("subscriber failed", "topic", ev.topic, "error", err)
		}
	}
}
