package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/storefront"
)

const teeVariants = `[
	{"id":501,"title":"Red / Large","option1":"Red","option2":"Large","options":["Red","Large"],"available":true,"price":1000,"featured_media":{"id":"A"}},
	{"id":502,"title":"Blue / Large","option1":"Blue","option2":"Large","options":["Blue","Large"],"available":false,"price":1000,"featured_media":{"id":"B"}},
	{"id":503,"title":"Red / Small","option1":"Red","option2":"Small","options":["Red","Small"],"available":true,"price":900,"featured_media":{"id":"C"}},
	{"id":504,"title":"Blue / Small","option1":"Blue","option2":"Small","options":["Blue","Small"],"available":true,"price":900}
]`

const hatVariants = `[
	{"id":901,"title":"Black","option1":"Black","options":["Black"],"available":true,"price":2500,"featured_media":{"id":"H"}}
]`

type radio struct {
	id, value string
	checked   bool
	disabled  bool // disabled attribute
	greyed    bool // disabled class
}

// block describes a product-info block, rendered either as the live page
// or as a fetched section.
type block struct {
	section   string
	url       string
	productID string
	title     string
	selected  string // [data-selected-variant] JSON; empty omits the script
	variants  string
	options   []string
	radios    []radio
	media     []string
	price     string
	sku       string
	inventory string
	idValue   string
	quantity  string // quantity input attributes
}

func teeBlock() block {
	return block{
		section:   "main",
		url:       "/products/tee",
		productID: "7001",
		title:     "Tee",
		selected:  `{"id":503,"title":"Red / Small","option1":"Red","option2":"Small","options":["Red","Small"],"available":true}`,
		variants:  teeVariants,
		options:   []string{"Color: Red", "Size"},
		radios: []radio{
			{id: "r501", value: "501"},
			{id: "r502", value: "502", greyed: true},
			{id: "r503", value: "503", checked: true},
			{id: "r504", value: "504"},
		},
		media:     []string{"A", "B", "C"},
		price:     "$9.00",
		sku:       "TEE-RS",
		inventory: "In stock",
		idValue:   "503",
		quantity:  `data-cart-quantity="0" data-min="1" step="1"`,
	}
}

func (b block) productInfo() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<product-info id="MainProduct-%s" data-section="%s" data-url="%s" data-product-id="%s">`,
		b.section, b.section, b.url, b.productID)

	sb.WriteString(`<media-gallery><ul>`)
	for _, m := range b.media {
		fmt.Fprintf(&sb, `<li data-media-id="%s-%s">%s</li>`, b.section, m, m)
	}
	sb.WriteString(`</ul></media-gallery>`)

	fmt.Fprintf(&sb, `<div id="price-%s">%s</div>`, b.section, b.price)
	fmt.Fprintf(&sb, `<div id="Sku-%s">%s</div>`, b.section, b.sku)
	fmt.Fprintf(&sb, `<div id="Inventory-%s">%s</div>`, b.section, b.inventory)
	fmt.Fprintf(&sb, `<div id="Volume-Note-%s" class="hidden">Volume pricing</div>`, b.section)
	fmt.Fprintf(&sb, `<div id="Quantity-Rules-%s">Rules</div>`, b.section)

	sb.WriteString(`<variant-selects>`)
	for i, legend := range b.options {
		sb.WriteString(`<fieldset><legend>` + legend + `</legend><span data-selected-value></span>`)
		if i == 0 {
			for _, r := range b.radios {
				attrs := ""
				if r.checked {
					attrs += " checked"
				}
				if r.disabled {
					attrs += " disabled"
				}
				if r.greyed {
					attrs += ` class="disabled"`
				}
				fmt.Fprintf(&sb, `<input type="radio" id="%s" name="variant" value="%s"%s>`, r.id, r.value, attrs)
			}
		}
		sb.WriteString(`</fieldset>`)
	}
	if b.selected != "" {
		sb.WriteString(`<script type="application/json" data-selected-variant>` + b.selected + `</script>`)
	}
	sb.WriteString(`<script type="application/json" data-variants>` + b.variants + `</script>`)
	sb.WriteString(`</variant-selects>`)

	fmt.Fprintf(&sb, `<product-form><form id="product-form-%s"><input type="hidden" name="id" value="%s">`, b.section, b.idValue)
	sb.WriteString(`<div class="product-form__error-message-wrapper"><span class="product-form__error-message">Oops</span></div>`)
	sb.WriteString(`<button type="submit" name="add"><span>Add to cart</span></button></form></product-form>`)

	fmt.Fprintf(&sb, `<div class="product-form__quantity" id="Quantity-Form-%s"><input class="quantity__input" %s value="1">`, b.section, b.quantity)
	sb.WriteString(`<span class="quantity__rules"></span><div class="quantity__rules-cart"><div class="loading__spinner hidden"></div></div></div>`)

	sb.WriteString(`<share-button><input value=""></share-button>`)
	sb.WriteString(`</product-info>`)
	return sb.String()
}

// page renders the block as a full product page.
func (b block) page() string {
	return `<html><head><title>` + b.title + `</title></head><body><main>` + b.productInfo() +
		`</main><div id="ProductModal-` + b.section + `"><div class="product-media-modal__content">old</div></div></body></html>`
}

// section renders the block as a section rendering response.
func (b block) sectionHTML() string {
	return `<div id="shopify-section-` + b.section + `">` + b.productInfo() +
		`<product-modal><div class="product-media-modal__content">new modal</div></product-modal></div>`
}

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := dom.ParseString(s)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHistory struct {
	mu   sync.Mutex
	urls []string
}

func (h *recordingHistory) ReplaceState(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.urls = append(h.urls, url)
}

func (h *recordingHistory) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.urls...)
}

type harness struct {
	c       *Controller
	fetcher *storefront.Mock
	history *recordingHistory
	bus     *pubsub.Bus
}

func newHarness(t *testing.T, live block, cfg Config) *harness {
	t.Helper()
	h := &harness{
		fetcher: &storefront.Mock{Pages: map[string]string{}},
		history: &recordingHistory{},
		bus:     pubsub.New(),
	}
	if cfg.ShopURL == "" {
		cfg.ShopURL = "https://shop.example"
	}
	if cfg.InputRetryDelay == 0 {
		cfg.InputRetryDelay = 5 * time.Millisecond
	}
	c, err := New(context.Background(), parse(t, live.page()), cfg, Deps{
		Fetcher: h.fetcher,
		Bus:     h.bus,
		History: h.history,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.c = c
	return h
}
