package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"variant-sync/internal/blocks"
	"variant-sync/internal/controller"
	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/storefront"
	"variant-sync/internal/variant"
)

const teePage = `<html><head><title>Tee</title></head><body><main>
<product-info id="MainProduct-main" data-section="main" data-url="/products/tee">
<media-gallery><ul><li data-media-id="main-A">A</li></ul></media-gallery>
<div id="price-main">$10.00</div>
<variant-selects><fieldset><legend>Color</legend>
<input type="radio" id="r501" name="Color" value="501" checked>
<input type="radio" id="r502" name="Color" value="502">
</fieldset>
<script type="application/json" data-selected-variant>{"id":501,"title":"Red","option1":"Red","options":["Red"],"available":true}</script>
<script type="application/json" data-variants>[
{"id":501,"title":"Red","option1":"Red","options":["Red"],"available":true,"price":1000},
{"id":502,"title":"Blue","option1":"Blue","options":["Blue"],"available":true,"price":1000}
]</script>
</variant-selects>
<product-form><form id="product-form-main"><input type="hidden" name="id" value="501">
<button type="submit" name="add"><span>Add to cart</span></button></form></product-form>
<div class="product-form__quantity" id="Quantity-Form-main"><input class="quantity__input" data-cart-quantity="0" data-min="1" step="1" value="1"></div>
</product-info></main>
<div class="delivery-info" id="delivery-info-d1"><strong>Arrives in 2 days</strong></div><span id="delivery-date-d1"></span>
<div class="rated-excellent-stars"><i></i><i></i></div>
</body></html>`

const teeQuantitySection = `<div id="shopify-section-main"><product-info data-section="main">
<div class="product-form__quantity" id="Quantity-Form-main"><input class="quantity__input" data-cart-quantity="3" data-min="1" data-max="5" step="1" value="1"></div>
</product-info></div>`

var today = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T, ttl time.Duration) (*Store, *storefront.Mock) {
	t.Helper()
	fetcher := &storefront.Mock{Pages: map[string]string{
		"/products/tee": teePage,
		"/products/tee?variant=501&section_id=main": teeQuantitySection,
	}}
	store := NewStore(Options{
		TTL:      ttl,
		Capacity: 4,
		Fetcher:  fetcher,
		Defaults: controller.Config{ShopURL: "https://shop.example"},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return today },
	})
	t.Cleanup(store.Purge)
	return store, fetcher
}

func TestOpen(t *testing.T) {
	store, fetcher := newStore(t, time.Minute)

	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if sess.ID == "" {
		t.Error("session id is empty")
	}
	if got := fetcher.Calls(); !cmp.Equal(got, []string{"/products/tee"}) {
		t.Errorf("fetches = %v", got)
	}

	view := sess.View()
	if view.Product.VariantID != "501" || view.Product.SectionID != "main" {
		t.Errorf("product = %+v", view.Product)
	}
	if view.Product.Quantity == nil || view.Product.Quantity.Min != 1 {
		t.Errorf("quantity = %+v, want bounds applied on open", view.Product.Quantity)
	}
	want := []blocks.Estimate{{BlockID: "d1", Days: 2, Date: today.AddDate(0, 0, 2), Label: "Oct 17"}}
	if diff := cmp.Diff(want, view.Delivery); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(sess.HTML(), "Oct 17") {
		t.Error("live document lacks the delivery date")
	}

	got, err := store.Get(sess.ID)
	if err != nil || got != sess {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestOpen_Errors(t *testing.T) {
	store, _ := newStore(t, time.Minute)

	_, err := store.Open(context.Background(), OpenRequest{})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("empty url: error = %v, want invalid request", err)
	}

	_, err = store.Open(context.Background(), OpenRequest{ProductURL: "/products/missing"})
	if !errors.Is(err, model.ErrNetwork) {
		t.Errorf("missing page: error = %v, want network failure", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestSelectOptions(t *testing.T) {
	store, fetcher := newStore(t, time.Minute)
	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := sess.SelectOptions(context.Background(), pubsub.OptionChange{Selection: variant.NewSelection("Blue")}); err != nil {
		t.Fatalf("SelectOptions() error = %v", err)
	}

	view := sess.View()
	if view.Product.VariantID != "502" {
		t.Errorf("VariantID = %q, want 502", view.Product.VariantID)
	}
	if diff := cmp.Diff([]string{"/products/tee?variant=502"}, view.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]variant.ID{"502"}, view.Variants); diff != "" {
		t.Errorf("variant changes mismatch (-want +got):\n%s", diff)
	}
	if n := len(fetcher.Calls()); n != 1 {
		t.Errorf("fetches = %d, want only the page load", n)
	}
}

func TestCartUpdated(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := sess.CartUpdated(context.Background(), pubsub.CartUpdated{Source: "cart-drawer", VariantID: "501"}); err != nil {
		t.Fatalf("CartUpdated() error = %v", err)
	}

	max := 2
	want := &controller.Quantity{Min: 1, Max: &max, Value: 1}
	if diff := cmp.Diff(want, sess.View().Product.Quantity); diff != "" {
		t.Errorf("quantity mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleStar(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	color, err := sess.ToggleStar(1)
	if err != nil || color != blocks.StarActive {
		t.Errorf("ToggleStar(1) = %q, %v", color, err)
	}
	if diff := cmp.Diff([]string{"", blocks.StarActive}, sess.View().StarStyle); diff != "" {
		t.Errorf("stars mismatch (-want +got):\n%s", diff)
	}
	if _, err := sess.ToggleStar(7); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("ToggleStar(7) error = %v, want not found", err)
	}
}

func TestClose(t *testing.T) {
	store, _ := newStore(t, time.Minute)
	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := store.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for _, topic := range []pubsub.Topic{pubsub.OptionValueSelectionChange, pubsub.CartUpdate, pubsub.VariantChange} {
		if n := sess.bus.Subscribers(topic); n != 0 {
			t.Errorf("%s subscribers = %d after close", topic, n)
		}
	}
	if _, err := store.Get(sess.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get() after close error = %v", err)
	}
	if err := store.Close(sess.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestExpiry(t *testing.T) {
	store, _ := newStore(t, 20*time.Millisecond)
	sess, err := store.Open(context.Background(), OpenRequest{ProductURL: "/products/tee"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := store.Get(sess.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Get() after ttl error = %v, want not found", err)
	}
}
