// Package pubsub is the in-process event bus connecting option pickers,
// product controllers and cart widgets.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/net/html"

	"variant-sync/internal/variant"
)

// Topic names an event stream.
type Topic string

const (
	OptionValueSelectionChange Topic = "option-value-selection-change"
	VariantChange              Topic = "variant-change"
	CartUpdate                 Topic = "cart-update"
	QuantityUpdate             Topic = "quantity-update"
)

// OptionChange is published by an option picker when the shopper picks a
// value.
type OptionChange struct {
	SectionID      string            // section the picker belongs to; empty matches any
	Selection      variant.Selection // option values so far
	OptionValueIDs []string          // storefront ids of the selected option values
	VariantID      variant.ID        // value of the clicked radio, when the picker carries one
	ProductURL     string            // set when the picker points at another product
	TargetID       string            // element to focus once the update lands
}

// VariantChanged is published after a fetched fragment has been applied.
type VariantChanged struct {
	SectionID string
	Variant   variant.Variant
	Fragment  *html.Node
}

// CartUpdated is published by the cart when line items change.
type CartUpdated struct {
	Source    string
	VariantID variant.ID
}

// QuantityUpdated is published when quantity bounds are recomputed.
type QuantityUpdated struct {
	SectionID string
	Min       int
	Max       *int
	Value     int
}

// Handler receives a published payload.
type Handler func(ctx context.Context, payload any) error

type subscription struct {
	id int
	h  Handler
}

// Bus dispatches payloads to topic subscribers synchronously, in
// subscription order. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic][]subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers h for topic and returns its disposer. Calling the
// disposer more than once is a no-op.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs[topic] = slices.DeleteFunc(b.subs[topic], func(s subscription) bool { return s.id == id })
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Publish delivers payload to every current subscriber of topic. All
// subscribers run; their errors are joined.
func (b *Bus) Publish(ctx context.Context, topic Topic, payload any) error {
	b.mu.RLock()
	subs := slices.Clone(b.subs[topic])
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.h(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s subscriber: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns the number of handlers registered for topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// On subscribes a typed handler. Payloads of another type are ignored.
func On[T any](b *Bus, topic Topic, fn func(ctx context.Context, payload T) error) (unsubscribe func()) {
	return b.Subscribe(topic, func(ctx context.Context, payload any) error {
		p, ok := payload.(T)
		if !ok {
			return nil
		}
		return fn(ctx, p)
	})
}
