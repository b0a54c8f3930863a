// Package session keeps live product documents in memory. Each session
// owns one parsed page, the controller driving its product block and the
// event bus connecting them. Idle sessions expire.
package session

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"

	"variant-sync/internal/blocks"
	"variant-sync/internal/controller"
	"variant-sync/internal/dom"
	"variant-sync/internal/model"
	"variant-sync/internal/pubsub"
	"variant-sync/internal/storefront"
	"variant-sync/internal/variant"
)

// Defaults for the store.
const (
	DefaultTTL      = 30 * time.Minute
	DefaultCapacity = 1024
)

// Options configures a Store. Fetcher is required.
type Options struct {
	TTL      time.Duration
	Capacity int
	Fetcher  storefront.Fetcher
	Products controller.ProductLoader
	Defaults controller.Config // applied to every controller before request overrides
	Logger   *slog.Logger
	Now      func() time.Time
}

// OpenRequest describes the page a session loads.
type OpenRequest struct {
	ProductURL   string `json:"product_url"`
	SectionID    string `json:"section_id,omitempty"`
	UpdateURL    string `json:"update_url,omitempty"`
	ForceRefetch bool   `json:"force_refetch,omitempty"`
	ThemeVersion string `json:"theme_version,omitempty"`
}

// Store holds the open sessions.
type Store struct {
	opts     Options
	logger   *slog.Logger
	sessions *expirable.LRU[string, *Session]
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{opts: opts, logger: opts.Logger}
	s.sessions = expirable.NewLRU[string, *Session](opts.Capacity, func(id string, sess *Session) {
		sess.close()
		s.logger.Debug("session closed", "session_id", id)
	}, opts.TTL)
	return s
}

// Open fetches the product page, or only its section when SectionID is
// set, and binds a controller to it.
func (s *Store) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.ProductURL == "" {
		return nil, model.NewValidationError("product_url", "required")
	}

	fullPage := req.SectionID == ""
	pageURL := storefront.Request{
		ProductURL: req.ProductURL,
		SectionID:  req.SectionID,
		FullPage:   fullPage,
	}.URL()

	body, err := s.opts.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := dom.ParseString(body)
	if err != nil {
		return nil, model.NewInternalError(err)
	}

	sess := &Session{
		ID:      uuid.NewString(),
		Created: s.opts.Now(),
		bus:     pubsub.New(),
	}
	logger := s.logger.With("session_id", sess.ID)

	sess.estimates, err = blocks.ApplyDeliveryEstimates(doc, sess.Created)
	if err != nil {
		logger.Warn("delivery estimate skipped", "error", err)
	}

	cfg := s.opts.Defaults
	cfg.ProductURL = req.ProductURL
	cfg.FullPage = fullPage
	if req.SectionID != "" {
		cfg.SectionID = req.SectionID
	}
	if req.UpdateURL != "" {
		cfg.URLMode = controller.ParseURLMode(req.UpdateURL)
	}
	if req.ForceRefetch {
		cfg.ForceRefetch = true
	}
	if req.ThemeVersion != "" {
		cfg.ThemeVersion = req.ThemeVersion
	}

	sess.ctrl, err = controller.New(ctx, doc, cfg, controller.Deps{
		Fetcher:  s.opts.Fetcher,
		Bus:      sess.bus,
		History:  controller.HistoryFunc(sess.pushHistory),
		Products: s.opts.Products,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	unsubscribe := pubsub.On(sess.bus, pubsub.VariantChange, func(_ context.Context, ev pubsub.VariantChanged) error {
		sess.recordVariant(ev.Variant)
		return nil
	})
	disconnect := sess.ctrl.Connect(ctx, sess.bus)
	sess.dispose = func() {
		disconnect()
		unsubscribe()
	}

	s.sessions.Add(sess.ID, sess)
	logger.Info("session opened",
		slog.String("product_url", req.ProductURL),
		slog.Bool("full_page", fullPage),
	)
	return sess, nil
}

// Get returns an open session.
func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, model.NewNotFoundError("session " + id)
	}
	return sess, nil
}

// Close disposes of a session.
func (s *Store) Close(id string) error {
	if !s.sessions.Remove(id) {
		return model.NewNotFoundError("session " + id)
	}
	return nil
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Purge closes every session.
func (s *Store) Purge() {
	s.sessions.Purge()
}

// Session is one live product page.
type Session struct {
	ID      string
	Created time.Time

	ctrl    *controller.Controller
	bus     *pubsub.Bus
	dispose func()
	once    sync.Once

	mu        sync.Mutex
	history   []string
	variants  []variant.ID
	estimates []blocks.Estimate
}

// View is a session as reported to clients.
type View struct {
	ID        string              `json:"id"`
	Created   time.Time           `json:"created_at"`
	Product   controller.Snapshot `json:"product"`
	History   []string            `json:"history,omitempty"`
	Variants  []variant.ID        `json:"variant_changes,omitempty"`
	Delivery  []blocks.Estimate   `json:"delivery,omitempty"`
	StarStyle []string            `json:"stars,omitempty"`
}

// SelectOptions publishes an option change on the session's bus, as the
// picker would.
func (sess *Session) SelectOptions(ctx context.Context, ch pubsub.OptionChange) error {
	if ch.SectionID == "" {
		ch.SectionID = sess.ctrl.Snapshot().SectionID
	}
	return sess.bus.Publish(ctx, pubsub.OptionValueSelectionChange, ch)
}

// CartUpdated publishes a cart update on the session's bus.
func (sess *Session) CartUpdated(ctx context.Context, ev pubsub.CartUpdated) error {
	return sess.bus.Publish(ctx, pubsub.CartUpdate, ev)
}

// ToggleStar flips the index'th review star and returns its colour.
func (sess *Session) ToggleStar(index int) (string, error) {
	var (
		color string
		found bool
	)
	sess.ctrl.Mutate(func(doc *html.Node) {
		stars := blocks.Stars(doc)
		if index < 0 || index >= len(stars) {
			return
		}
		color, found = blocks.ToggleStar(stars[index]), true
	})
	if !found {
		return "", model.NewNotFoundError("star")
	}
	return color, nil
}

// View reports the session's current state.
func (sess *Session) View() View {
	v := View{
		ID:      sess.ID,
		Created: sess.Created,
		Product: sess.ctrl.Snapshot(),
	}
	sess.ctrl.Mutate(func(doc *html.Node) {
		for _, star := range blocks.Stars(doc) {
			v.StarStyle = append(v.StarStyle, blocks.StarColor(star))
		}
	})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	v.History = slices.Clone(sess.history)
	v.Variants = slices.Clone(sess.variants)
	v.Delivery = slices.Clone(sess.estimates)
	return v
}

// HTML renders the live document.
func (sess *Session) HTML() string {
	var b strings.Builder
	sess.ctrl.Mutate(func(doc *html.Node) {
		if err := html.Render(&b, doc); err != nil {
			b.Reset()
		}
	})
	return b.String()
}

func (sess *Session) pushHistory(url string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history = append(sess.history, url)
}

func (sess *Session) recordVariant(v variant.Variant) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.variants = append(sess.variants, v.ID)
}

func (sess *Session) close() {
	sess.once.Do(func() {
		if sess.dispose != nil {
			sess.dispose()
		}
	})
}
