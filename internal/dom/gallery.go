package dom

import (
	"fmt"
	"slices"

	"golang.org/x/net/html"

	"variant-sync/internal/reconcile"
)

// MediaKey is the attribute identifying a gallery item.
const MediaKey = "data-media-id"

// MediaID returns the gallery key of an item node.
func MediaID(n *html.Node) string {
	return AttrOr(n, MediaKey, "")
}

// MediaItems returns the keyed <li> items under a gallery list.
func MediaItems(list *html.Node) []*html.Node {
	return All(list, "./li[@"+MediaKey+"]")
}

// Gallery applies reconcile ops to the keyed items of a list element.
// Unkeyed children are left where they are.
type Gallery struct {
	list  *html.Node
	items []*html.Node
}

// NewGallery snapshots the keyed items of list.
func NewGallery(list *html.Node) *Gallery {
	return &Gallery{list: list, items: MediaItems(list)}
}

// Items returns the keyed items in current order.
func (g *Gallery) Items() []*html.Node { return slices.Clone(g.items) }

// Keys returns the media ids in current order.
func (g *Gallery) Keys() []string {
	keys := make([]string, len(g.items))
	for i, n := range g.items {
		keys[i] = MediaID(n)
	}
	return keys
}

// Remove detaches the item at index.
func (g *Gallery) Remove(item *html.Node, index int) error {
	if index < 0 || index >= len(g.items) || g.items[index] != item {
		return fmt.Errorf("gallery: item %q not at %d", MediaID(item), index)
	}
	g.list.RemoveChild(item)
	g.items = slices.Delete(g.items, index, index+1)
	return nil
}

// Insert places item before the keyed item at index; index == len appends
// after the last keyed item. Items owned by another document are detached
// from it first.
func (g *Gallery) Insert(item *html.Node, before int) error {
	if before < 0 || before > len(g.items) {
		return fmt.Errorf("gallery: insert index %d out of range", before)
	}
	Detach(item)
	g.list.InsertBefore(item, g.refAt(before))
	g.items = slices.Insert(g.items, before, item)
	return nil
}

// MoveBefore relocates the item at from to sit before position before.
func (g *Gallery) MoveBefore(item *html.Node, from, before int) error {
	if from < 0 || from >= len(g.items) || g.items[from] != item {
		return fmt.Errorf("gallery: item %q not at %d", MediaID(item), from)
	}
	g.list.RemoveChild(item)
	g.items = slices.Delete(g.items, from, from+1)
	if before < 0 || before > len(g.items) {
		return fmt.Errorf("gallery: move index %d out of range", before)
	}
	g.list.InsertBefore(item, g.refAt(before))
	g.items = slices.Insert(g.items, before, item)
	return nil
}

// refAt returns the sibling to insert before for keyed position i; nil
// means append.
func (g *Gallery) refAt(i int) *html.Node {
	if i < len(g.items) {
		return g.items[i]
	}
	if len(g.items) == 0 {
		return nil
	}
	return g.items[len(g.items)-1].NextSibling
}

// Reconcile brings list's keyed items into the order of target, taking new
// items from source (typically the fetched document's list).
func Reconcile(list, source *html.Node) (*reconcile.Result[*html.Node], error) {
	g := NewGallery(list)
	incoming := MediaItems(source)

	target := make([]string, len(incoming))
	bySource := make(map[string]*html.Node, len(incoming))
	for i, n := range incoming {
		k := MediaID(n)
		target[i] = k
		bySource[k] = n
	}
	src := reconcile.SourceFunc[*html.Node](func(k string) (*html.Node, bool) {
		n, ok := bySource[k]
		return n, ok
	})

	current := g.Items()
	res, err := reconcile.Reconcile(current, target, MediaID, src)
	if err != nil {
		return nil, err
	}
	if err := reconcile.Apply[*html.Node](g, current, res, MediaID, src); err != nil {
		return nil, err
	}
	return res, nil
}

var _ reconcile.Surface[*html.Node] = (*Gallery)(nil)
