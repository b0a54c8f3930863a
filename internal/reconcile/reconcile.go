// Package reconcile computes the edit sequence that turns one ordered list
// of keyed items into another. Used to bring a live media gallery in line
// with a freshly fetched one while touching as few nodes as possible.
//
// The functions here are pure: they never mutate the caller's slices and
// never fabricate items. A Surface replays the emitted ops onto whatever
// concrete structure holds the items.
package reconcile

import (
	"fmt"
	"slices"

	"variant-sync/internal/model"
)

// OpKind is the primitive edit type.
type OpKind string

const (
	OpRemove OpKind = "remove"
	OpInsert OpKind = "insert"
	OpMove   OpKind = "move"
)

// Op is one edit. Index is a position in the item sequence as it stands
// immediately before the op is applied:
//   - remove: position of the removed item
//   - insert: the item is placed before Index (Index == len appends)
//   - move:   the item at From is placed before Index
type Op struct {
	Kind  OpKind
	Key   string
	Index int
	From  int // moves only
}

func (o Op) String() string {
	switch o.Kind {
	case OpMove:
		return fmt.Sprintf("move %s %d→%d", o.Key, o.From, o.Index)
	default:
		return fmt.Sprintf("%s %s @%d", o.Kind, o.Key, o.Index)
	}
}

// Source provides items that appear in the target but not in the current
// sequence. The reconciler never creates items itself.
type Source[T any] interface {
	Item(key string) (T, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(key string) (T, bool)

// Item calls f.
func (f SourceFunc[T]) Item(key string) (T, bool) { return f(key) }

// Result is the reconciled sequence plus the ops that produce it.
type Result[T any] struct {
	Items []T
	Ops   []Op
}

// IsEmpty returns true if no edits are needed.
func (r *Result[T]) IsEmpty() bool {
	return len(r.Ops) == 0
}

// Counts returns the number of ops per kind.
func (r *Result[T]) Counts() (removed, inserted, moved int) {
	for _, op := range r.Ops {
		switch op.Kind {
		case OpRemove:
			removed++
		case OpInsert:
			inserted++
		case OpMove:
			moved++
		}
	}
	return
}

// Reconcile computes the edits turning current into target order.
//
// Ops are emitted in a fixed order that callers rely on for indices:
//  1. Removals of items absent from target, scanning current from the end
//  2. Insertions of items absent from current, in target order. Each new
//     item goes before the first item whose target position is later than
//     its own, so it never has to move again
//  3. Moves: walking target by index, an out-of-place item is pulled
//     forward into position. Positions before the cursor are final
//
// Each surviving item moves at most once, so the op count never exceeds
// removed + inserted + |current ∩ target|.
//
// Duplicate keys in either input are an invariant violation.
func Reconcile[T any](current []T, target []string, keyOf func(T) string, src Source[T]) (*Result[T], error) {
	if err := checkUnique("current", current, keyOf); err != nil {
		return nil, err
	}
	if err := checkUnique("target", target, func(k string) string { return k }); err != nil {
		return nil, err
	}

	targetPos := make(map[string]int, len(target))
	for i, k := range target {
		targetPos[k] = i
	}

	res := &Result[T]{Items: slices.Clone(current)}

	// 1. Remove, back to front so earlier indices stay valid.
	for i := len(res.Items) - 1; i >= 0; i-- {
		k := keyOf(res.Items[i])
		if _, keep := targetPos[k]; keep {
			continue
		}
		res.Ops = append(res.Ops, Op{Kind: OpRemove, Key: k, Index: i})
		res.Items = slices.Delete(res.Items, i, i+1)
	}

	present := make(map[string]bool, len(res.Items))
	for _, item := range res.Items {
		present[keyOf(item)] = true
	}

	// 2. Insert new items in target order.
	for t, k := range target {
		if present[k] {
			continue
		}
		item, ok := src.Item(k)
		if !ok {
			return nil, model.NewInvariantError("no source item for key %q", k)
		}
		at := len(res.Items)
		for p, existing := range res.Items {
			if targetPos[keyOf(existing)] > t {
				at = p
				break
			}
		}
		res.Ops = append(res.Ops, Op{Kind: OpInsert, Key: k, Index: at})
		res.Items = slices.Insert(res.Items, at, item)
		present[k] = true
	}

	// 3. Move into target order.
	pos := positions(res.Items, keyOf)
	for i, k := range target {
		if keyOf(res.Items[i]) == k {
			continue
		}
		from := pos[k]
		item := res.Items[from]
		res.Items = slices.Delete(res.Items, from, from+1)
		res.Items = slices.Insert(res.Items, i, item)
		res.Ops = append(res.Ops, Op{Kind: OpMove, Key: k, Index: i, From: from})
		pos = positions(res.Items, keyOf)
	}

	return res, nil
}

// Keys reconciles plain key sequences, sourcing new items from target.
func Keys(current, target []string) (*Result[string], error) {
	identity := func(k string) string { return k }
	return Reconcile(current, target, identity, SourceFunc[string](func(k string) (string, bool) {
		return k, true
	}))
}

// Replay applies ops to a key sequence and returns the result. It checks
// every op against the sequence and fails on the first mismatch.
func Replay(keys []string, ops []Op) ([]string, error) {
	out := slices.Clone(keys)
	for n, op := range ops {
		switch op.Kind {
		case OpRemove:
			if op.Index < 0 || op.Index >= len(out) || out[op.Index] != op.Key {
				return nil, fmt.Errorf("op %d (%s): no %q at %d", n, op, op.Key, op.Index)
			}
			out = slices.Delete(out, op.Index, op.Index+1)
		case OpInsert:
			if op.Index < 0 || op.Index > len(out) {
				return nil, fmt.Errorf("op %d (%s): index out of range", n, op)
			}
			out = slices.Insert(out, op.Index, op.Key)
		case OpMove:
			if op.From < 0 || op.From >= len(out) || out[op.From] != op.Key {
				return nil, fmt.Errorf("op %d (%s): no %q at %d", n, op, op.Key, op.From)
			}
			out = slices.Delete(out, op.From, op.From+1)
			if op.Index < 0 || op.Index > len(out) {
				return nil, fmt.Errorf("op %d (%s): index out of range", n, op)
			}
			out = slices.Insert(out, op.Index, op.Key)
		default:
			return nil, fmt.Errorf("op %d: unknown kind %q", n, op.Kind)
		}
	}
	return out, nil
}

// Surface is a concrete list that ops can be applied to.
type Surface[T any] interface {
	Remove(item T, index int) error
	Insert(item T, before int) error
	MoveBefore(item T, from, before int) error
}

// Apply replays a result's ops onto a surface. current must be the same
// sequence the result was computed from.
func Apply[T any](s Surface[T], current []T, res *Result[T], keyOf func(T) string, src Source[T]) error {
	byKey := make(map[string]T, len(current)+len(res.Items))
	for _, item := range current {
		byKey[keyOf(item)] = item
	}
	for _, item := range res.Items {
		byKey[keyOf(item)] = item
	}

	for n, op := range res.Ops {
		item, ok := byKey[op.Key]
		if !ok && op.Kind == OpInsert {
			item, ok = src.Item(op.Key)
		}
		if !ok {
			return fmt.Errorf("op %d (%s): unknown item", n, op)
		}

		var err error
		switch op.Kind {
		case OpRemove:
			err = s.Remove(item, op.Index)
		case OpInsert:
			err = s.Insert(item, op.Index)
		case OpMove:
			err = s.MoveBefore(item, op.From, op.Index)
		}
		if err != nil {
			return fmt.Errorf("op %d (%s): %w", n, op, err)
		}
	}
	return nil
}

func positions[T any](items []T, keyOf func(T) string) map[string]int {
	pos := make(map[string]int, len(items))
	for i, item := range items {
		pos[keyOf(item)] = i
	}
	return pos
}

func checkUnique[T any](label string, items []T, keyOf func(T) string) error {
	seen := make(map[string]int, len(items))
	for i, item := range items {
		k := keyOf(item)
		if prev, dup := seen[k]; dup {
			return model.NewInvariantError("duplicate key %q in %s at %d and %d", k, label, prev, i)
		}
		seen[k] = i
	}
	return nil
}
