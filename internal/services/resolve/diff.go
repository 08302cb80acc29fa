package resolve

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Changes describes how to turn a stored set of documents into an incoming one.
type Changes[T any, ID comparable] struct {
	Added     []T
	Updated   []T
	Removed   []ID
	Unchanged []ID
}

// Empty reports whether nothing needs to be written.
func (c Changes[T, ID]) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// PrepareSaveIntoDb diffs existing against incoming by id. Documents equal
// under opts (empty and nil collections are equal) are left untouched.
// Removed ids are reported in the order of existing.
func PrepareSaveIntoDb[T any, ID comparable](existing, incoming []T, idOf func(T) ID, opts ...cmp.Option) Changes[T, ID] {
	opts = append([]cmp.Option{cmpopts.EquateEmpty()}, opts...)

	old := make(map[ID]T, len(existing))
	for _, doc := range existing {
		old[idOf(doc)] = doc
	}

	var changes Changes[T, ID]
	seen := make(map[ID]struct{}, len(incoming))
	for _, doc := range incoming {
		id := idOf(doc)
		seen[id] = struct{}{}
		prev, ok := old[id]
		switch {
		case !ok:
			changes.Added = append(changes.Added, doc)
		case cmp.Equal(prev, doc, opts...):
			changes.Unchanged = append(changes.Unchanged, id)
		default:
			changes.Updated = append(changes.Updated, doc)
		}
	}
	for _, doc := range existing {
		id := idOf(doc)
		if _, ok := seen[id]; !ok {
			changes.Removed = append(changes.Removed, id)
		}
	}
	return changes
}
