package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// Collection is the in-memory working copy of one collection. Returned
// documents are copies; changes must go through Insert, Update or Remove so
// that they are written on flush.
type Collection[T any, ID ~string] struct {
	name    string
	idOf    func(*T) ID
	docs    map[ID]*T
	dirty   map[ID]struct{}
	removed map[ID]struct{}
}

func newCollection[T any, ID ~string](name string, idOf func(*T) ID) *Collection[T, ID] {
	return &Collection[T, ID]{
		name:    name,
		idOf:    idOf,
		docs:    make(map[ID]*T),
		dirty:   make(map[ID]struct{}),
		removed: make(map[ID]struct{}),
	}
}

func (c *Collection[T, ID]) load(docs []T) {
	for i := range docs {
		doc := docs[i]
		c.docs[c.idOf(&doc)] = &doc
	}
}

// Name returns the collection name.
func (c *Collection[T, ID]) Name() string {
	return c.name
}

// FindOne returns a document by id.
func (c *Collection[T, ID]) FindOne(id ID) (T, bool) {
	doc, ok := c.docs[id]
	if !ok {
		var zero T
		return zero, false
	}
	return *doc, true
}

// Find returns all documents for which match returns true, ordered by id.
// A nil match returns everything.
func (c *Collection[T, ID]) Find(match func(*T) bool) []T {
	ids := make([]ID, 0, len(c.docs))
	for id, doc := range c.docs {
		if match == nil || match(doc) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = *c.docs[id]
	}
	return out
}

// Insert adds a new document. Inserting an id that is present fails.
func (c *Collection[T, ID]) Insert(doc T) error {
	id := c.idOf(&doc)
	if id == "" {
		return fmt.Errorf("%s: cannot insert document without id", c.name)
	}
	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("%s: document %q already exists", c.name, id)
	}
	c.docs[id] = &doc
	c.dirty[id] = struct{}{}
	delete(c.removed, id)
	return nil
}

// Upsert inserts doc or replaces the document with the same id.
func (c *Collection[T, ID]) Upsert(doc T) {
	id := c.idOf(&doc)
	c.docs[id] = &doc
	c.dirty[id] = struct{}{}
	delete(c.removed, id)
}

// Update applies mutate to a document. It returns false when the id is unknown.
func (c *Collection[T, ID]) Update(id ID, mutate func(*T)) bool {
	doc, ok := c.docs[id]
	if !ok {
		return false
	}
	mutate(doc)
	if c.idOf(doc) != id {
		panic(fmt.Sprintf("cache %s: update changed the id of %q", c.name, id))
	}
	c.dirty[id] = struct{}{}
	return true
}

// UpdateAll applies mutate to every matching document and returns the count.
func (c *Collection[T, ID]) UpdateAll(match func(*T) bool, mutate func(*T)) int {
	n := 0
	for _, doc := range c.Find(match) {
		if c.Update(c.idOf(&doc), mutate) {
			n++
		}
	}
	return n
}

// Remove deletes a document. It returns false when the id is unknown.
func (c *Collection[T, ID]) Remove(id ID) bool {
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	delete(c.dirty, id)
	c.removed[id] = struct{}{}
	return true
}

// RemoveAll deletes every matching document and returns the count.
func (c *Collection[T, ID]) RemoveAll(match func(*T) bool) int {
	n := 0
	for _, doc := range c.Find(match) {
		if c.Remove(c.idOf(&doc)) {
			n++
		}
	}
	return n
}

// IsModified reports whether anything would be written on flush.
func (c *Collection[T, ID]) IsModified() bool {
	return len(c.dirty) > 0 || len(c.removed) > 0
}

func (c *Collection[T, ID]) save(ctx context.Context, target *store.Collection[T]) error {
	if len(c.removed) > 0 {
		ids := make([]ID, 0, len(c.removed))
		for id := range c.removed {
			ids = append(ids, id)
		}
		if _, err := target.Remove(ctx, store.Where(store.In("id", ids))); err != nil {
			return fmt.Errorf("%s: remove: %w", c.name, err)
		}
	}
	if len(c.dirty) > 0 {
		docs := make([]*T, 0, len(c.dirty))
		for id := range c.dirty {
			docs = append(docs, c.docs[id])
		}
		sort.Slice(docs, func(i, j int) bool { return c.idOf(docs[i]) < c.idOf(docs[j]) })
		if err := target.Save(ctx, docs...); err != nil {
			return fmt.Errorf("%s: save: %w", c.name, err)
		}
	}
	return nil
}

func (c *Collection[T, ID]) markClean() {
	c.dirty = make(map[ID]struct{})
	c.removed = make(map[ID]struct{})
}
