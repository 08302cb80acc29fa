// Package store provides the document store the playout core persists into:
// one generic collection per entity with Mongo-like query semantics on top of
// gorm.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// NewID returns a new unique document id.
func NewID() string {
	return cuid.New()
}

// Collection gives access to the documents of one table.
type Collection[T any] struct {
	db *gorm.DB
}

// NewCollection creates a collection backed by db.
func NewCollection[T any](db *gorm.DB) *Collection[T] {
	return &Collection[T]{db: db}
}

// Find returns all documents matching q.
func (c *Collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	var docs []T
	result := q.apply(c.db.WithContext(ctx).Model(new(T))).Find(&docs)
	if result.Error != nil {
		return nil, fmt.Errorf("find %T: %w", *new(T), result.Error)
	}
	return docs, nil
}

// FindOne returns the first document matching q, or nil when there is none.
func (c *Collection[T]) FindOne(ctx context.Context, q Query) (*T, error) {
	var doc T
	q.Limit = 1
	result := q.apply(c.db.WithContext(ctx).Model(new(T))).Take(&doc)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &doc, nil
}

// FindByID returns a document by id, or nil when it does not exist.
func (c *Collection[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return c.FindOne(ctx, Where(Eq("id", id)))
}

// Count returns the number of documents matching q.
func (c *Collection[T]) Count(ctx context.Context, q Query) (int64, error) {
	var count int64
	q.Sort, q.Limit, q.Skip, q.Fields = nil, 0, 0, nil
	result := q.apply(c.db.WithContext(ctx).Model(new(T))).Count(&count)
	return count, result.Error
}

// Insert creates new documents.
func (c *Collection[T]) Insert(ctx context.Context, docs ...*T) error {
	if len(docs) == 0 {
		return nil
	}
	return c.db.WithContext(ctx).Create(docs).Error
}

// Save inserts or fully replaces documents by primary key.
func (c *Collection[T]) Save(ctx context.Context, docs ...*T) error {
	if len(docs) == 0 {
		return nil
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(docs).Error
}

// Update sets scalar columns on every document matching q ($set).
func (c *Collection[T]) Update(ctx context.Context, q Query, set map[string]any) (int64, error) {
	if len(q.Conds) == 0 {
		return 0, fmt.Errorf("update %T: refusing to update without a selector", *new(T))
	}
	result := q.apply(c.db.WithContext(ctx).Model(new(T))).Updates(set)
	return result.RowsAffected, result.Error
}

// Remove deletes every document matching q.
func (c *Collection[T]) Remove(ctx context.Context, q Query) (int64, error) {
	if len(q.Conds) == 0 {
		return 0, fmt.Errorf("remove %T: refusing to remove without a selector", *new(T))
	}
	result := q.apply(c.db.WithContext(ctx)).Delete(new(T))
	return result.RowsAffected, result.Error
}

// Store groups the collections of every entity.
type Store struct {
	db *gorm.DB

	Studios           *Collection[models.Studio]
	ShowStyleBases    *Collection[models.ShowStyleBase]
	ShowStyleVariants *Collection[models.ShowStyleVariant]
	Playlists         *Collection[models.RundownPlaylist]
	Rundowns          *Collection[models.Rundown]
	Segments          *Collection[models.Segment]
	Parts             *Collection[models.Part]
	Pieces            *Collection[models.Piece]
	PartInstances     *Collection[models.PartInstance]
	PieceInstances    *Collection[models.PieceInstance]
	Timelines         *Collection[models.Timeline]
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{
		db:                db,
		Studios:           NewCollection[models.Studio](db),
		ShowStyleBases:    NewCollection[models.ShowStyleBase](db),
		ShowStyleVariants: NewCollection[models.ShowStyleVariant](db),
		Playlists:         NewCollection[models.RundownPlaylist](db),
		Rundowns:          NewCollection[models.Rundown](db),
		Segments:          NewCollection[models.Segment](db),
		Parts:             NewCollection[models.Part](db),
		Pieces:            NewCollection[models.Piece](db),
		PartInstances:     NewCollection[models.PartInstance](db),
		PieceInstances:    NewCollection[models.PieceInstance](db),
		Timelines:         NewCollection[models.Timeline](db),
	}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single database transaction.
// Nothing fn writes is visible unless it returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
