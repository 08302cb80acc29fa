// Package cache implements the unit of work every playlist operation runs in:
// a snapshot of the documents of one playlist, mutated in memory and written
// back to the store in a single transaction.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

var (
	// ErrPlaylistNotFound is returned when the playlist to load does not exist.
	ErrPlaylistNotFound = errors.New("rundown playlist not found")
	// ErrDanglingReference is returned by a flush that would leave a pointer to
	// a missing instance.
	ErrDanglingReference = errors.New("dangling reference")
)

// Cache is the working set of one rundown playlist.
type Cache struct {
	store *store.Store
	log   *slog.Logger

	PlaylistID models.PlaylistID
	// Studio and show styles are configuration and read-only here.
	Studio         models.Studio
	ShowStyleBases map[models.ShowStyleBaseID]models.ShowStyleBase

	Playlists      *Collection[models.RundownPlaylist, models.PlaylistID]
	Rundowns       *Collection[models.Rundown, models.RundownID]
	Segments       *Collection[models.Segment, models.SegmentID]
	Parts          *Collection[models.Part, models.PartID]
	Pieces         *Collection[models.Piece, models.PieceID]
	PartInstances  *Collection[models.PartInstance, models.PartInstanceID]
	PieceInstances *Collection[models.PieceInstance, models.PieceInstanceID]
	Timelines      *Collection[models.Timeline, models.StudioID]

	deferred []func(ctx context.Context)
	inFlush  []func(ctx context.Context, tx *store.Store) error
}

func newEmpty(st *store.Store, log *slog.Logger, playlistID models.PlaylistID) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		store:          st,
		log:            log,
		PlaylistID:     playlistID,
		ShowStyleBases: make(map[models.ShowStyleBaseID]models.ShowStyleBase),
		Playlists:      newCollection("rundown_playlists", func(d *models.RundownPlaylist) models.PlaylistID { return d.ID }),
		Rundowns:       newCollection("rundowns", func(d *models.Rundown) models.RundownID { return d.ID }),
		Segments:       newCollection("segments", func(d *models.Segment) models.SegmentID { return d.ID }),
		Parts:          newCollection("parts", func(d *models.Part) models.PartID { return d.ID }),
		Pieces:         newCollection("pieces", func(d *models.Piece) models.PieceID { return d.ID }),
		PartInstances:  newCollection("part_instances", func(d *models.PartInstance) models.PartInstanceID { return d.ID }),
		PieceInstances: newCollection("piece_instances", func(d *models.PieceInstance) models.PieceInstanceID { return d.ID }),
		Timelines:      newCollection("timelines", func(d *models.Timeline) models.StudioID { return d.ID }),
	}
}

// Init loads the snapshot of a playlist: its rundowns with their segments,
// parts and pieces, the non-reset part instances with their piece instances,
// the studio, the show styles in use and the studio timeline.
func Init(ctx context.Context, st *store.Store, log *slog.Logger, playlistID models.PlaylistID) (*Cache, error) {
	c := newEmpty(st, log, playlistID)

	playlist, err := st.Playlists.FindByID(ctx, string(playlistID))
	if err != nil {
		return nil, fmt.Errorf("load playlist: %w", err)
	}
	if playlist == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, playlistID)
	}
	c.Playlists.load([]models.RundownPlaylist{*playlist})

	studio, err := st.Studios.FindByID(ctx, string(playlist.StudioID))
	if err != nil {
		return nil, fmt.Errorf("load studio: %w", err)
	}
	if studio != nil {
		c.Studio = *studio
	} else {
		c.Studio = models.Studio{ID: playlist.StudioID}
	}

	rundowns, err := st.Rundowns.Find(ctx, store.Where(store.Eq("playlist_id", string(playlistID))))
	if err != nil {
		return nil, err
	}
	c.Rundowns.load(rundowns)

	rundownIDs := make([]models.RundownID, len(rundowns))
	showStyleIDs := make([]models.ShowStyleBaseID, 0, len(rundowns))
	for i, rd := range rundowns {
		rundownIDs[i] = rd.ID
		showStyleIDs = append(showStyleIDs, rd.ShowStyleBaseID)
	}
	byRundown := store.Where(store.In("rundown_id", rundownIDs))

	segments, err := st.Segments.Find(ctx, byRundown)
	if err != nil {
		return nil, err
	}
	c.Segments.load(segments)

	parts, err := st.Parts.Find(ctx, byRundown)
	if err != nil {
		return nil, err
	}
	c.Parts.load(parts)

	pieces, err := st.Pieces.Find(ctx, byRundown)
	if err != nil {
		return nil, err
	}
	c.Pieces.load(pieces)

	partInstances, err := st.PartInstances.Find(ctx, store.Where(
		store.Eq("playlist_id", string(playlistID)),
		store.Eq("reset", false),
	))
	if err != nil {
		return nil, err
	}
	c.PartInstances.load(partInstances)

	instanceIDs := make([]models.PartInstanceID, len(partInstances))
	for i, pi := range partInstances {
		instanceIDs[i] = pi.ID
	}
	pieceInstances, err := st.PieceInstances.Find(ctx, store.Where(store.In("part_instance_id", instanceIDs)))
	if err != nil {
		return nil, err
	}
	c.PieceInstances.load(pieceInstances)

	showStyles, err := st.ShowStyleBases.Find(ctx, store.Where(store.In("id", showStyleIDs)))
	if err != nil {
		return nil, err
	}
	for _, ss := range showStyles {
		c.ShowStyleBases[ss.ID] = ss
	}

	timeline, err := st.Timelines.FindByID(ctx, string(playlist.StudioID))
	if err != nil {
		return nil, err
	}
	if timeline != nil {
		c.Timelines.load([]models.Timeline{*timeline})
	}

	return c, nil
}

// Playlist returns the current state of the cached playlist.
func (c *Cache) Playlist() models.RundownPlaylist {
	p, _ := c.Playlists.FindOne(c.PlaylistID)
	return p
}

// UpdatePlaylist mutates the cached playlist.
func (c *Cache) UpdatePlaylist(mutate func(p *models.RundownPlaylist)) {
	c.Playlists.Update(c.PlaylistID, mutate)
}

// Store returns the backing store for reads outside the snapshot.
func (c *Cache) Store() *store.Store {
	return c.store
}

// Logger returns the operation logger.
func (c *Cache) Logger() *slog.Logger {
	return c.log
}

// Defer schedules fn to run after a successful flush.
func (c *Cache) Defer(fn func(ctx context.Context)) {
	c.deferred = append(c.deferred, fn)
}

// InFlush schedules fn to run inside the flush transaction, after the
// collections are written. An error rolls the whole flush back.
func (c *Cache) InFlush(fn func(ctx context.Context, tx *store.Store) error) {
	c.inFlush = append(c.inFlush, fn)
}

// IsModified reports whether a flush would write anything.
func (c *Cache) IsModified() bool {
	return c.Playlists.IsModified() || c.Rundowns.IsModified() || c.Segments.IsModified() ||
		c.Parts.IsModified() || c.Pieces.IsModified() || c.PartInstances.IsModified() ||
		c.PieceInstances.IsModified() || c.Timelines.IsModified()
}

// SaveAllToDatabase writes every modified collection in one transaction and
// then runs the deferred functions. If the write fails nothing is committed
// and the deferred functions are dropped.
func (c *Cache) SaveAllToDatabase(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}

	if c.IsModified() || len(c.inFlush) > 0 {
		err := c.store.Transaction(ctx, func(tx *store.Store) error {
			steps := []func() error{
				func() error { return c.Playlists.save(ctx, tx.Playlists) },
				func() error { return c.Rundowns.save(ctx, tx.Rundowns) },
				func() error { return c.Segments.save(ctx, tx.Segments) },
				func() error { return c.Parts.save(ctx, tx.Parts) },
				func() error { return c.Pieces.save(ctx, tx.Pieces) },
				func() error { return c.PartInstances.save(ctx, tx.PartInstances) },
				func() error { return c.PieceInstances.save(ctx, tx.PieceInstances) },
				func() error { return c.Timelines.save(ctx, tx.Timelines) },
			}
			for _, step := range steps {
				if err := step(); err != nil {
					return err
				}
			}
			for _, fn := range c.inFlush {
				if err := fn(ctx, tx); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("flush playlist %s: %w", c.PlaylistID, err)
		}
		c.markClean()
		c.inFlush = nil
	}

	deferred := c.deferred
	c.deferred = nil
	for _, fn := range deferred {
		fn(ctx)
	}
	return nil
}

func (c *Cache) markClean() {
	c.Playlists.markClean()
	c.Rundowns.markClean()
	c.Segments.markClean()
	c.Parts.markClean()
	c.Pieces.markClean()
	c.PartInstances.markClean()
	c.PieceInstances.markClean()
	c.Timelines.markClean()
}

// validate refuses to flush pointers to part instances that are not present.
func (c *Cache) validate() error {
	playlist, ok := c.Playlists.FindOne(c.PlaylistID)
	if !ok {
		// the playlist itself is being removed
		return nil
	}
	for name, id := range map[string]models.PartInstanceID{
		"current":  playlist.CurrentPartInstanceID,
		"next":     playlist.NextPartInstanceID,
		"previous": playlist.PreviousPartInstanceID,
	} {
		if id == "" {
			continue
		}
		if _, ok := c.PartInstances.FindOne(id); !ok {
			return fmt.Errorf("%w: %s part instance %s of playlist %s", ErrDanglingReference, name, id, c.PlaylistID)
		}
	}
	for id := range c.PieceInstances.dirty {
		pi := c.PieceInstances.docs[id]
		if _, ok := c.PartInstances.FindOne(pi.PartInstanceID); !ok {
			return fmt.Errorf("%w: piece instance %s of part instance %s", ErrDanglingReference, id, pi.PartInstanceID)
		}
	}
	return nil
}
