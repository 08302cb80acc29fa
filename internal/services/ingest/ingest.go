// Package ingest merges rundowns from the newsroom system into the store.
// Changes are applied as playlist operations at ingest priority, so that
// they queue behind user actions on the same playlist and keep the next
// part instance in line with the new data.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/metrics"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
	"github.com/bbernstein/sofie-playout-go/internal/services/resolve"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// Result reports what an ingest operation did.
type Result struct {
	RundownID  models.RundownID  `json:"rundownId"`
	PlaylistID models.PlaylistID `json:"playlistId"`
	// Changes counts the documents added, updated or removed.
	Changes int `json:"changes"`
	// Unsynced is set when the change was withheld because it would remove
	// the part on air.
	Unsynced        bool `json:"unsynced,omitempty"`
	PlaylistRemoved bool `json:"playlistRemoved,omitempty"`
}

// Options configure a Service.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Service applies ingest operations through the playout service.
type Service struct {
	playout *playout.Service
	store   *store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates an ingest service sharing the store and locks of p.
func NewService(p *playout.Service, opts Options) *Service {
	s := &Service{
		playout: p,
		store:   p.Store(),
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// UpdateRundown creates or updates a rundown. Only documents that differ
// from the stored ones are written. A change that would remove the part on
// air is withheld and the rundown is marked unsynced; further updates are
// rejected until it is resynced.
func (s *Service) UpdateRundown(ctx context.Context, in Rundown) (Result, error) {
	res, err := s.apply(ctx, "updateRundown", in, false)
	s.observe("update_rundown", res, err)
	return res, err
}

// ResyncRundown applies a full rundown and clears the unsynced flag. A part
// on air that is no longer in the rundown keeps playing as an orphaned
// part instance.
func (s *Service) ResyncRundown(ctx context.Context, in Rundown) (Result, error) {
	res, err := s.apply(ctx, "resyncRundown", in, true)
	s.observe("resync_rundown", res, err)
	return res, err
}

func (s *Service) apply(ctx context.Context, action string, in Rundown, force bool) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	rundownID := in.ID()

	existing, err := s.store.Rundowns.FindByID(ctx, string(rundownID))
	if err != nil {
		return Result{}, fmt.Errorf("load rundown: %w", err)
	}
	playlistID := in.PlaylistID()
	if existing != nil {
		playlistID = existing.PlaylistID
	} else if err := s.ensurePlaylist(ctx, playlistID, in); err != nil {
		return Result{}, err
	}

	res := Result{RundownID: rundownID, PlaylistID: playlistID}
	err = s.playout.RunPlaylist(ctx, "ingest."+action, playlistID, lock.PriorityIngest, func(ctx context.Context, c *cache.Cache) error {
		return s.merge(c, in, force, &res)
	})
	return res, err
}

// ensurePlaylist creates the playlist a new rundown goes into.
func (s *Service) ensurePlaylist(ctx context.Context, id models.PlaylistID, in Rundown) error {
	return s.playout.Locks().Run(ctx, lock.PriorityIngest, func(ctx context.Context) error {
		p, err := s.store.Playlists.FindByID(ctx, string(id))
		if err != nil {
			return fmt.Errorf("load playlist: %w", err)
		}
		if p != nil {
			return nil
		}
		name := in.PlaylistExternalID
		if name == "" {
			name = in.Name
		}
		s.log.Info("creating rundown playlist", "playlist_id", id, "studio_id", in.StudioID)
		return s.store.Playlists.Insert(ctx, &models.RundownPlaylist{
			ID:         id,
			ExternalID: in.playlistExternalID(),
			StudioID:   in.StudioID,
			Name:       name,
		})
	}, lock.PlaylistKey(string(id)))
}

var rundownEqual = []cmp.Option{cmpopts.IgnoreFields(models.Rundown{}, "CreatedAt", "UpdatedAt")}

func (s *Service) merge(c *cache.Cache, in Rundown, force bool, res *Result) error {
	rundownID := in.ID()
	prev, exists := c.Rundowns.FindOne(rundownID)
	if exists && prev.Unsynced && !force {
		return playout.Rejectf(playout.ErrRundownUnsynced, "Rundown %s is unsynced", rundownID)
	}

	rank := nextRundownRank(c)
	if in.Rank != nil {
		rank = *in.Rank
	} else if exists {
		rank = prev.Rank
	}
	docs := in.toDocuments(c.PlaylistID, rank)
	c.Logger().Debug("merging rundown", "documents", docs.String())

	if cur, ok := c.CurrentPartInstance(); ok && !force && cur.RundownID == rundownID && !docs.hasPart(cur.PartID) {
		now := s.now().UnixMilli()
		c.Rundowns.Update(rundownID, func(rd *models.Rundown) {
			rd.Unsynced = true
			rd.UnsyncedTime = &now
		})
		res.Unsynced = true
		c.Logger().Warn("ingest would remove the part on air, rundown is now unsynced", "rundown_id", rundownID, "part_id", cur.PartID)
		return nil
	}

	rd := docs.Rundown
	if exists {
		rd.NotifiedCurrentPlayingPartExternalID = prev.NotifiedCurrentPlayingPartExternalID
		rd.CreatedAt = prev.CreatedAt
		rd.UpdatedAt = prev.UpdatedAt
	}
	if !exists || !cmp.Equal(prev, rd, rundownEqual...) {
		c.Rundowns.Upsert(rd)
		res.Changes++
	}

	// playback history is not part of the payload
	for i := range docs.Parts {
		if old, ok := c.Parts.FindOne(docs.Parts[i].ID); ok {
			docs.Parts[i].Timings = old.Timings
		}
	}

	ofRundown := func(id models.RundownID) bool { return id == rundownID }
	res.Changes += saveInto(c.Segments,
		c.Segments.Find(func(d *models.Segment) bool { return ofRundown(d.RundownID) }),
		docs.Segments, func(d models.Segment) models.SegmentID { return d.ID })
	res.Changes += saveInto(c.Parts,
		c.Parts.Find(func(d *models.Part) bool { return ofRundown(d.RundownID) }),
		docs.Parts, func(d models.Part) models.PartID { return d.ID })
	res.Changes += saveInto(c.Pieces,
		c.Pieces.Find(func(d *models.Piece) bool { return ofRundown(d.RundownID) }),
		docs.Pieces, func(d models.Piece) models.PieceID { return d.ID })

	if res.Changes == 0 {
		return nil
	}
	return s.playout.SyncIngestChanges(c)
}

// saveInto writes the difference between existing and incoming into col and
// returns the number of documents touched.
func saveInto[T any, ID ~string](col *cache.Collection[T, ID], existing, incoming []T, idOf func(T) ID) int {
	changes := resolve.PrepareSaveIntoDb(existing, incoming, idOf)
	for _, doc := range changes.Added {
		col.Upsert(doc)
	}
	for _, doc := range changes.Updated {
		col.Upsert(doc)
	}
	for _, id := range changes.Removed {
		col.Remove(id)
	}
	return len(changes.Added) + len(changes.Updated) + len(changes.Removed)
}

func nextRundownRank(c *cache.Cache) float64 {
	rundowns := c.OrderedRundowns()
	if len(rundowns) == 0 {
		return 0
	}
	return rundowns[len(rundowns)-1].Rank + 1
}

// RemoveRundown deletes a rundown with its segments, parts and pieces. A
// rundown that is on air, or the last rundown of an active playlist, is
// marked unsynced instead. The playlist is removed with its last rundown.
func (s *Service) RemoveRundown(ctx context.Context, rundownID models.RundownID) (Result, error) {
	res, err := s.remove(ctx, rundownID)
	s.observe("remove_rundown", res, err)
	return res, err
}

func (s *Service) remove(ctx context.Context, rundownID models.RundownID) (Result, error) {
	rd, err := s.store.Rundowns.FindByID(ctx, string(rundownID))
	if err != nil {
		return Result{}, fmt.Errorf("load rundown: %w", err)
	}
	if rd == nil {
		return Result{}, playout.Rejectf(playout.ErrNotFound, "Rundown %s not found", rundownID)
	}
	res := Result{RundownID: rundownID, PlaylistID: rd.PlaylistID}

	err = s.playout.RunPlaylist(ctx, "ingest.removeRundown", rd.PlaylistID, lock.PriorityIngest, func(ctx context.Context, c *cache.Cache) error {
		p := c.Playlist()
		last := len(c.Rundowns.Find(nil)) == 1
		cur, onAir := c.CurrentPartInstance()
		if p.Active && (last || (onAir && cur.RundownID == rundownID)) {
			now := s.now().UnixMilli()
			c.Rundowns.Update(rundownID, func(rd *models.Rundown) {
				rd.Unsynced = true
				rd.UnsyncedTime = &now
			})
			res.Unsynced = true
			c.Logger().Warn("rundown in use by active playlist, marked unsynced instead of removed", "rundown_id", rundownID)
			return nil
		}

		res.Changes += c.Pieces.RemoveAll(func(d *models.Piece) bool { return d.RundownID == rundownID })
		res.Changes += c.Parts.RemoveAll(func(d *models.Part) bool { return d.RundownID == rundownID })
		res.Changes += c.Segments.RemoveAll(func(d *models.Segment) bool { return d.RundownID == rundownID })
		c.Rundowns.Remove(rundownID)
		res.Changes++

		if last {
			c.Playlists.Remove(c.PlaylistID)
			res.PlaylistRemoved = true
			c.InFlush(func(ctx context.Context, tx *store.Store) error {
				return removeInstances(ctx, tx, c.PlaylistID)
			})
			return nil
		}
		return s.playout.SyncIngestChanges(c)
	})
	return res, err
}

// removeInstances drops every part and piece instance of a removed playlist,
// reset ones included.
func removeInstances(ctx context.Context, tx *store.Store, playlistID models.PlaylistID) error {
	instances, err := tx.PartInstances.Find(ctx, store.Where(store.Eq("playlist_id", string(playlistID))).Select("id"))
	if err != nil {
		return fmt.Errorf("find instances: %w", err)
	}
	ids := make([]models.PartInstanceID, len(instances))
	for i, pi := range instances {
		ids[i] = pi.ID
	}
	if len(ids) > 0 {
		if _, err := tx.PieceInstances.Remove(ctx, store.Where(store.In("part_instance_id", ids))); err != nil {
			return fmt.Errorf("remove piece instances: %w", err)
		}
	}
	if _, err := tx.PartInstances.Remove(ctx, store.Where(store.Eq("playlist_id", string(playlistID)))); err != nil {
		return fmt.Errorf("remove part instances: %w", err)
	}
	return nil
}

func (s *Service) observe(operation string, res Result, err error) {
	outcome := "applied"
	switch {
	case err != nil:
		outcome = "failed"
	case res.Unsynced:
		outcome = "unsynced"
	case res.Changes == 0:
		outcome = "unchanged"
	}
	s.metrics.IncIngest(operation, outcome)
	if err == nil {
		s.log.Info("ingest operation", "operation", operation, "outcome", outcome,
			"rundown_id", res.RundownID, "playlist_id", res.PlaylistID, "changes", res.Changes)
	}
}
