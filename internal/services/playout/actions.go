package playout

import (
	"context"
	"fmt"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

func requireActive(c *cache.Cache) error {
	if p := c.Playlist(); !p.Active {
		return reject(ErrPlaylistNotActive, "Rundown playlist %s is not active", p.ID)
	}
	return nil
}

func requireNoHold(c *cache.Cache) error {
	if p := c.Playlist(); p.HoldState.InProgress() {
		return reject(ErrHoldInProgress, "Rundown playlist %s has a hold in progress", p.ID)
	}
	return nil
}

// Activate makes a playlist active, in rehearsal or live. Only one playlist
// per studio can be active. When nothing is next, the first playable part
// is set as next.
func (s *Service) Activate(ctx context.Context, playlistID models.PlaylistID, rehearsal bool) error {
	existing, err := s.store.Playlists.FindByID(ctx, string(playlistID))
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}
	var keys []string
	if existing != nil {
		keys = append(keys, lock.StudioKey(string(existing.StudioID)))
	}

	return s.RunPlaylist(ctx, "activate", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		p := c.Playlist()
		others, err := s.store.Playlists.Find(ctx, store.Where(
			store.Eq("studio_id", string(p.StudioID)),
			store.Eq("active", true),
			store.Ne("id", string(p.ID)),
		))
		if err != nil {
			return err
		}
		if len(others) > 0 {
			return reject(ErrActivePlaylistConflict, "Rundown playlist %s is already active in studio %s", others[0].ID, p.StudioID)
		}

		wasActive := p.Active
		if wasActive && p.Rehearsal == rehearsal {
			return nil
		}
		c.UpdatePlaylist(func(p *models.RundownPlaylist) {
			p.Active = true
			p.Rehearsal = rehearsal
			if !wasActive {
				p.HoldState = models.HoldNone
			}
		})

		if _, ok := c.NextPartInstance(); !ok {
			var from *models.PartInstance
			if cur, ok := c.CurrentPartInstance(); ok {
				from = &cur
			}
			if part, ok := selectNextPart(c, from, p.Loop); ok {
				if err := s.setNextPart(c, &part, false, nil); err != nil {
					return err
				}
			}
		}

		if !wasActive {
			rundownID := firstRundownID(c)
			c.Defer(func(ctx context.Context) {
				s.RefreshActivePlaylists(ctx)
				if rundownID == "" {
					return
				}
				s.runHook(ctx, c, "onRundownActivate", rundownID, func(bp blueprint.ShowStyleBlueprint, bc *blueprint.Context) error {
					return bp.OnRundownActivate(ctx, bc)
				})
			})
		}
		return nil
	}, keys...)
}

// Deactivate takes a playlist off air and clears its part instance pointers.
func (s *Service) Deactivate(ctx context.Context, playlistID models.PlaylistID) error {
	return s.RunPlaylist(ctx, "deactivate", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		now := s.now()
		rundownID := firstRundownID(c)

		if cur, ok := c.CurrentPartInstance(); ok {
			c.PartInstances.Update(cur.ID, func(pi *models.PartInstance) {
				if pi.Timings.TakeOut == nil {
					pi.Timings.TakeOut = &now
				}
				if pi.Timings.StartedPlayback != nil && pi.Timings.StoppedPlayback == nil {
					pi.Timings.StoppedPlayback = &now
				}
			})
		}
		if next, ok := c.NextPartInstance(); ok && next.Timings.Take == nil {
			resetPartInstance(c, next.ID)
		}

		c.UpdatePlaylist(func(p *models.RundownPlaylist) {
			p.Active = false
			p.Rehearsal = false
			p.HoldState = models.HoldNone
			p.CurrentPartInstanceID = ""
			p.NextPartInstanceID = ""
			p.PreviousPartInstanceID = ""
			p.NextPartManual = false
			p.NextTimeOffset = nil
			p.StartedPlayback = nil
		})

		c.Defer(func(ctx context.Context) {
			s.RefreshActivePlaylists(ctx)
			if rundownID == "" {
				return
			}
			s.runHook(ctx, c, "onRundownDeActivate", rundownID, func(bp blueprint.ShowStyleBlueprint, bc *blueprint.Context) error {
				return bp.OnRundownDeActivate(ctx, bc)
			})
		})
		return nil
	})
}

// Reset discards the playback history of a playlist. It is refused while the
// playlist is live; in rehearsal playback starts over from the first part.
func (s *Service) Reset(ctx context.Context, playlistID models.PlaylistID) error {
	return s.RunPlaylist(ctx, "reset", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		p := c.Playlist()
		if p.Active && !p.Rehearsal {
			return reject(ErrPlaylistActive, "Rundown playlist %s is on air and cannot be reset", p.ID)
		}

		for _, pi := range c.PartInstances.Find(nil) {
			resetPartInstance(c, pi.ID)
		}
		c.Rundowns.UpdateAll(
			func(rd *models.Rundown) bool { return rd.NotifiedCurrentPlayingPartExternalID != "" },
			func(rd *models.Rundown) { rd.NotifiedCurrentPlayingPartExternalID = "" },
		)
		c.UpdatePlaylist(func(p *models.RundownPlaylist) {
			p.HoldState = models.HoldNone
			p.CurrentPartInstanceID = ""
			p.NextPartInstanceID = ""
			p.PreviousPartInstanceID = ""
			p.NextPartManual = false
			p.NextTimeOffset = nil
			p.StartedPlayback = nil
			p.LastTakeTime = nil
			p.PreviousPersistentState = nil
		})

		if p.Active {
			if part, ok := selectNextPart(c, nil, p.Loop); ok {
				return s.setNextPart(c, &part, false, nil)
			}
		}
		return nil
	})
}

// SetNext sets the part to take next. An empty partID clears next. A manual
// next is kept when ingest changes the rundown; timeOffset starts the part
// that many milliseconds in.
func (s *Service) SetNext(ctx context.Context, playlistID models.PlaylistID, partID models.PartID, manual bool, timeOffset *int64) error {
	return s.RunPlaylist(ctx, "setNext", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		if err := requireNoHold(c); err != nil {
			return err
		}
		if partID == "" {
			return s.setNextPart(c, nil, false, nil)
		}
		part, ok := c.Parts.FindOne(partID)
		if !ok {
			return reject(ErrNotFound, "Part %s not found in rundown playlist %s", partID, c.PlaylistID)
		}
		if !part.IsPlayable() {
			return reject(ErrPartNotPlayable, "Part %s is not playable", partID)
		}
		return s.setNextPart(c, &part, manual, timeOffset)
	})
}

// MoveNext moves next by horizontal parts or vertical segments, relative to
// the next part or, when there is none, the part on air. It returns the new
// next part.
func (s *Service) MoveNext(ctx context.Context, playlistID models.PlaylistID, horizontal, vertical int) (models.PartID, error) {
	var moved models.PartID
	err := s.RunPlaylist(ctx, "moveNext", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		if err := requireNoHold(c); err != nil {
			return err
		}
		if horizontal == 0 && vertical == 0 {
			return reject(ErrMoveOutOfRange, "Move needs a horizontal or vertical delta")
		}

		current, hasCurrent := c.CurrentPartInstance()
		next, hasNext := c.NextPartInstance()
		var ref, onAir models.PartID
		if hasCurrent {
			ref, onAir = current.PartID, current.PartID
		}
		if hasNext {
			ref = next.PartID
		}
		if ref == "" {
			return reject(ErrNoNextPart, "Rundown playlist %s has no part to move from", c.PlaylistID)
		}

		target, ok := findMoveTarget(c, ref, onAir, horizontal, vertical)
		if !ok {
			return reject(ErrMoveOutOfRange, "There is no part %d parts and %d segments from part %s", horizontal, vertical, ref)
		}
		moved = target.ID
		return s.setNextPart(c, &target, true, nil)
	})
	return moved, err
}

// ActivateHold requests a hold between the part on air and the next part.
// The hold starts with the next take.
func (s *Service) ActivateHold(ctx context.Context, playlistID models.PlaylistID) error {
	return s.RunPlaylist(ctx, "activateHold", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		if err := requireNoHold(c); err != nil {
			return err
		}
		current, ok := c.CurrentPartInstance()
		if !ok {
			return reject(ErrHoldNotAllowed, "Hold needs a part on air")
		}
		next, ok := c.NextPartInstance()
		if !ok {
			return reject(ErrNoNextPart, "Rundown playlist %s has no next part", c.PlaylistID)
		}
		if current.Part.HoldMode != models.PartHoldFrom || next.Part.HoldMode != models.PartHoldTo {
			return reject(ErrHoldNotAllowed, "Hold is not possible from part %s to part %s", current.PartID, next.PartID)
		}
		c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.HoldState = models.HoldPending })
		return nil
	})
}

// DeactivateHold cancels a hold that has not started yet.
func (s *Service) DeactivateHold(ctx context.Context, playlistID models.PlaylistID) error {
	return s.RunPlaylist(ctx, "deactivateHold", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		if c.Playlist().HoldState != models.HoldPending {
			return reject(ErrHoldNotPending, "Rundown playlist %s has no pending hold", c.PlaylistID)
		}
		c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.HoldState = models.HoldNone })
		return nil
	})
}

// DisableNextPiece disables the next upcoming piece on a layer that allows
// it, looking at the rest of the part on air and then at the next part. With
// undo it enables the last disabled piece instead.
func (s *Service) DisableNextPiece(ctx context.Context, playlistID models.PlaylistID, undo bool) error {
	return s.RunPlaylist(ctx, "disableNextPiece", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		now := s.now()
		if current, ok := c.CurrentPartInstance(); ok {
			offset := int64(0)
			if start, ok := partStartedAt(current); ok {
				offset = now - start
			}
			if toggleNextPiece(c, current, offset, undo) {
				return nil
			}
		}
		if next, ok := c.NextPartInstance(); ok && toggleNextPiece(c, next, -1, undo) {
			return nil
		}
		if undo {
			return reject(ErrNothingToDisable, "There is no disabled piece to enable")
		}
		return reject(ErrNothingToDisable, "There is no piece to disable")
	})
}

// toggleNextPiece flips the disabled flag of the first candidate piece that
// starts after offset, or of the last disabled one when undoing.
func toggleNextPiece(c *cache.Cache, pi models.PartInstance, offset int64, undo bool) bool {
	showStyle, _ := c.ShowStyleFor(pi.RundownID)
	var candidates []models.PieceInstance
	for _, piece := range c.PieceInstancesOf(pi.ID) {
		layer, ok := showStyle.SourceLayer(piece.Piece.SourceLayerID)
		if !ok || !layer.AllowDisable || piece.Piece.Virtual {
			continue
		}
		if piece.Infinite != nil && piece.Infinite.FromPrevious {
			continue
		}
		if piece.Piece.Enable.Start <= offset || piece.Disabled != undo {
			continue
		}
		candidates = append(candidates, piece)
	}
	if len(candidates) == 0 {
		return false
	}

	target := candidates[0]
	if undo {
		target = candidates[len(candidates)-1]
	}
	c.PieceInstances.Update(target.ID, func(p *models.PieceInstance) { p.Disabled = !undo })
	return true
}

// SourceLayerOnPartStop ends the pieces playing on the given source layers of
// the part on air, and stops their continuation into the next part.
func (s *Service) SourceLayerOnPartStop(ctx context.Context, playlistID models.PlaylistID, partInstanceID models.PartInstanceID, sourceLayerIDs []string) error {
	return s.RunPlaylist(ctx, "sourceLayerOnPartStop", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		if err := requireActive(c); err != nil {
			return err
		}
		current, ok := c.CurrentPartInstance()
		if !ok || current.ID != partInstanceID {
			return reject(ErrPartNotCurrent, "Part instance %s is not on air", partInstanceID)
		}
		start, ok := partStartedAt(current)
		if !ok {
			return reject(ErrPartNotCurrent, "Part instance %s has not started", partInstanceID)
		}
		offset := s.now() - start

		layers := make(map[string]bool, len(sourceLayerIDs))
		for _, id := range sourceLayerIDs {
			layers[id] = true
		}
		stopped := 0
		for _, pi := range c.PieceInstancesOf(current.ID) {
			if !layers[pi.Piece.SourceLayerID] || pi.Piece.Enable.Start > offset {
				continue
			}
			if end := pi.EndsAt(); end != nil && *end <= offset {
				continue
			}
			c.PieceInstances.Update(pi.ID, func(p *models.PieceInstance) { p.UserDurationEnd = models.Int64Ptr(offset) })
			stopped++
		}
		if stopped == 0 {
			c.Logger().Debug("no playing pieces on layers", "source_layers", sourceLayerIDs)
			return nil
		}
		return s.syncNextInfinites(c)
	})
}

// RefreshActivePlaylists updates the active playlists gauge from the store.
func (s *Service) RefreshActivePlaylists(ctx context.Context) {
	n, err := s.store.Playlists.Count(ctx, store.Where(store.Eq("active", true)))
	if err != nil {
		s.log.Warn("count active playlists", "error", err)
		return
	}
	s.metrics.SetActivePlaylists(int(n))
}
