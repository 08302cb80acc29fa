package playout

import (
	"fmt"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/infinites"
)

// setNextPart points the playlist at a new instance of part, or clears next
// when part is nil. An untaken next instance of a different part is reset;
// one of the same part is kept.
func (s *Service) setNextPart(c *cache.Cache, part *models.Part, manual bool, offset *int64) error {
	if existing, ok := c.NextPartInstance(); ok && existing.Timings.Take == nil {
		if part != nil && existing.PartID == part.ID {
			c.UpdatePlaylist(func(p *models.RundownPlaylist) {
				p.NextPartManual = manual
				p.NextTimeOffset = offset
			})
			return nil
		}
		resetPartInstance(c, existing.ID)
	}

	if part == nil {
		c.UpdatePlaylist(func(p *models.RundownPlaylist) {
			p.NextPartInstanceID = ""
			p.NextPartManual = false
			p.NextTimeOffset = nil
		})
		return nil
	}

	instance, err := s.createPartInstance(c, *part)
	if err != nil {
		return err
	}
	c.UpdatePlaylist(func(p *models.RundownPlaylist) {
		p.NextPartInstanceID = instance.ID
		p.NextPartManual = manual
		p.NextTimeOffset = offset
	})
	return nil
}

// createPartInstance instantiates part with its own pieces and the infinites
// that reach it. Infinites already playing in the current part instance are
// continued from there.
func (s *Service) createPartInstance(c *cache.Cache, part models.Part) (models.PartInstance, error) {
	rd, ok := c.Rundowns.FindOne(part.RundownID)
	if !ok {
		return models.PartInstance{}, reject(ErrNotFound, "Rundown %s of part %s not found", part.RundownID, part.ID)
	}
	seg, ok := c.Segments.FindOne(part.SegmentID)
	if !ok {
		return models.PartInstance{}, reject(ErrNotFound, "Segment %s of part %s not found", part.SegmentID, part.ID)
	}
	showStyle, _ := c.ShowStyleFor(part.RundownID)

	instance := models.PartInstance{
		ID:         models.PartInstanceID(s.newID()),
		PlaylistID: c.PlaylistID,
		RundownID:  part.RundownID,
		SegmentID:  part.SegmentID,
		PartID:     part.ID,
		Rehearsal:  c.Playlist().Rehearsal,
		Part:       part,
	}
	if err := c.PartInstances.Insert(instance); err != nil {
		return models.PartInstance{}, fmt.Errorf("create part instance: %w", err)
	}
	if err := s.insertPieceInstances(c, instance, rd, seg, showStyle); err != nil {
		return models.PartInstance{}, err
	}
	return instance, nil
}

func (s *Service) insertPieceInstances(c *cache.Cache, instance models.PartInstance, rd models.Rundown, seg models.Segment, showStyle models.ShowStyleBase) error {
	for _, pi := range s.buildPieceInstances(c, instance, rd, seg, showStyle) {
		if err := c.PieceInstances.Insert(pi); err != nil {
			return fmt.Errorf("create piece instance: %w", err)
		}
	}
	return nil
}

// buildPieceInstances returns the piece instances instance would get if it
// were created now.
func (s *Service) buildPieceInstances(c *cache.Cache, instance models.PartInstance, rd models.Rundown, seg models.Segment, showStyle models.ShowStyleBase) []models.PieceInstance {
	var previous []models.PieceInstance
	if cur, ok := c.CurrentPartInstance(); ok {
		previous = c.PieceInstancesOf(cur.ID)
	}
	part := instance.Part
	resolved := infinites.GetInfinitesForPart(showStyle, rundownIDs(c), rd, seg, part, c.Pieces.Find(nil))
	return infinites.BuildPieceInstances(instance, c.PiecesOf(part.ID), previous, resolved, s.newID)
}

// syncNextInfinites rebuilds the continued infinites of the next part
// instance from the current one. Own pieces of the next part are untouched.
func (s *Service) syncNextInfinites(c *cache.Cache) error {
	next, ok := c.NextPartInstance()
	if !ok {
		return nil
	}
	part := next.Part
	rd, _ := c.Rundowns.FindOne(next.RundownID)
	seg, _ := c.Segments.FindOne(next.SegmentID)
	showStyle, _ := c.ShowStyleFor(next.RundownID)

	var previous []models.PieceInstance
	if cur, ok := c.CurrentPartInstance(); ok {
		previous = c.PieceInstancesOf(cur.ID)
	}

	c.PieceInstances.RemoveAll(func(pi *models.PieceInstance) bool {
		return pi.PartInstanceID == next.ID && pi.Infinite != nil && pi.Piece.StartPartID != part.ID
	})
	resolved := infinites.GetInfinitesForPart(showStyle, rundownIDs(c), rd, seg, part, c.Pieces.Find(nil))
	for _, pi := range infinites.BuildPieceInstances(next, c.PiecesOf(part.ID), previous, resolved, s.newID) {
		if pi.Piece.StartPartID == part.ID {
			continue
		}
		if err := c.PieceInstances.Insert(pi); err != nil {
			return fmt.Errorf("sync next infinites: %w", err)
		}
	}
	return nil
}

// resetPartInstance marks an instance and its piece instances as reset.
func resetPartInstance(c *cache.Cache, id models.PartInstanceID) {
	c.PartInstances.Update(id, func(pi *models.PartInstance) { pi.Reset = true })
	c.PieceInstances.UpdateAll(
		func(pi *models.PieceInstance) bool { return pi.PartInstanceID == id },
		func(pi *models.PieceInstance) { pi.Reset = true },
	)
}

func rundownIDs(c *cache.Cache) []models.RundownID {
	rundowns := c.OrderedRundowns()
	ids := make([]models.RundownID, len(rundowns))
	for i, rd := range rundowns {
		ids[i] = rd.ID
	}
	return ids
}

// partStartedAt returns when a part instance went on air.
func partStartedAt(pi models.PartInstance) (int64, bool) {
	if pi.Timings.StartedPlayback != nil {
		return *pi.Timings.StartedPlayback, true
	}
	if pi.Timings.Take != nil {
		return *pi.Timings.Take, true
	}
	return 0, false
}
