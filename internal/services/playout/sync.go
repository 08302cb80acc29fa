package playout

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
)

var (
	partEqual  = []cmp.Option{cmpopts.EquateEmpty(), cmpopts.IgnoreFields(models.Part{}, "Timings")}
	pieceEqual = []cmp.Option{cmpopts.EquateEmpty()}
)

// SyncIngestChanges brings the part instances of an active playlist in line
// with the rundown documents in c after ingest changed them.
//
// The on-air instance keeps playing its copy; when its part is gone it is
// marked orphaned. An untaken next instance is rebuilt when its part or
// pieces changed, and replaced when the part is gone or no longer playable.
// A playlist without a next part gets one selected.
func (s *Service) SyncIngestChanges(c *cache.Cache) error {
	p := c.Playlist()
	if !p.Active {
		return nil
	}

	cur, hasCurrent := c.CurrentPartInstance()
	if hasCurrent && cur.Orphaned == "" {
		if _, ok := c.Parts.FindOne(cur.PartID); !ok {
			c.PartInstances.Update(cur.ID, func(pi *models.PartInstance) { pi.Orphaned = models.OrphanedDeleted })
			c.Logger().Warn("part on air was removed by ingest", "part_instance_id", cur.ID, "part_id", cur.PartID)
		}
	}

	if next, ok := c.NextPartInstance(); ok {
		if next.Timings.Take != nil {
			return nil
		}
		if part, ok := c.Parts.FindOne(next.PartID); ok && part.IsPlayable() {
			return s.refreshPartInstance(c, next, part)
		}
	}

	var from *models.PartInstance
	if hasCurrent {
		from = &cur
	}
	part, ok := selectNextPart(c, from, p.Loop)
	if !ok {
		return s.setNextPart(c, nil, false, nil)
	}
	return s.setNextPart(c, &part, false, nil)
}

// refreshPartInstance rebuilds an untaken part instance in place when its
// part or the pieces it would get differ from what it has.
func (s *Service) refreshPartInstance(c *cache.Cache, instance models.PartInstance, part models.Part) error {
	rd, ok := c.Rundowns.FindOne(part.RundownID)
	if !ok {
		return reject(ErrNotFound, "Rundown %s of part %s not found", part.RundownID, part.ID)
	}
	seg, ok := c.Segments.FindOne(part.SegmentID)
	if !ok {
		return reject(ErrNotFound, "Segment %s of part %s not found", part.SegmentID, part.ID)
	}
	showStyle, _ := c.ShowStyleFor(part.RundownID)

	refreshed := instance
	refreshed.Part = part
	refreshed.SegmentID = part.SegmentID
	built := s.buildPieceInstances(c, refreshed, rd, seg, showStyle)
	if cmp.Equal(instance.Part, part, partEqual...) && cmp.Equal(piecesByID(c.PieceInstancesOf(instance.ID)), piecesByID(built), pieceEqual...) {
		return nil
	}

	c.PieceInstances.RemoveAll(func(pi *models.PieceInstance) bool { return pi.PartInstanceID == instance.ID })
	c.PartInstances.Update(instance.ID, func(pi *models.PartInstance) {
		pi.Part = part
		pi.SegmentID = part.SegmentID
	})
	for _, pi := range built {
		if err := c.PieceInstances.Insert(pi); err != nil {
			return err
		}
	}
	return nil
}

func piecesByID(instances []models.PieceInstance) map[models.PieceID]models.Piece {
	out := make(map[models.PieceID]models.Piece, len(instances))
	for _, pi := range instances {
		out[pi.PieceID] = pi.Piece
	}
	return out
}
