package infinites

import (
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// BuildPieceInstances returns the piece instances of a new part instance:
// one per piece of the part, plus the continuations of infinites.
//
// An infinite is dropped when the part has a piece of its own on the same
// source layer starting at 0, and is cut at the start of that piece
// otherwise. Continued instances keep the previous instance's piece snapshot
// and infinite instance id.
func BuildPieceInstances(
	partInstance models.PartInstance,
	own []models.Piece,
	previous []models.PieceInstance,
	infinites []models.Piece,
	newID func() string,
) []models.PieceInstance {
	out := make([]models.PieceInstance, 0, len(own)+len(infinites))

	// earliest start of an own piece per source layer
	firstOnLayer := make(map[string]int64)
	for _, p := range own {
		if p.IsTransition {
			continue
		}
		if s, ok := firstOnLayer[p.SourceLayerID]; !ok || p.Enable.Start < s {
			firstOnLayer[p.SourceLayerID] = p.Enable.Start
		}
	}

	for _, p := range own {
		pi := models.PieceInstance{
			ID:             models.PieceInstanceID(newID()),
			RundownID:      partInstance.RundownID,
			PartInstanceID: partInstance.ID,
			PieceID:        p.ID,
			Piece:          p,
		}
		if p.Lifespan.IsInfinite() {
			pi.Infinite = &models.PieceInstanceInfinite{
				InfiniteInstanceID: newID(),
				InfinitePieceID:    p.ID,
			}
		}
		out = append(out, pi)
	}

	partition := GetInfinitePiecesToCopy(previous, infinites)
	for _, p := range infinites {
		cut, blocked := firstOnLayer[p.SourceLayerID]
		if blocked && cut <= 0 {
			continue
		}

		var pi models.PieceInstance
		if prev, ok := partition.Copy[p.ID]; ok {
			pi = models.PieceInstance{
				PieceID:         p.ID,
				Piece:           prev.Piece,
				Disabled:        prev.Disabled,
				StartedPlayback: prev.StartedPlayback,
				Infinite: &models.PieceInstanceInfinite{
					InfiniteInstanceID: infiniteInstanceID(prev, newID),
					InfinitePieceID:    p.ID,
					FromPrevious:       true,
				},
			}
		} else if isFresh(partition, p.ID) {
			pi = models.PieceInstance{
				PieceID: p.ID,
				Piece:   p,
				Infinite: &models.PieceInstanceInfinite{
					InfiniteInstanceID: newID(),
					InfinitePieceID:    p.ID,
				},
			}
		} else {
			continue
		}

		pi.ID = models.PieceInstanceID(newID())
		pi.RundownID = partInstance.RundownID
		pi.PartInstanceID = partInstance.ID
		pi.Piece.Enable = models.PieceEnable{Start: 0}
		if blocked {
			pi.Piece.Enable.Duration = models.Int64Ptr(cut)
		}
		out = append(out, pi)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Piece.Enable.Start < out[j].Piece.Enable.Start })
	return out
}

func infiniteInstanceID(prev models.PieceInstance, newID func() string) string {
	if prev.Infinite != nil && prev.Infinite.InfiniteInstanceID != "" {
		return prev.Infinite.InfiniteInstanceID
	}
	return newID()
}

func isFresh(p Partition, id models.PieceID) bool {
	for _, f := range p.Fresh {
		if f.ID == id {
			return true
		}
	}
	return false
}
