// Package infinites resolves which infinite pieces are still playing in a
// part and builds the piece instances of a new part instance.
package infinites

import (
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// position is the playback order key of the part a piece starts in.
type position struct {
	rundown, segment, part float64
}

func (a position) before(b position) bool {
	if a.rundown != b.rundown {
		return a.rundown < b.rundown
	}
	if a.segment != b.segment {
		return a.segment < b.segment
	}
	return a.part < b.part
}

func positionOf(p *models.Piece) position {
	return position{p.StartRundownRank, p.StartSegmentRank, p.StartPartRank}
}

// newer orders pieces newest first.
func newer(a, b *models.Piece) bool {
	pa, pb := positionOf(a), positionOf(b)
	if pa != pb {
		return pb.before(pa)
	}
	if a.Enable.Start != b.Enable.Start {
		return a.Enable.Start > b.Enable.Start
	}
	return a.ID > b.ID
}

// GetInfinitesForPart returns, per source layer of the show style, the
// infinite piece that is still running when part starts. Only pieces of
// rundownIDs that start in a part before the target are considered. For each
// layer the newest such piece decides: if it is not infinite, or its segment
// or rundown scope does not contain the target, the layer yields nothing.
// The result is ordered by source layer rank.
func GetInfinitesForPart(
	showStyle models.ShowStyleBase,
	rundownIDs []models.RundownID,
	rundown models.Rundown,
	segment models.Segment,
	part models.Part,
	candidates []models.Piece,
) []models.Piece {
	inPlaylist := make(map[models.RundownID]bool, len(rundownIDs))
	for _, id := range rundownIDs {
		inPlaylist[id] = true
	}
	target := position{rundown.Rank, segment.Rank, part.Rank}

	newest := make(map[string]*models.Piece)
	for i := range candidates {
		p := &candidates[i]
		if !inPlaylist[p.RundownID] || p.IsTransition || p.StartPartID == part.ID {
			continue
		}
		if !positionOf(p).before(target) {
			continue
		}
		if cur, ok := newest[p.SourceLayerID]; !ok || newer(p, cur) {
			newest[p.SourceLayerID] = p
		}
	}

	layers := append([]models.SourceLayer(nil), showStyle.SourceLayers...)
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].Rank < layers[j].Rank })

	var out []models.Piece
	for _, layer := range layers {
		p, ok := newest[layer.ID]
		if !ok || p.Virtual || !p.Lifespan.IsInfinite() {
			continue
		}
		if p.Lifespan.SegmentScoped() {
			if p.StartSegmentID != segment.ID {
				continue
			}
		} else if p.RundownID != rundown.ID {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Partition splits resolved infinites by whether the previous part instance
// already plays them.
type Partition struct {
	// Copy holds the previous piece instances to continue, keyed by infinite piece.
	Copy map[models.PieceID]models.PieceInstance
	// Fresh holds infinites that need a new instance.
	Fresh []models.Piece
	// Stopped holds infinites the operator ended in the previous part instance.
	Stopped []models.PieceID
}

// GetInfinitePiecesToCopy partitions infinites against the piece instances of
// the previous part instance. Infinites that only continue while playback
// stays in scope are never started fresh.
func GetInfinitePiecesToCopy(previous []models.PieceInstance, infinites []models.Piece) Partition {
	live := make(map[models.PieceID]models.PieceInstance)
	for _, pi := range previous {
		if pi.Reset {
			continue
		}
		id := pi.PieceID
		if pi.Infinite != nil && pi.Infinite.InfinitePieceID != "" {
			id = pi.Infinite.InfinitePieceID
		}
		live[id] = pi
	}

	part := Partition{Copy: make(map[models.PieceID]models.PieceInstance)}
	for _, p := range infinites {
		if pi, ok := live[p.ID]; ok {
			if pi.UserDurationEnd != nil {
				part.Stopped = append(part.Stopped, p.ID)
				continue
			}
			part.Copy[p.ID] = pi
			continue
		}
		if p.Lifespan.PlayheadOnly() {
			continue
		}
		part.Fresh = append(part.Fresh, p)
	}
	return part
}
