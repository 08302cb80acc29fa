package cache

import (
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// OrderedRundowns returns the rundowns of the playlist by rank.
func (c *Cache) OrderedRundowns() []models.Rundown {
	rundowns := c.Rundowns.Find(nil)
	sort.SliceStable(rundowns, func(i, j int) bool { return rundowns[i].Rank < rundowns[j].Rank })
	return rundowns
}

func (c *Cache) rundownRanks() map[models.RundownID]int {
	ranks := make(map[models.RundownID]int)
	for i, rd := range c.OrderedRundowns() {
		ranks[rd.ID] = i
	}
	return ranks
}

// OrderedSegments returns every segment in playback order.
func (c *Cache) OrderedSegments() []models.Segment {
	rundownRank := c.rundownRanks()
	segments := c.Segments.Find(nil)
	sort.SliceStable(segments, func(i, j int) bool {
		a, b := segments[i], segments[j]
		if rundownRank[a.RundownID] != rundownRank[b.RundownID] {
			return rundownRank[a.RundownID] < rundownRank[b.RundownID]
		}
		return a.Rank < b.Rank
	})
	return segments
}

// OrderedParts returns every part in playback order: by rundown, then
// segment, then part rank.
func (c *Cache) OrderedParts() []models.Part {
	segmentRank := make(map[models.SegmentID]int)
	for i, seg := range c.OrderedSegments() {
		segmentRank[seg.ID] = i
	}
	parts := c.Parts.Find(nil)
	sort.SliceStable(parts, func(i, j int) bool {
		a, b := parts[i], parts[j]
		if segmentRank[a.SegmentID] != segmentRank[b.SegmentID] {
			return segmentRank[a.SegmentID] < segmentRank[b.SegmentID]
		}
		return a.Rank < b.Rank
	})
	return parts
}

// PartInstance returns a part instance, or false when id is unset or unknown.
func (c *Cache) PartInstance(id models.PartInstanceID) (models.PartInstance, bool) {
	if id == "" {
		return models.PartInstance{}, false
	}
	return c.PartInstances.FindOne(id)
}

// CurrentPartInstance returns the on-air part instance.
func (c *Cache) CurrentPartInstance() (models.PartInstance, bool) {
	return c.PartInstance(c.Playlist().CurrentPartInstanceID)
}

// NextPartInstance returns the queued part instance.
func (c *Cache) NextPartInstance() (models.PartInstance, bool) {
	return c.PartInstance(c.Playlist().NextPartInstanceID)
}

// PreviousPartInstance returns the part instance that was on air before the
// current one.
func (c *Cache) PreviousPartInstance() (models.PartInstance, bool) {
	return c.PartInstance(c.Playlist().PreviousPartInstanceID)
}

// PieceInstancesOf returns the non-reset piece instances of a part instance,
// ordered by start and id.
func (c *Cache) PieceInstancesOf(id models.PartInstanceID) []models.PieceInstance {
	out := c.PieceInstances.Find(func(pi *models.PieceInstance) bool {
		return pi.PartInstanceID == id && !pi.Reset
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Piece.Enable.Start < out[j].Piece.Enable.Start })
	return out
}

// PiecesOf returns the pieces that start in part id, ordered by start.
func (c *Cache) PiecesOf(id models.PartID) []models.Piece {
	out := c.Pieces.Find(func(p *models.Piece) bool { return p.StartPartID == id })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Enable.Start < out[j].Enable.Start })
	return out
}

// ShowStyleFor returns the show style of a rundown.
func (c *Cache) ShowStyleFor(rundownID models.RundownID) (models.ShowStyleBase, bool) {
	rd, ok := c.Rundowns.FindOne(rundownID)
	if !ok {
		return models.ShowStyleBase{}, false
	}
	ss, ok := c.ShowStyleBases[rd.ShowStyleBaseID]
	return ss, ok
}
