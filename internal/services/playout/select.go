package playout

import (
	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
)

// selectNextPart returns the first playable part after from in playback
// order. A nil from selects the first playable part of the playlist. At the
// end of the playlist it wraps around only when loop is set.
func selectNextPart(c *cache.Cache, from *models.PartInstance, loop bool) (models.Part, bool) {
	parts := c.OrderedParts()
	start := 0
	if from != nil {
		start = indexAfter(c, parts, from)
	}

	for _, p := range parts[start:] {
		if p.IsPlayable() {
			return p, true
		}
	}
	if loop {
		for _, p := range parts[:start] {
			if p.IsPlayable() {
				return p, true
			}
		}
	}
	return models.Part{}, false
}

// indexAfter returns the index of the first part that plays after the part
// of an instance. The part may have been removed since the instance was
// created; then its stored rank decides.
func indexAfter(c *cache.Cache, parts []models.Part, from *models.PartInstance) int {
	for i, p := range parts {
		if p.ID == from.PartID {
			return i + 1
		}
	}

	segmentIndex := make(map[models.SegmentID]int)
	for i, seg := range c.OrderedSegments() {
		segmentIndex[seg.ID] = i
	}
	fromSegment, ok := segmentIndex[from.SegmentID]
	if !ok {
		return len(parts)
	}
	for i, p := range parts {
		si := segmentIndex[p.SegmentID]
		if si > fromSegment || (si == fromSegment && p.Rank > from.Part.Rank) {
			return i
		}
	}
	return len(parts)
}

// findMoveTarget resolves a relative move of the next part. Vertical moves
// jump to the first playable part of another segment; horizontal moves step
// over playable parts. The part on air is never a target.
func findMoveTarget(c *cache.Cache, ref models.PartID, current models.PartID, horizontal, vertical int) (models.Part, bool) {
	if vertical != 0 {
		segments := c.OrderedSegments()
		refPart, ok := c.Parts.FindOne(ref)
		if !ok {
			return models.Part{}, false
		}
		idx := -1
		for i, seg := range segments {
			if seg.ID == refPart.SegmentID {
				idx = i
			}
		}
		if idx < 0 {
			return models.Part{}, false
		}

		step := 1
		if vertical < 0 {
			step = -1
		}
		remaining := vertical * step
		for i := idx + step; i >= 0 && i < len(segments); i += step {
			first, ok := firstPlayableInSegment(c, segments[i].ID, current)
			if !ok {
				continue
			}
			remaining--
			if remaining == 0 {
				return first, true
			}
		}
		return models.Part{}, false
	}

	var candidates []models.Part
	for _, p := range c.OrderedParts() {
		if p.IsPlayable() && (p.ID != current || p.ID == ref) {
			candidates = append(candidates, p)
		}
	}
	for i, p := range candidates {
		if p.ID != ref {
			continue
		}
		target := i + horizontal
		if target < 0 || target >= len(candidates) {
			return models.Part{}, false
		}
		return candidates[target], true
	}
	return models.Part{}, false
}

func firstPlayableInSegment(c *cache.Cache, segmentID models.SegmentID, exclude models.PartID) (models.Part, bool) {
	for _, p := range c.OrderedParts() {
		if p.SegmentID == segmentID && p.IsPlayable() && p.ID != exclude {
			return p, true
		}
	}
	return models.Part{}, false
}
