package timeline

import (
	"encoding/json"
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lookahead"
)

const livePriority = 1

type builder struct {
	c       *cache.Cache
	opts    Options
	hold    models.HoldState
	objects []models.TimelineObject
}

func build(c *cache.Cache, opts Options) []models.TimelineObject {
	b := &builder{c: c, opts: opts, hold: c.Playlist().HoldState}

	current, hasCurrent := c.CurrentPartInstance()
	next, hasNext := c.NextPartInstance()
	previous, hasPrevious := c.PreviousPartInstance()

	var currentPieces, nextPieces, previousPieces []models.PieceInstance
	if hasCurrent {
		currentPieces = b.playable(c.PieceInstancesOf(current.ID))
		currentGroup := PartGroupID(current.ID)

		enable := models.TimelineEnable{Start: partStart(current)}
		autoNext := hasNext && current.Part.AutoNext && current.Part.ExpectedDuration > 0 && !b.hold.InProgress()
		if autoNext {
			enable.Duration = models.Ms(current.Part.ExpectedDuration)
		}
		b.group(currentGroup, "", enable, current)

		// infinites continuing into next keep playing across the auto-next
		continued := make(map[string]bool)
		if autoNext {
			nextPieces = b.playable(c.PieceInstancesOf(next.ID))
			for _, pi := range nextPieces {
				if pi.Infinite != nil {
					continued[pi.Infinite.InfiniteInstanceID] = true
				}
			}
		}

		for _, pi := range currentPieces {
			if pi.Infinite != nil {
				end := models.Expr("")
				if autoNext && !continued[pi.Infinite.InfiniteInstanceID] {
					end = models.Expr("#" + PartGroupID(next.ID) + ".start")
				}
				b.infinite(pi, current, currentGroup, end)
				continue
			}
			b.piece(pi, current, currentGroup)
		}

		if hasPrevious && current.Part.TransitionDuration > 0 {
			if start := partStartTime(previous); start != nil {
				previousGroup := PartGroupID(previous.ID)
				b.group(previousGroup, "", models.TimelineEnable{
					Start: models.Ms(*start),
					End:   plus("#"+currentGroup+".start", current.Part.TransitionDuration),
				}, previous)
				previousPieces = b.playable(c.PieceInstancesOf(previous.ID))
				for _, pi := range previousPieces {
					if pi.Infinite != nil && continuesInto(pi, currentPieces) {
						continue
					}
					b.piece(pi, previous, previousGroup)
				}
			}
		}

		if autoNext {
			nextGroup := PartGroupID(next.ID)
			b.group(nextGroup, "", models.TimelineEnable{
				Start: plus("#"+currentGroup+".end", -current.Part.AutoNextOverlap),
			}, next)
			for _, pi := range nextPieces {
				if pi.Infinite != nil && continuesInto(pi, currentPieces) {
					continue
				}
				b.piece(pi, next, nextGroup)
			}
		}
	}

	b.lookahead(current, hasCurrent, next, hasNext, previous, hasPrevious)
	return b.objects
}

// playable drops pieces that must not be on the timeline.
func (b *builder) playable(pieces []models.PieceInstance) []models.PieceInstance {
	var out []models.PieceInstance
	for _, pi := range pieces {
		if pi.Disabled || pi.Piece.Virtual {
			continue
		}
		if b.hold == models.HoldComplete && pi.Infinite != nil && pi.Infinite.FromHold {
			continue
		}
		out = append(out, pi)
	}
	return out
}

func continuesInto(pi models.PieceInstance, pieces []models.PieceInstance) bool {
	for _, other := range pieces {
		if other.Infinite != nil && other.Infinite.InfiniteInstanceID == pi.Infinite.InfiniteInstanceID {
			return true
		}
	}
	return false
}

func partStartTime(pi models.PartInstance) *int64 {
	if pi.Timings.StartedPlayback != nil {
		return pi.Timings.StartedPlayback
	}
	return pi.Timings.Take
}

func partStart(pi models.PartInstance) models.Expr {
	if t := partStartTime(pi); t != nil {
		return models.Ms(*t)
	}
	return "now"
}

func plus(ref string, ms int64) models.Expr {
	switch {
	case ms > 0:
		return models.Expr(ref) + " + " + models.Ms(ms)
	case ms < 0:
		return models.Expr(ref) + " - " + models.Ms(-ms)
	}
	return models.Expr(ref)
}

func (b *builder) group(groupID, parent string, enable models.TimelineEnable, pi models.PartInstance) {
	b.objects = append(b.objects, models.TimelineObject{
		ID:             groupID,
		Enable:         enable,
		IsGroup:        true,
		InGroup:        parent,
		PartInstanceID: pi.ID,
	})
}

// piece places a piece instance in a part group.
func (b *builder) piece(pi models.PieceInstance, part models.PartInstance, partGroup string) {
	enable := models.TimelineEnable{Start: models.Ms(pi.Piece.Enable.Start)}
	if end := pi.EndsAt(); end != nil {
		enable.Duration = models.Ms(*end - pi.Piece.Enable.Start)
	}
	groupID := pieceGroupID(pi.ID)
	b.group(groupID, partGroup, enable, part)
	b.pieceObjects(pi, part, groupID)
}

// infinite places an infinite at the top level under a group keyed by its
// infinite instance, so that the group is identical in every part it spans.
func (b *builder) infinite(pi models.PieceInstance, part models.PartInstance, partGroup string, end models.Expr) {
	enable := models.TimelineEnable{}
	switch {
	case pi.StartedPlayback != nil:
		enable.Start = models.Ms(*pi.StartedPlayback)
	default:
		enable.Start = plus("#"+partGroup+".start", pi.Piece.Enable.Start)
	}
	if stop := pi.EndsAt(); stop != nil {
		enable.End = plus("#"+partGroup+".start", *stop)
	} else {
		enable.End = end
	}
	groupID := infiniteGroupID(pi.Infinite.InfiniteInstanceID)
	b.group(groupID, "", enable, part)
	b.pieceObjects(pi, part, groupID)
}

func (b *builder) pieceObjects(pi models.PieceInstance, part models.PartInstance, groupID string) {
	key := string(pi.ID)
	var infinitePiece models.PieceID
	if pi.Infinite != nil {
		key = pi.Infinite.InfiniteInstanceID
		infinitePiece = pi.Infinite.InfinitePieceID
	}
	for _, tmpl := range pi.Piece.TimelineObjects {
		obj := tmpl
		obj.InGroup = groupID
		if obj.Enable == (models.TimelineEnable{}) {
			obj.Enable.While = "1"
		}
		if obj.Priority == 0 {
			obj.Priority = livePriority
		}
		content, _ := json.Marshal(obj.Content)
		obj.ID = id("obj_", key, tmpl.ID, obj.Layer, string(content))
		obj.PartInstanceID = part.ID
		obj.PieceInstanceID = string(pi.ID)
		obj.InfinitePieceID = infinitePiece
		b.objects = append(b.objects, obj)
	}
}

func (b *builder) lookahead(current models.PartInstance, hasCurrent bool, next models.PartInstance, hasNext bool, previous models.PartInstance, hasPrevious bool) {
	mappings := b.c.Studio.Mappings
	if len(mappings) == 0 {
		return
	}

	var data lookahead.PlayoutData
	if hasPrevious {
		data.Previous = &lookahead.PartPlayout{PartInstance: previous}
	}
	if hasCurrent {
		data.Current = &lookahead.PartPlayout{PartInstance: current, Pieces: b.playable(b.c.PieceInstancesOf(current.ID))}
	}
	if hasNext {
		data.Next = &lookahead.PartPlayout{PartInstance: next, Pieces: b.playable(b.c.PieceInstancesOf(next.ID))}
	}
	future := b.futureParts(current, hasCurrent, next, hasNext)

	layers := make([]string, 0, len(mappings))
	for layer := range mappings {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	for _, layer := range layers {
		m := mappings[layer]
		res := lookahead.FindLookaheadForLayer(data, layer, m.LookaheadMode, m.LookaheadDepth, future)
		b.objects = append(b.objects, lookahead.TimelineObjects(layer, m.LookaheadMode, res, b.opts.settle())...)
	}
}

// futureParts lists playable parts after next (or after current when there
// is no next) in playback order.
func (b *builder) futureParts(current models.PartInstance, hasCurrent bool, next models.PartInstance, hasNext bool) []lookahead.FuturePart {
	var after models.PartID
	switch {
	case hasNext:
		after = next.PartID
	case hasCurrent:
		after = current.PartID
	default:
		return nil
	}

	parts := b.c.OrderedParts()
	start := -1
	for i, p := range parts {
		if p.ID == after {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var out []lookahead.FuturePart
	for _, p := range parts[start:] {
		if len(out) >= futureScanLimit {
			break
		}
		if !p.IsPlayable() {
			continue
		}
		out = append(out, lookahead.FuturePart{Part: p, Pieces: b.c.PiecesOf(p.ID)})
	}
	return out
}
