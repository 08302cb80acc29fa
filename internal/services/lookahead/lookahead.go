// Package lookahead finds upcoming content per device layer so that it can
// be preloaded before it goes on air.
package lookahead

import (
	"sort"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// DefaultSettle is the delay after a preloaded object that needs settle time
// before the following one may start loading.
const DefaultSettle int64 = 2000

// LayerSuffix names the shadow layer PRELOAD objects are placed on.
const LayerSuffix = "_lookahead"

// PartPlayout is a part instance together with its resolved piece instances.
type PartPlayout struct {
	PartInstance models.PartInstance
	Pieces       []models.PieceInstance
}

// PlayoutData is the current playback position of a playlist.
type PlayoutData struct {
	Previous *PartPlayout
	Current  *PartPlayout
	Next     *PartPlayout
}

// FuturePart is a part beyond next, with its pieces.
type FuturePart struct {
	Part   models.Part
	Pieces []models.Piece
}

// Entry is one piece that will play on the layer.
type Entry struct {
	PartID          models.PartID
	PartInstanceID  models.PartInstanceID
	PieceID         models.PieceID
	PieceInstanceID models.PieceInstanceID
	// Objects are the piece's timeline objects on the layer.
	Objects     []models.TimelineObject
	NeedsSettle bool
}

// Result holds the entries found for one layer.
type Result struct {
	Timed  []Entry
	Future []Entry
}

// Empty reports whether nothing was found.
func (r Result) Empty() bool {
	return len(r.Timed) == 0 && len(r.Future) == 0
}

// FindLookaheadForLayer collects the pieces that will play on a device
// layer: timed entries from the current and next part instances, then up to
// depth future entries scanned in order from futureParts.
func FindLookaheadForLayer(data PlayoutData, layer string, mode models.LookaheadMode, depth int, futureParts []FuturePart) Result {
	res := Result{Timed: []Entry{}, Future: []Entry{}}
	if mode == models.LookaheadNone || mode == "" {
		return res
	}

	prevPart := func(pp *PartPlayout) *models.Part {
		if pp == nil {
			return nil
		}
		return &pp.PartInstance.Part
	}

	before := prevPart(data.Previous)
	for _, pp := range []*PartPlayout{data.Current, data.Next} {
		if pp == nil {
			continue
		}
		pieces := make([]models.Piece, 0, len(pp.Pieces))
		byPiece := make(map[models.PieceID]models.PieceInstance, len(pp.Pieces))
		for _, pi := range pp.Pieces {
			if pi.Disabled || (pi.Infinite != nil && pi.Infinite.FromPrevious) {
				continue
			}
			pieces = append(pieces, pi.Piece)
			byPiece[pi.Piece.ID] = pi
		}
		for _, p := range selectPieces(pieces, layer, allowsTransition(before)) {
			pi := byPiece[p.ID]
			res.Timed = append(res.Timed, Entry{
				PartID:          pp.PartInstance.PartID,
				PartInstanceID:  pp.PartInstance.ID,
				PieceID:         p.ID,
				PieceInstanceID: pi.ID,
				Objects:         objectsOnLayer(p, layer),
				NeedsSettle:     p.PrerollDuration > 0,
			})
		}
		before = prevPart(pp)
	}

	if depth <= 0 {
		return res
	}
	for i := range futureParts {
		fp := &futureParts[i]
		for _, p := range selectPieces(fp.Pieces, layer, allowsTransition(before)) {
			if len(res.Future) >= depth {
				return res
			}
			res.Future = append(res.Future, Entry{
				PartID:      fp.Part.ID,
				PieceID:     p.ID,
				Objects:     objectsOnLayer(p, layer),
				NeedsSettle: p.PrerollDuration > 0,
			})
		}
		if len(res.Future) >= depth {
			break
		}
		before = &fp.Part
	}
	return res
}

func allowsTransition(previous *models.Part) bool {
	return previous != nil && !previous.DisableOutTransition
}

// selectPieces returns the pieces with objects on layer, ordered by start.
// Transition pieces are only used when no ordinary piece targets the layer
// and the previous part allows a transition out of it.
func selectPieces(pieces []models.Piece, layer string, transitionAllowed bool) []models.Piece {
	var ordinary, transitions []models.Piece
	for _, p := range pieces {
		if len(objectsOnLayer(p, layer)) == 0 {
			continue
		}
		if p.IsTransition {
			transitions = append(transitions, p)
		} else {
			ordinary = append(ordinary, p)
		}
	}
	if len(ordinary) == 0 && transitionAllowed {
		ordinary = transitions
	}
	sortByStart(ordinary)
	return ordinary
}

func sortByStart(pieces []models.Piece) {
	sort.SliceStable(pieces, func(i, j int) bool { return pieces[i].Enable.Start < pieces[j].Enable.Start })
}

func objectsOnLayer(p models.Piece, layer string) []models.TimelineObject {
	var out []models.TimelineObject
	for _, obj := range p.TimelineObjects {
		if obj.Layer == layer {
			out = append(out, obj)
		}
	}
	return out
}
