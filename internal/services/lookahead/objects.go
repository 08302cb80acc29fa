package lookahead

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

const (
	preloadPriority   = 0.5
	whenClearPriority = 0.1
)

// ObjectID returns the deterministic id of a lookahead object.
func ObjectID(layer, key, objID string) string {
	return "la_" + strconv.FormatUint(xxhash.Sum64String(layer+"\x00"+key+"\x00"+objID), 36)
}

func (e Entry) key() string {
	if e.PieceInstanceID != "" {
		return string(e.PieceInstanceID)
	}
	return string(e.PartID) + "/" + string(e.PieceID)
}

// TimelineObjects turns a result into lookahead timeline objects for layer.
//
// Entries are chained: each starts at the start of the previous one, plus
// settle when the previous entry needs settle time, and ends when the
// following one starts. PRELOAD objects go to the shadow layer. WHEN_CLEAR
// keeps the live layer at low priority and uses only the first future entry,
// enabled for as long as the layer is otherwise clear.
func TimelineObjects(layer string, mode models.LookaheadMode, res Result, settle int64) []models.TimelineObject {
	if mode == models.LookaheadNone || mode == "" || res.Empty() {
		return nil
	}

	target, priority := layer+LayerSuffix, preloadPriority
	chain := append(append([]Entry{}, res.Timed...), res.Future...)
	var clear []Entry
	if mode == models.LookaheadWhenClear {
		target, priority = layer, whenClearPriority
		chain = res.Timed
		if len(res.Future) > 0 {
			clear = res.Future[:1]
		}
	}

	var out []models.TimelineObject
	anchors := make([]string, len(chain))
	for i, e := range chain {
		if len(e.Objects) > 0 {
			anchors[i] = ObjectID(layer, e.key(), e.Objects[0].ID)
		}
	}
	for i, e := range chain {
		enable := models.TimelineEnable{Start: "now"}
		if i > 0 && anchors[i-1] != "" {
			enable.Start = models.Expr("#" + anchors[i-1] + ".start")
			if chain[i-1].NeedsSettle {
				enable.Start += models.Expr(" + " + strconv.FormatInt(settle, 10))
			}
		}
		if i+1 < len(chain) && anchors[i+1] != "" {
			enable.End = models.Expr("#" + anchors[i+1] + ".start")
		}
		out = append(out, entryObjects(e, layer, target, priority, enable)...)
	}
	for _, e := range clear {
		out = append(out, entryObjects(e, layer, target, priority, models.TimelineEnable{While: "1"})...)
	}
	return out
}

func entryObjects(e Entry, layer, target string, priority float64, enable models.TimelineEnable) []models.TimelineObject {
	out := make([]models.TimelineObject, 0, len(e.Objects))
	for _, obj := range e.Objects {
		out = append(out, models.TimelineObject{
			ID:                ObjectID(layer, e.key(), obj.ID),
			Enable:            enable,
			Layer:             target,
			Priority:          priority,
			Content:           obj.Content,
			Classes:           obj.Classes,
			IsLookahead:       true,
			LookaheadForLayer: layer,
			PartInstanceID:    e.PartInstanceID,
			PieceInstanceID:   string(e.PieceInstanceID),
		})
	}
	return out
}
