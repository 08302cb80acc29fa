package lookahead

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/resolve"
)

const layer = "layer_vt"

func piece(id string, layer string, opts ...func(*models.Piece)) models.Piece {
	p := models.Piece{
		ID:            models.PieceID(id),
		SourceLayerID: "vt",
		TimelineObjects: []models.TimelineObject{{
			ID:      "obj_" + id,
			Layer:   layer,
			Content: map[string]any{"clip": id},
		}},
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func futureParts(n int, layerOf func(i int) string) []FuturePart {
	var out []FuturePart
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("part%d", i)
		fp := FuturePart{Part: models.Part{ID: models.PartID(id)}}
		if l := layerOf(i); l != "" {
			fp.Pieces = []models.Piece{piece("pc"+id, l)}
		}
		out = append(out, fp)
	}
	return out
}

func playout(id string, pieces ...models.Piece) *PartPlayout {
	pp := &PartPlayout{PartInstance: models.PartInstance{ID: models.PartInstanceID("pi_" + id), PartID: models.PartID(id)}}
	for _, p := range pieces {
		pp.Pieces = append(pp.Pieces, models.PieceInstance{
			ID:             models.PieceInstanceID("inst_" + string(p.ID)),
			PartInstanceID: pp.PartInstance.ID,
			PieceID:        p.ID,
			Piece:          p,
		})
	}
	return pp
}

func TestFindLookaheadForLayer_Empty(t *testing.T) {
	parts := futureParts(5, func(int) string { return "layer_other" })
	res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadPreload, 3, parts)

	assert.Equal(t, Result{Timed: []Entry{}, Future: []Entry{}}, res)
	assert.True(t, res.Empty())
	assert.Nil(t, TimelineObjects(layer, models.LookaheadPreload, res, DefaultSettle))
}

func TestFindLookaheadForLayer_NoneMode(t *testing.T) {
	parts := futureParts(3, func(int) string { return layer })
	res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadNone, 3, parts)
	assert.True(t, res.Empty())
}

func TestFindLookaheadForLayer_DepthBound(t *testing.T) {
	parts := futureParts(10, func(i int) string {
		if i%2 == 0 {
			return layer
		}
		return ""
	})
	// one part with two pieces on the layer
	parts[0].Pieces = append(parts[0].Pieces, piece("extra", layer))

	for depth := 0; depth <= 8; depth++ {
		res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadPreload, depth, parts)
		assert.LessOrEqual(t, len(res.Future), depth, "depth %d", depth)
	}

	res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadPreload, 3, parts)
	require.Len(t, res.Future, 3)
	assert.Equal(t, models.PartID("part0"), res.Future[0].PartID)
	assert.Equal(t, models.PartID("part0"), res.Future[1].PartID)
	assert.Equal(t, models.PartID("part2"), res.Future[2].PartID)
}

func TestFindLookaheadForLayer_Timed(t *testing.T) {
	data := PlayoutData{
		Current: playout("cur", piece("a", layer), piece("skip", "layer_cam")),
		Next:    playout("next", piece("b", layer, func(p *models.Piece) { p.Enable.Start = 1000 })),
	}
	data.Current.Pieces[0].Piece.PrerollDuration = 500
	data.Current.Pieces[0].Piece.Enable.Start = 0

	res := FindLookaheadForLayer(data, layer, models.LookaheadPreload, 1, futureParts(2, func(int) string { return layer }))
	require.Len(t, res.Timed, 2)
	assert.Equal(t, models.PieceInstanceID("inst_a"), res.Timed[0].PieceInstanceID)
	assert.True(t, res.Timed[0].NeedsSettle)
	assert.Equal(t, models.PartInstanceID("pi_next"), res.Timed[1].PartInstanceID)
	require.Len(t, res.Future, 1)

	objs := TimelineObjects(layer, models.LookaheadPreload, res, DefaultSettle)
	require.Len(t, objs, 3)
	for _, o := range objs {
		assert.Equal(t, layer+LayerSuffix, o.Layer)
		assert.True(t, o.IsLookahead)
		assert.Equal(t, layer, o.LookaheadForLayer)
	}
	assert.Equal(t, models.Expr("now"), objs[0].Enable.Start)
	assert.Equal(t, models.Expr("#"+objs[1].ID+".start"), objs[0].Enable.End)
	assert.Equal(t, models.Expr("#"+objs[0].ID+".start + 2000"), objs[1].Enable.Start)
	assert.Equal(t, models.Expr("#"+objs[1].ID+".start"), objs[2].Enable.Start)
	assert.Empty(t, objs[2].Enable.End)

	iv, err := resolve.ResolveTimeline(objs, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), iv[objs[0].ID].Start)
	assert.Equal(t, int64(12_000), iv[objs[1].ID].Start)
	assert.Equal(t, int64(12_000), iv[objs[2].ID].Start)
	assert.Equal(t, int64(12_000), *iv[objs[0].ID].End)
}

func TestTimelineObjects_WhenClear(t *testing.T) {
	parts := futureParts(4, func(int) string { return layer })
	res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadWhenClear, 3, parts)
	require.Len(t, res.Future, 3)

	objs := TimelineObjects(layer, models.LookaheadWhenClear, res, DefaultSettle)
	require.Len(t, objs, 1)
	assert.Equal(t, layer, objs[0].Layer)
	assert.Equal(t, models.Expr("1"), objs[0].Enable.While)
	assert.Equal(t, "pcpart0", objs[0].Content["clip"])
}

func TestFindLookaheadForLayer_Transitions(t *testing.T) {
	transition := piece("trans", layer, func(p *models.Piece) { p.IsTransition = true })
	parts := []FuturePart{
		{Part: models.Part{ID: "a"}, Pieces: []models.Piece{transition, piece("ordinary", layer)}},
		{Part: models.Part{ID: "b", DisableOutTransition: true}, Pieces: []models.Piece{piece("other", "layer_cam")}},
		{Part: models.Part{ID: "c"}, Pieces: []models.Piece{transition}},
		{Part: models.Part{ID: "d"}, Pieces: []models.Piece{transition}},
	}
	res := FindLookaheadForLayer(PlayoutData{}, layer, models.LookaheadPreload, 5, parts)

	var got []string
	for _, e := range res.Future {
		got = append(got, string(e.PartID)+"/"+string(e.PieceID))
	}
	// a: ordinary wins; c: previous part disables its out transition; d: allowed
	assert.Equal(t, []string{"a/ordinary", "d/trans"}, got)
}

func TestObjectID_Deterministic(t *testing.T) {
	assert.Equal(t, ObjectID("l", "k", "o"), ObjectID("l", "k", "o"))
	assert.NotEqual(t, ObjectID("l", "k", "o"), ObjectID("l", "k2", "o"))
}
