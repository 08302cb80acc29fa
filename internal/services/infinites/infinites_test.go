package infinites

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/testutil"
)

// fixture: two rundowns, rd0 has segments s0 (p00, p01) and s1 (p10, p11),
// rd1 has segment s2 (p20).
func fixture() *testutil.Builder {
	b := testutil.NewBuilder("studio0", "playlist0")
	b.AddRundown("rd0").
		AddSegment("s0").
		AddPart("p00").
		AddPiece("segEnd", testutil.LayerGfx, models.LifespanOutOnSegmentEnd).
		AddPiece("rdEnd", testutil.LayerInf, models.LifespanOutOnRundownEnd).
		AddPiece("cam00", testutil.LayerCam, models.LifespanWithinPart).
		AddPart("p01").
		AddSegment("s1").
		AddPart("p10").
		AddPart("p11")
	b.AddRundown("rd1").
		AddSegment("s2").
		AddPart("p20")
	return b
}

// base: one rundown with segment s0 (p00, p01); p00 carries the infinites.
func base() *testutil.Builder {
	b := testutil.NewBuilder("studio0", "playlist0")
	b.AddRundown("rd0").
		AddSegment("s0").
		AddPart("p00").
		AddPiece("segEnd", testutil.LayerGfx, models.LifespanOutOnSegmentEnd).
		AddPiece("rdEnd", testutil.LayerInf, models.LifespanOutOnRundownEnd).
		AddPart("p01")
	return b
}

func resolveFor(b *testutil.Builder, partID models.PartID) []models.PieceID {
	part := b.Part(partID)
	got := GetInfinitesForPart(b.ShowStyle, []models.RundownID{"rd0", "rd1"},
		b.Rundown(part.RundownID), b.Segment(part.SegmentID), part, b.Pieces)
	var ids []models.PieceID
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestGetInfinitesForPart_Scopes(t *testing.T) {
	b := fixture()

	tests := []struct {
		part models.PartID
		want []models.PieceID
	}{
		{"p00", nil},
		{"p01", []models.PieceID{"segEnd", "rdEnd"}},
		{"p10", []models.PieceID{"rdEnd"}},
		{"p11", []models.PieceID{"rdEnd"}},
		{"p20", nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.part), func(t *testing.T) {
			assert.Equal(t, tt.want, resolveFor(b, tt.part))
		})
	}
}

func TestGetInfinitesForPart_NewerPieceWins(t *testing.T) {
	b := base()
	// a later segment-end piece on the rundown-end piece's layer replaces it
	b.AddPart("p02").AddPiece("segEnd2", testutil.LayerInf, models.LifespanOutOnSegmentEnd)
	b.AddPart("p03")
	b.AddSegment("s9").AddPart("p90")

	assert.Equal(t, []models.PieceID{"segEnd", "rdEnd"}, resolveFor(b, "p01"))
	assert.Equal(t, []models.PieceID{"segEnd", "segEnd2"}, resolveFor(b, "p03"))
	// segEnd2 is out of scope in s9 and still hides rdEnd
	assert.Empty(t, resolveFor(b, "p90"))
}

func TestGetInfinitesForPart_WithinPartBlocksLayer(t *testing.T) {
	b := base()
	b.AddPart("p02").AddPiece("plain", testutil.LayerInf, models.LifespanWithinPart)
	b.AddPart("p03")

	assert.Equal(t, []models.PieceID{"segEnd"}, resolveFor(b, "p03"))
}

func TestGetInfinitesForPart_OrderIndependent(t *testing.T) {
	b := base()
	// two infinites on the same layer in the same part; the later start wins
	b.AddPart("p02").
		AddPiece("late", testutil.LayerInf, models.LifespanOutOnRundownEnd, testutil.WithStart(500)).
		AddPiece("early", testutil.LayerInf, models.LifespanOutOnRundownEnd)
	b.AddPart("p03")

	want := resolveFor(b, "p03")
	require.Equal(t, []models.PieceID{"segEnd", "late"}, want)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(b.Pieces), func(i, j int) { b.Pieces[i], b.Pieces[j] = b.Pieces[j], b.Pieces[i] })
		assert.Equal(t, want, resolveFor(b, "p03"), "shuffle %d", i)
	}
}

func TestGetInfinitesForPart_IgnoresOtherRundowns(t *testing.T) {
	b := base()
	part := b.Part("p01")
	got := GetInfinitesForPart(b.ShowStyle, []models.RundownID{"rd1"},
		b.Rundown("rd0"), b.Segment("s0"), part, b.Pieces)
	assert.Empty(t, got)
}

func TestGetInfinitePiecesToCopy(t *testing.T) {
	segChange := models.Piece{ID: "chg", Lifespan: models.LifespanOutOnSegmentChange}
	segEnd := models.Piece{ID: "end", Lifespan: models.LifespanOutOnSegmentEnd}
	rdEnd := models.Piece{ID: "rd", Lifespan: models.LifespanOutOnRundownEnd}
	stopped := models.Piece{ID: "stop", Lifespan: models.LifespanOutOnRundownEnd}

	previous := []models.PieceInstance{
		{ID: "a", PieceID: "end", Infinite: &models.PieceInstanceInfinite{InfiniteInstanceID: "inf-a", InfinitePieceID: "end"}},
		{ID: "b", PieceID: "stop", UserDurationEnd: models.Int64Ptr(100)},
		{ID: "c", PieceID: "rd", Reset: true},
	}

	got := GetInfinitePiecesToCopy(previous, []models.Piece{segChange, segEnd, rdEnd, stopped})
	require.Contains(t, got.Copy, models.PieceID("end"))
	assert.Equal(t, models.PieceInstanceID("a"), got.Copy["end"].ID)
	require.Len(t, got.Fresh, 1)
	assert.Equal(t, models.PieceID("rd"), got.Fresh[0].ID)
	assert.Equal(t, []models.PieceID{"stop"}, got.Stopped)
}

func TestBuildPieceInstances(t *testing.T) {
	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("id%d", counter)
	}
	instance := models.PartInstance{ID: "pi1", RundownID: "rd0"}

	own := []models.Piece{
		{ID: "cam", SourceLayerID: "cam", Lifespan: models.LifespanWithinPart},
		{ID: "gfx", SourceLayerID: "gfx", Lifespan: models.LifespanWithinPart, Enable: models.PieceEnable{Start: 3000}},
	}
	infinites := []models.Piece{
		{ID: "camInf", SourceLayerID: "cam", Lifespan: models.LifespanOutOnRundownEnd},
		{ID: "gfxInf", SourceLayerID: "gfx", Lifespan: models.LifespanOutOnRundownEnd, Enable: models.PieceEnable{Start: 200}},
		{ID: "audInf", SourceLayerID: "audio", Lifespan: models.LifespanOutOnRundownEnd},
	}
	previous := []models.PieceInstance{{
		ID:      "prevAud",
		PieceID: "audInf",
		Piece:   models.Piece{ID: "audInf", SourceLayerID: "audio", Content: map[string]any{"marker": "existing-instance"}, Enable: models.PieceEnable{Start: 1000}},
		Infinite: &models.PieceInstanceInfinite{
			InfiniteInstanceID: "inf-aud",
			InfinitePieceID:    "audInf",
		},
	}}

	got := BuildPieceInstances(instance, own, previous, infinites, newID)
	byPiece := make(map[models.PieceID]models.PieceInstance)
	for _, pi := range got {
		assert.Equal(t, models.PartInstanceID("pi1"), pi.PartInstanceID)
		byPiece[pi.PieceID] = pi
	}

	assert.NotContains(t, byPiece, models.PieceID("camInf"), "replaced at part start")

	gfx := byPiece["gfxInf"]
	require.NotNil(t, gfx.Piece.Enable.Duration)
	assert.Equal(t, int64(3000), *gfx.Piece.Enable.Duration)
	assert.Equal(t, int64(0), gfx.Piece.Enable.Start)
	assert.False(t, gfx.Infinite.FromPrevious)

	aud := byPiece["audInf"]
	require.NotNil(t, aud.Infinite)
	assert.True(t, aud.Infinite.FromPrevious)
	assert.Equal(t, "inf-aud", aud.Infinite.InfiniteInstanceID)
	assert.Equal(t, "existing-instance", aud.Piece.Content["marker"])
	assert.NotEqual(t, models.PieceInstanceID("prevAud"), aud.ID)
	assert.Equal(t, int64(0), aud.Piece.Enable.Start)

	assert.Nil(t, byPiece["cam"].Infinite)
}
