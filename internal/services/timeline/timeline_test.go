package timeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/infinites"
	"github.com/bbernstein/sofie-playout-go/internal/services/resolve"
	"github.com/bbernstein/sofie-playout-go/internal/services/testutil"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func opts() Options {
	return Options{Now: func() time.Time { return fixedNow }}
}

// setup builds rd0/s0 with parts p0 (cam + rundown-end infinite), p1 (vt),
// p2 (vt) and loads an active playlist with p0 current and p1 next.
func setup(t *testing.T, partOpts ...func(*models.Part)) *cache.Cache {
	t.Helper()
	testDB, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	b := testutil.NewBuilder("studio0", "playlist0")
	b.AddRundown("rd0").AddSegment("s0").
		AddPart("p0", partOpts...).
		AddPiece("cam0", testutil.LayerCam, models.LifespanWithinPart).
		AddPiece("inf", testutil.LayerInf, models.LifespanOutOnRundownEnd).
		AddPart("p1").
		AddPiece("vt1", testutil.LayerVT, models.LifespanWithinPart).
		AddPart("p2").
		AddPiece("vt2", testutil.LayerVT, models.LifespanWithinPart)
	b.Playlist.Active = true
	b.Save(t, testDB.Store)

	c, err := cache.Init(context.Background(), testDB.Store, nil, "playlist0")
	require.NoError(t, err)

	counter := 0
	newID := func() string {
		counter++
		return fmt.Sprintf("gen%d", counter)
	}
	take := fixedNow.UnixMilli() - 5000
	addInstance(t, c, "pi0", "p0", &take, nil, newID)
	addInstance(t, c, "pi1", "p1", nil, c.PieceInstancesOf("pi0"), newID)
	c.UpdatePlaylist(func(p *models.RundownPlaylist) {
		p.CurrentPartInstanceID = "pi0"
		p.NextPartInstanceID = "pi1"
	})
	return c
}

func addInstance(t *testing.T, c *cache.Cache, id models.PartInstanceID, partID models.PartID, take *int64, previous []models.PieceInstance, newID func() string) {
	t.Helper()
	part, ok := c.Parts.FindOne(partID)
	require.True(t, ok)
	rd, _ := c.Rundowns.FindOne(part.RundownID)
	seg, _ := c.Segments.FindOne(part.SegmentID)
	ss, _ := c.ShowStyleFor(part.RundownID)

	pi := models.PartInstance{ID: id, PlaylistID: c.PlaylistID, RundownID: part.RundownID, SegmentID: part.SegmentID, PartID: part.ID, Part: part}
	pi.Timings.Take = take
	require.NoError(t, c.PartInstances.Insert(pi))

	inf := infinites.GetInfinitesForPart(ss, []models.RundownID{rd.ID}, rd, seg, part, c.Pieces.Find(nil))
	for _, pieceInst := range infinites.BuildPieceInstances(pi, c.PiecesOf(part.ID), previous, inf, newID) {
		require.NoError(t, c.PieceInstances.Insert(pieceInst))
	}
}

func ids(objs []models.TimelineObject) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func find(objs []models.TimelineObject, match func(o models.TimelineObject) bool) []models.TimelineObject {
	var out []models.TimelineObject
	for _, o := range objs {
		if match(o) {
			out = append(out, o)
		}
	}
	return out
}

func TestUpdateTimeline_Idempotent(t *testing.T) {
	c := setup(t)

	first := UpdateTimeline(c, "studio0", opts())
	require.True(t, first.Changed)
	require.NotEmpty(t, first.Timeline.Objects)

	second := UpdateTimeline(c, "studio0", opts())
	assert.False(t, second.Changed)
	assert.Equal(t, ids(first.Timeline.Objects), ids(second.Timeline.Objects))
	assert.Equal(t, first.Timeline.Hash, second.Timeline.Hash)

	// a fresh generation from the same state gives the same ids
	c.Timelines.RemoveAll(nil)
	third := UpdateTimeline(c, "studio0", Options{Now: func() time.Time { return fixedNow.Add(time.Hour) }})
	assert.True(t, third.Changed)
	assert.Equal(t, ids(first.Timeline.Objects), ids(third.Timeline.Objects))
}

func TestUpdateTimeline_Structure(t *testing.T) {
	c := setup(t)
	tl := UpdateTimeline(c, "studio0", opts()).Timeline

	currentGroup := find(tl.Objects, func(o models.TimelineObject) bool { return o.ID == PartGroupID("pi0") })
	require.Len(t, currentGroup, 1)
	assert.True(t, currentGroup[0].IsGroup)
	assert.Equal(t, models.Ms(fixedNow.UnixMilli()-5000), currentGroup[0].Enable.Start)

	// not auto-next, so the next part is not scheduled
	assert.Empty(t, find(tl.Objects, func(o models.TimelineObject) bool { return o.ID == PartGroupID("pi1") }))

	cam := find(tl.Objects, func(o models.TimelineObject) bool { return o.Layer == testutil.DeviceLayer(testutil.LayerCam) })
	require.Len(t, cam, 1)
	assert.Equal(t, models.PartInstanceID("pi0"), cam[0].PartInstanceID)

	inf := find(tl.Objects, func(o models.TimelineObject) bool { return o.Layer == testutil.DeviceLayer(testutil.LayerInf) })
	require.Len(t, inf, 1)
	assert.Equal(t, models.PieceID("inf"), inf[0].InfinitePieceID)

	// the infinite lives in a top-level group, not the part group
	infGroup := find(tl.Objects, func(o models.TimelineObject) bool { return o.ID == inf[0].InGroup })
	require.Len(t, infGroup, 1)
	assert.Empty(t, infGroup[0].InGroup)

	// vt has PRELOAD lookahead for the next part
	la := find(tl.Objects, func(o models.TimelineObject) bool { return o.IsLookahead })
	require.Len(t, la, 2, "next part plus one future part")
	clips := map[any]bool{}
	for _, o := range la {
		assert.Equal(t, testutil.DeviceLayer(testutil.LayerVT)+"_lookahead", o.Layer)
		clips[o.Content["clip"]] = true
	}
	assert.Equal(t, map[any]bool{"vt1": true, "vt2": true}, clips)

	resolved, err := resolve.ResolveTimeline(tl.Objects, fixedNow.UnixMilli())
	require.NoError(t, err)
	assert.True(t, resolved[cam[0].ID].Contains(fixedNow.UnixMilli()))
	assert.True(t, resolved[inf[0].ID].Contains(fixedNow.UnixMilli()))
}

func TestUpdateTimeline_AutoNext(t *testing.T) {
	c := setup(t, func(p *models.Part) {
		p.AutoNext = true
		p.ExpectedDuration = 10_000
		p.AutoNextOverlap = 500
	})
	tl := UpdateTimeline(c, "studio0", opts()).Timeline

	next := find(tl.Objects, func(o models.TimelineObject) bool { return o.ID == PartGroupID("pi1") })
	require.Len(t, next, 1)
	assert.Equal(t, models.Expr("#"+PartGroupID("pi0")+".end - 500"), next[0].Enable.Start)

	resolved, err := resolve.ResolveTimeline(tl.Objects, fixedNow.UnixMilli())
	require.NoError(t, err)
	take := fixedNow.UnixMilli() - 5000
	assert.Equal(t, take+9500, resolved[PartGroupID("pi1")].Start)

	// the infinite continues into the next part, so it is not cut there
	inf := find(tl.Objects, func(o models.TimelineObject) bool { return o.Layer == testutil.DeviceLayer(testutil.LayerInf) })
	require.Len(t, inf, 1)
	assert.Nil(t, resolved[inf[0].ID].End)
}

func TestUpdateTimeline_Inactive(t *testing.T) {
	c := setup(t)
	require.True(t, UpdateTimeline(c, "studio0", opts()).Changed)

	c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.Active = false })
	res := UpdateTimeline(c, "studio0", opts())
	assert.True(t, res.Changed)
	assert.Empty(t, res.Timeline.Objects)

	// another playlist's timeline is left alone
	c.Timelines.Upsert(models.Timeline{ID: "studio0", PlaylistID: "other", Objects: []models.TimelineObject{{ID: "x"}}})
	res = UpdateTimeline(c, "studio0", opts())
	assert.True(t, res.Skipped)
	stored, _ := c.Timelines.FindOne("studio0")
	assert.Len(t, stored.Objects, 1)
}

func TestUpdateTimeline_DisabledPieceSkipped(t *testing.T) {
	c := setup(t)
	c.PieceInstances.UpdateAll(func(pi *models.PieceInstance) bool { return pi.PieceID == "cam0" }, func(pi *models.PieceInstance) { pi.Disabled = true })

	tl := UpdateTimeline(c, "studio0", opts()).Timeline
	assert.Empty(t, find(tl.Objects, func(o models.TimelineObject) bool { return o.Layer == testutil.DeviceLayer(testutil.LayerCam) }))
}

func TestHash_ChangesWithContent(t *testing.T) {
	a := []models.TimelineObject{{ID: "a", Content: map[string]any{"x": 1}}}
	b := []models.TimelineObject{{ID: "a", Content: map[string]any{"x": 2}}}
	assert.Equal(t, Hash(a), Hash(a))
	assert.NotEqual(t, Hash(a), Hash(b))
}
