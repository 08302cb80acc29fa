package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// Source layers of the default show style.
const (
	LayerCam = "cam"
	LayerVT  = "vt"
	LayerGfx = "gfx"
	LayerInf = "inf0"
	LayerAud = "audio"
)

// Builder assembles a studio, show style and playlist tree for tests.
type Builder struct {
	Studio    models.Studio
	ShowStyle models.ShowStyleBase
	Playlist  models.RundownPlaylist
	Rundowns  []models.Rundown
	Segments  []models.Segment
	Parts     []models.Part
	Pieces    []models.Piece
}

// NewBuilder creates a builder with a default studio and show style.
// Every source layer maps to the device layer "layer_<sourceLayer>".
func NewBuilder(studioID models.StudioID, playlistID models.PlaylistID) *Builder {
	sourceLayers := []models.SourceLayer{
		{ID: LayerCam, Name: "Camera", Type: "camera", Rank: 0},
		{ID: LayerVT, Name: "VT", Type: "vt", Rank: 1},
		{ID: LayerGfx, Name: "Graphics", Type: "graphics", Rank: 2, AllowDisable: true},
		{ID: LayerInf, Name: "Infinite", Type: "graphics", Rank: 3},
		{ID: LayerAud, Name: "Audio", Type: "audio", Rank: 4},
	}
	mappings := map[string]models.Mapping{}
	for _, l := range sourceLayers {
		mappings[DeviceLayer(l.ID)] = models.Mapping{DeviceID: "device0", LookaheadMode: models.LookaheadNone}
	}
	mappings[DeviceLayer(LayerVT)] = models.Mapping{DeviceID: "server0", LookaheadMode: models.LookaheadPreload, LookaheadDepth: 1}

	return &Builder{
		Studio: models.Studio{ID: studioID, Name: string(studioID), Mappings: mappings},
		ShowStyle: models.ShowStyleBase{
			ID:           "showstyle0",
			Name:         "Default",
			BlueprintID:  "test",
			SourceLayers: sourceLayers,
			OutputLayers: []models.OutputLayer{{ID: "pgm", Name: "PGM", IsPGM: true}},
		},
		Playlist: models.RundownPlaylist{ID: playlistID, StudioID: studioID, Name: string(playlistID)},
	}
}

// DeviceLayer names the timeline layer a source layer's objects play on.
func DeviceLayer(sourceLayerID string) string {
	return "layer_" + sourceLayerID
}

// AddRundown appends a rundown to the playlist.
func (b *Builder) AddRundown(id models.RundownID) *Builder {
	b.Rundowns = append(b.Rundowns, models.Rundown{
		ID:              id,
		ExternalID:      string(id),
		PlaylistID:      b.Playlist.ID,
		StudioID:        b.Studio.ID,
		ShowStyleBaseID: b.ShowStyle.ID,
		Name:            string(id),
		Rank:            float64(len(b.Rundowns)),
	})
	return b
}

// AddSegment appends a segment to the last rundown.
func (b *Builder) AddSegment(id models.SegmentID) *Builder {
	rd := b.Rundowns[len(b.Rundowns)-1]
	rank := 0
	for _, s := range b.Segments {
		if s.RundownID == rd.ID {
			rank++
		}
	}
	b.Segments = append(b.Segments, models.Segment{ID: id, ExternalID: string(id), RundownID: rd.ID, Name: string(id), Rank: float64(rank)})
	return b
}

// AddPart appends a part to the last segment.
func (b *Builder) AddPart(id models.PartID, opts ...func(*models.Part)) *Builder {
	seg := b.Segments[len(b.Segments)-1]
	rank := 0
	for _, p := range b.Parts {
		if p.SegmentID == seg.ID {
			rank++
		}
	}
	part := models.Part{ID: id, ExternalID: string(id), RundownID: seg.RundownID, SegmentID: seg.ID, Title: string(id), Rank: float64(rank)}
	for _, opt := range opts {
		opt(&part)
	}
	b.Parts = append(b.Parts, part)
	return b
}

// AddPiece appends a piece to the last part. The piece carries one timeline
// object on the device layer of its source layer.
func (b *Builder) AddPiece(id models.PieceID, sourceLayerID string, lifespan models.PieceLifespan, opts ...func(*models.Piece)) *Builder {
	part := b.Parts[len(b.Parts)-1]
	var seg models.Segment
	for _, s := range b.Segments {
		if s.ID == part.SegmentID {
			seg = s
		}
	}
	var rd models.Rundown
	for _, r := range b.Rundowns {
		if r.ID == part.RundownID {
			rd = r
		}
	}
	piece := models.Piece{
		ID:               id,
		ExternalID:       string(id),
		RundownID:        part.RundownID,
		StartPartID:      part.ID,
		StartSegmentID:   part.SegmentID,
		StartRundownRank: rd.Rank,
		StartSegmentRank: seg.Rank,
		StartPartRank:    part.Rank,
		Name:             string(id),
		SourceLayerID:    sourceLayerID,
		OutputLayerID:    "pgm",
		Lifespan:         lifespan,
		TimelineObjects: []models.TimelineObject{{
			ID:      "obj_" + string(id),
			Layer:   DeviceLayer(sourceLayerID),
			Enable:  models.TimelineEnable{While: "1"},
			Content: map[string]any{"clip": string(id)},
		}},
	}
	for _, opt := range opts {
		opt(&piece)
	}
	b.Pieces = append(b.Pieces, piece)
	return b
}

// Part returns a copy of a built part.
func (b *Builder) Part(id models.PartID) models.Part {
	for _, p := range b.Parts {
		if p.ID == id {
			return p
		}
	}
	panic(fmt.Sprintf("testutil: unknown part %s", id))
}

// Segment returns a copy of a built segment.
func (b *Builder) Segment(id models.SegmentID) models.Segment {
	for _, s := range b.Segments {
		if s.ID == id {
			return s
		}
	}
	panic(fmt.Sprintf("testutil: unknown segment %s", id))
}

// Rundown returns a copy of a built rundown.
func (b *Builder) Rundown(id models.RundownID) models.Rundown {
	for _, r := range b.Rundowns {
		if r.ID == id {
			return r
		}
	}
	panic(fmt.Sprintf("testutil: unknown rundown %s", id))
}

// Save writes everything built so far into st.
func (b *Builder) Save(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	steps := []func() error{
		func() error { return st.Studios.Save(ctx, &b.Studio) },
		func() error { return st.ShowStyleBases.Save(ctx, &b.ShowStyle) },
		func() error { return st.Playlists.Save(ctx, &b.Playlist) },
		func() error { return saveAll(ctx, st.Rundowns, b.Rundowns) },
		func() error { return saveAll(ctx, st.Segments, b.Segments) },
		func() error { return saveAll(ctx, st.Parts, b.Parts) },
		func() error { return saveAll(ctx, st.Pieces, b.Pieces) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("Failed to save fixture: %v", err)
		}
	}
}

func saveAll[T any](ctx context.Context, c *store.Collection[T], docs []T) error {
	ptrs := make([]*T, len(docs))
	for i := range docs {
		ptrs[i] = &docs[i]
	}
	return c.Save(ctx, ptrs...)
}

// WithDuration sets a piece duration.
func WithDuration(ms int64) func(*models.Piece) {
	return func(p *models.Piece) {
		p.Enable.Duration = &ms
	}
}

// WithStart sets a piece start relative to its part.
func WithStart(ms int64) func(*models.Piece) {
	return func(p *models.Piece) {
		p.Enable.Start = ms
	}
}
