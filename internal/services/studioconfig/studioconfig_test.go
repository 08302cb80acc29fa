package studioconfig

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/testutil"
)

const sample = `
[[studio]]
id = "studio0"
name = "Studio A"

[studio.config]
channel = "one"

[studio.mappings.layer_cam]
device = "atem0"

[studio.mappings.layer_vt]
device = "casparcg0"
lookahead = "PRELOAD"
lookahead_depth = 2

[[show_style]]
id = "news"
name = "News"
blueprint = "news-blueprint"

[show_style.config]
theme = "dark"

[[show_style.source_layer]]
id = "cam"
name = "Camera"
type = "camera"
rank = 0

[[show_style.source_layer]]
id = "gfx"
name = "Graphics"
type = "graphics"
rank = 1
allow_disable = true

[[show_style.output_layer]]
id = "pgm"
name = "PGM"
pgm = true

[[show_style.variant]]
id = "news-late"
name = "Late"

[show_style.variant.config]
theme = "light"
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, f.Studios, 1)
	s := f.Studios[0]
	assert.Equal(t, "studio0", s.ID)
	assert.Equal(t, models.Mapping{DeviceID: "atem0", LookaheadMode: models.LookaheadNone}, s.Mappings["layer_cam"])
	assert.Equal(t, models.Mapping{DeviceID: "casparcg0", LookaheadMode: models.LookaheadPreload, LookaheadDepth: 2}, s.Mappings["layer_vt"])
	assert.Equal(t, "one", s.Config["channel"])

	require.Len(t, f.ShowStyles, 1)
	ss := f.ShowStyles[0]
	assert.Equal(t, "news-blueprint", ss.Blueprint)
	require.Len(t, ss.SourceLayers, 2)
	assert.True(t, ss.SourceLayers[1].AllowDisable)
	require.Len(t, ss.OutputLayers, 1)
	assert.True(t, ss.OutputLayers[0].IsPGM)
	require.Len(t, ss.Variants, 1)
	assert.Equal(t, "light", ss.Variants[0].Config["theme"])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "[[studio]]\nid = \"s\"\ncolour = \"red\"\n"},
		{"missing studio id", "[[studio]]\nname = \"s\"\n"},
		{"duplicate studio", "[[studio]]\nid = \"s\"\n[[studio]]\nid = \"s\"\n"},
		{"bad lookahead", "[[studio]]\nid = \"s\"\n[studio.mappings.l]\ndevice = \"d\"\nlookahead = \"SOMETIMES\"\n"},
		{"duplicate source layer", "[[show_style]]\nid = \"ss\"\n[[show_style.source_layer]]\nid = \"cam\"\n[[show_style.source_layer]]\nid = \"cam\"\n"},
		{"not toml", "studio = [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studios.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Studios, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	st := testDB.Store
	configs := blueprint.NewConfigCache(st, time.Minute)

	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, st, configs, f))

	studio, err := st.Studios.FindByID(ctx, "studio0")
	require.NoError(t, err)
	require.NotNil(t, studio)
	assert.Equal(t, "Studio A", studio.Name)
	assert.Equal(t, "casparcg0", studio.Mappings["layer_vt"].DeviceID)

	base, err := st.ShowStyleBases.FindByID(ctx, "news")
	require.NoError(t, err)
	require.NotNil(t, base)
	assert.Equal(t, "news-blueprint", base.BlueprintID)
	layer, ok := base.SourceLayer("gfx")
	require.True(t, ok)
	assert.True(t, layer.AllowDisable)

	variant, err := st.ShowStyleVariants.FindByID(ctx, "news-late")
	require.NoError(t, err)
	require.NotNil(t, variant)
	assert.Equal(t, models.ShowStyleBaseID("news"), variant.ShowStyleBaseID)

	cfg, err := configs.Get(ctx, "studio0", "news", "news-late")
	require.NoError(t, err)
	assert.Equal(t, "one", cfg["channel"])
	assert.Equal(t, "light", cfg["theme"])

	// a reload replaces the cached configuration
	f.Studios[0].Config["channel"] = "two"
	require.NoError(t, Apply(ctx, st, configs, f))
	cfg, err = configs.Get(ctx, "studio0", "news", "news-late")
	require.NoError(t, err)
	assert.Equal(t, "two", cfg["channel"])
}
