// Package timeline builds the device timeline of a studio from the playback
// state of its active playlist.
package timeline

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lookahead"
)

// futureScanLimit bounds how many parts past next lookahead looks at.
const futureScanLimit = 50

// Options tune generation.
type Options struct {
	// Settle is the lookahead settle delay in milliseconds.
	Settle int64
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() int64 {
	if o.Now != nil {
		return o.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func (o Options) settle() int64 {
	if o.Settle > 0 {
		return o.Settle
	}
	return lookahead.DefaultSettle
}

// Result reports what UpdateTimeline did.
type Result struct {
	Timeline models.Timeline
	// Changed is false when the stored timeline already had these objects.
	Changed bool
	// Skipped is set when the studio timeline belongs to another playlist.
	Skipped bool
}

// UpdateTimeline rebuilds the timeline of the cached playlist's studio and
// stores it in the cache. An inactive playlist only clears a timeline it
// generated itself. Nothing is written when the objects are unchanged.
func UpdateTimeline(c *cache.Cache, studioID models.StudioID, opts Options) Result {
	playlist := c.Playlist()
	existing, hasExisting := c.Timelines.FindOne(studioID)

	var objs []models.TimelineObject
	if playlist.Active {
		objs = build(c, opts)
	} else if !hasExisting || existing.PlaylistID != playlist.ID {
		return Result{Timeline: existing, Skipped: true}
	}

	if objs == nil {
		objs = []models.TimelineObject{}
	}
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })

	tl := models.Timeline{
		ID:         studioID,
		PlaylistID: playlist.ID,
		Objects:    objs,
		Hash:       Hash(objs),
		Generated:  opts.now(),
	}
	if hasExisting && existing.Hash == tl.Hash && existing.PlaylistID == tl.PlaylistID {
		return Result{Timeline: existing}
	}
	c.Timelines.Upsert(tl)
	return Result{Timeline: tl, Changed: true}
}

// Hash returns a digest of the objects.
func Hash(objs []models.TimelineObject) string {
	d := xxhash.New()
	enc := json.NewEncoder(d)
	for i := range objs {
		_ = enc.Encode(&objs[i])
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// id derives a stable object id from its parts.
func id(prefix string, parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.WriteString("\x00")
	}
	return prefix + strconv.FormatUint(d.Sum64(), 36)
}

// PartGroupID is the id of the group of a part instance.
func PartGroupID(pi models.PartInstanceID) string {
	return id("part_", string(pi))
}

func infiniteGroupID(infiniteInstanceID string) string {
	return id("inf_", infiniteInstanceID)
}

func pieceGroupID(pi models.PieceInstanceID) string {
	return id("piece_", string(pi))
}
