package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
)

// Rundown is a rundown as sent by the newsroom system.
type Rundown struct {
	ExternalID string `json:"externalId"`
	// PlaylistExternalID groups rundowns into one playlist. When empty the
	// rundown gets a playlist of its own.
	PlaylistExternalID string                    `json:"playlistExternalId,omitempty"`
	StudioID           models.StudioID           `json:"studioId"`
	ShowStyleBaseID    models.ShowStyleBaseID    `json:"showStyleBaseId"`
	ShowStyleVariantID models.ShowStyleVariantID `json:"showStyleVariantId,omitempty"`
	Name               string                    `json:"name"`
	Rank               *float64                  `json:"rank,omitempty"`
	Segments           []Segment                 `json:"segments"`
}

// Segment is an ingested segment. A nil rank is placed between its ranked
// neighbours.
type Segment struct {
	ExternalID string   `json:"externalId"`
	Name       string   `json:"name"`
	Rank       *float64 `json:"rank,omitempty"`
	Parts      []Part   `json:"parts"`
}

// Part is an ingested part.
type Part struct {
	ExternalID                     string              `json:"externalId"`
	Title                          string              `json:"title"`
	Rank                           *float64            `json:"rank,omitempty"`
	Invalid                        bool                `json:"invalid,omitempty"`
	Floated                        bool                `json:"floated,omitempty"`
	AutoNext                       bool                `json:"autoNext,omitempty"`
	AutoNextOverlap                int64               `json:"autoNextOverlap,omitempty"`
	TransitionDuration             int64               `json:"transitionDuration,omitempty"`
	PrerollDuration                int64               `json:"prerollDuration,omitempty"`
	ExpectedDuration               int64               `json:"expectedDuration,omitempty"`
	HoldMode                       models.PartHoldMode `json:"holdMode,omitempty"`
	DisableOutTransition           bool                `json:"disableOutTransition,omitempty"`
	ShouldNotifyCurrentPlayingPart bool                `json:"shouldNotifyCurrentPlayingPart,omitempty"`
	Pieces                         []Piece             `json:"pieces"`
}

// Piece is an ingested piece. An empty lifespan means the piece ends with
// its part.
type Piece struct {
	ExternalID      string                  `json:"externalId"`
	Name            string                  `json:"name"`
	SourceLayerID   string                  `json:"sourceLayerId"`
	OutputLayerID   string                  `json:"outputLayerId"`
	Enable          models.PieceEnable      `json:"enable"`
	Lifespan        models.PieceLifespan    `json:"lifespan,omitempty"`
	IsTransition    bool                    `json:"isTransition,omitempty"`
	ExtendOnHold    bool                    `json:"extendOnHold,omitempty"`
	Overflows       bool                    `json:"overflows,omitempty"`
	Virtual         bool                    `json:"virtual,omitempty"`
	PrerollDuration int64                   `json:"prerollDuration,omitempty"`
	Content         map[string]any          `json:"content,omitempty"`
	TimelineObjects []models.TimelineObject `json:"timelineObjects,omitempty"`
}

func hashID(parts ...string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, "\x00")), 36)
}

// RundownID returns the id of the rundown with an external id in a studio.
func RundownID(studio models.StudioID, externalID string) models.RundownID {
	return models.RundownID(hashID(string(studio), "rundown", externalID))
}

// PlaylistID returns the id of the playlist with an external id in a studio.
func PlaylistID(studio models.StudioID, externalID string) models.PlaylistID {
	return models.PlaylistID(hashID(string(studio), "playlist", externalID))
}

// SegmentID returns the id of a segment of a rundown.
func SegmentID(rundown models.RundownID, externalID string) models.SegmentID {
	return models.SegmentID(hashID(string(rundown), "segment", externalID))
}

// PartID returns the id of a part of a rundown.
func PartID(rundown models.RundownID, externalID string) models.PartID {
	return models.PartID(hashID(string(rundown), "part", externalID))
}

// PieceID returns the id of a piece of a part.
func PieceID(part models.PartID, externalID string) models.PieceID {
	return models.PieceID(hashID(string(part), "piece", externalID))
}

// ID returns the rundown id the payload is stored under.
func (r *Rundown) ID() models.RundownID {
	return RundownID(r.StudioID, r.ExternalID)
}

func (r *Rundown) playlistExternalID() string {
	if r.PlaylistExternalID != "" {
		return r.PlaylistExternalID
	}
	return r.ExternalID
}

// PlaylistID returns the playlist a new rundown is placed in.
func (r *Rundown) PlaylistID() models.PlaylistID {
	return PlaylistID(r.StudioID, r.playlistExternalID())
}

// Validate checks that every external id is set and unique in its scope.
func (r *Rundown) Validate() error {
	if r.ExternalID == "" {
		return invalid("rundown has no externalId")
	}
	if r.StudioID == "" {
		return invalid("rundown %s has no studioId", r.ExternalID)
	}
	segments := make(map[string]bool)
	parts := make(map[string]bool)
	for _, seg := range r.Segments {
		if seg.ExternalID == "" {
			return invalid("segment without externalId in rundown %s", r.ExternalID)
		}
		if segments[seg.ExternalID] {
			return invalid("duplicate segment %s", seg.ExternalID)
		}
		segments[seg.ExternalID] = true

		for _, part := range seg.Parts {
			if part.ExternalID == "" {
				return invalid("part without externalId in segment %s", seg.ExternalID)
			}
			if parts[part.ExternalID] {
				return invalid("duplicate part %s", part.ExternalID)
			}
			parts[part.ExternalID] = true

			pieces := make(map[string]bool)
			for _, piece := range part.Pieces {
				switch {
				case piece.ExternalID == "":
					return invalid("piece without externalId in part %s", part.ExternalID)
				case pieces[piece.ExternalID]:
					return invalid("duplicate piece %s in part %s", piece.ExternalID, part.ExternalID)
				case piece.SourceLayerID == "":
					return invalid("piece %s has no sourceLayerId", piece.ExternalID)
				case piece.Lifespan != "" && piece.Lifespan != models.LifespanWithinPart && !piece.Lifespan.IsInfinite():
					return invalid("piece %s has unknown lifespan %q", piece.ExternalID, piece.Lifespan)
				}
				pieces[piece.ExternalID] = true
			}
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return playout.Rejectf(playout.ErrInvalidPayload, format, args...)
}

// documents is a rundown payload converted into store documents.
type documents struct {
	Rundown  models.Rundown
	Segments []models.Segment
	Parts    []models.Part
	Pieces   []models.Piece
}

func (d *documents) hasPart(id models.PartID) bool {
	for _, p := range d.Parts {
		if p.ID == id {
			return true
		}
	}
	return false
}

// toDocuments converts a validated payload. Piece start ranks are copied
// from the rundown, segment and part they start in.
func (r *Rundown) toDocuments(playlistID models.PlaylistID, rundownRank float64) documents {
	rundownID := r.ID()
	d := documents{
		Rundown: models.Rundown{
			ID:                 rundownID,
			ExternalID:         r.ExternalID,
			PlaylistID:         playlistID,
			StudioID:           r.StudioID,
			ShowStyleBaseID:    r.ShowStyleBaseID,
			ShowStyleVariantID: r.ShowStyleVariantID,
			Name:               r.Name,
			Rank:               rundownRank,
		},
	}

	segmentRanks := make([]*float64, len(r.Segments))
	for i, seg := range r.Segments {
		segmentRanks[i] = seg.Rank
	}
	for i, rank := range fillRanks(segmentRanks) {
		in := r.Segments[i]
		seg := models.Segment{
			ID:         SegmentID(rundownID, in.ExternalID),
			ExternalID: in.ExternalID,
			RundownID:  rundownID,
			Name:       in.Name,
			Rank:       rank,
		}
		d.Segments = append(d.Segments, seg)

		partRanks := make([]*float64, len(in.Parts))
		for j, p := range in.Parts {
			partRanks[j] = p.Rank
		}
		for j, rank := range fillRanks(partRanks) {
			part := in.Parts[j].toPart(rundownID, seg.ID, rank)
			d.Parts = append(d.Parts, part)
			for _, p := range in.Parts[j].Pieces {
				d.Pieces = append(d.Pieces, p.toPiece(d.Rundown, seg, part))
			}
		}
	}
	return d
}

func (p *Part) toPart(rundownID models.RundownID, segmentID models.SegmentID, rank float64) models.Part {
	return models.Part{
		ID:                             PartID(rundownID, p.ExternalID),
		ExternalID:                     p.ExternalID,
		RundownID:                      rundownID,
		SegmentID:                      segmentID,
		Title:                          p.Title,
		Rank:                           rank,
		Invalid:                        p.Invalid,
		Floated:                        p.Floated,
		AutoNext:                       p.AutoNext,
		AutoNextOverlap:                p.AutoNextOverlap,
		TransitionDuration:             p.TransitionDuration,
		PrerollDuration:                p.PrerollDuration,
		ExpectedDuration:               p.ExpectedDuration,
		HoldMode:                       p.HoldMode,
		DisableOutTransition:           p.DisableOutTransition,
		ShouldNotifyCurrentPlayingPart: p.ShouldNotifyCurrentPlayingPart,
	}
}

func (p *Piece) toPiece(rd models.Rundown, seg models.Segment, part models.Part) models.Piece {
	lifespan := p.Lifespan
	if lifespan == "" {
		lifespan = models.LifespanWithinPart
	}
	return models.Piece{
		ID:               PieceID(part.ID, p.ExternalID),
		ExternalID:       p.ExternalID,
		RundownID:        rd.ID,
		StartPartID:      part.ID,
		StartSegmentID:   seg.ID,
		StartRundownRank: rd.Rank,
		StartSegmentRank: seg.Rank,
		StartPartRank:    part.Rank,
		Name:             p.Name,
		SourceLayerID:    p.SourceLayerID,
		OutputLayerID:    p.OutputLayerID,
		Enable:           p.Enable,
		Lifespan:         lifespan,
		IsTransition:     p.IsTransition,
		ExtendOnHold:     p.ExtendOnHold,
		Overflows:        p.Overflows,
		Virtual:          p.Virtual,
		PrerollDuration:  p.PrerollDuration,
		Content:          p.Content,
		TimelineObjects:  p.TimelineObjects,
	}
}

func (d *documents) String() string {
	return fmt.Sprintf("rundown %s: %d segments, %d parts, %d pieces", d.Rundown.ID, len(d.Segments), len(d.Parts), len(d.Pieces))
}
