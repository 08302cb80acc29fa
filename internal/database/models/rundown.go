package models

import "time"

// HoldState tracks the progress of a hold on a playlist.
type HoldState string

const (
	HoldNone     HoldState = ""
	HoldPending  HoldState = "PENDING"
	HoldActive   HoldState = "ACTIVE"
	HoldComplete HoldState = "COMPLETE"
)

// InProgress reports whether a hold has been requested or is running.
func (h HoldState) InProgress() bool {
	return h == HoldPending || h == HoldActive
}

// PartHoldMode marks which side of a hold a part can be.
type PartHoldMode string

const (
	PartHoldNone PartHoldMode = ""
	PartHoldFrom PartHoldMode = "FROM"
	PartHoldTo   PartHoldMode = "TO"
)

// PieceLifespan says how long a piece keeps playing after its part.
type PieceLifespan string

const (
	LifespanWithinPart         PieceLifespan = "part-only"
	LifespanOutOnSegmentChange PieceLifespan = "segment-change"
	LifespanOutOnSegmentEnd    PieceLifespan = "segment-end"
	LifespanOutOnRundownChange PieceLifespan = "rundown-change"
	LifespanOutOnRundownEnd    PieceLifespan = "rundown-end"
)

// IsInfinite reports whether the lifespan outlives the part.
func (l PieceLifespan) IsInfinite() bool {
	switch l {
	case LifespanOutOnSegmentChange, LifespanOutOnSegmentEnd, LifespanOutOnRundownChange, LifespanOutOnRundownEnd:
		return true
	}
	return false
}

// SegmentScoped reports whether the lifespan ends with the segment.
func (l PieceLifespan) SegmentScoped() bool {
	return l == LifespanOutOnSegmentChange || l == LifespanOutOnSegmentEnd
}

// PlayheadOnly reports whether the piece only continues while playback stays
// inside its scope, as opposed to being planned for every later part.
func (l PieceLifespan) PlayheadOnly() bool {
	return l == LifespanOutOnSegmentChange || l == LifespanOutOnRundownChange
}

// RundownPlaylist groups rundowns for continuous playback.
// Table: rundown_playlists
type RundownPlaylist struct {
	ID                      PlaylistID     `gorm:"column:id;primaryKey" json:"id"`
	ExternalID              string         `gorm:"column:external_id;index" json:"externalId"`
	StudioID                StudioID       `gorm:"column:studio_id;index" json:"studioId"`
	Name                    string         `gorm:"column:name" json:"name"`
	Active                  bool           `gorm:"column:active;default:false" json:"active"`
	Rehearsal               bool           `gorm:"column:rehearsal;default:false" json:"rehearsal"`
	Loop                    bool           `gorm:"column:loop;default:false" json:"loop"`
	HoldState               HoldState      `gorm:"column:hold_state" json:"holdState,omitempty"`
	CurrentPartInstanceID   PartInstanceID `gorm:"column:current_part_instance_id" json:"currentPartInstanceId,omitempty"`
	NextPartInstanceID      PartInstanceID `gorm:"column:next_part_instance_id" json:"nextPartInstanceId,omitempty"`
	PreviousPartInstanceID  PartInstanceID `gorm:"column:previous_part_instance_id" json:"previousPartInstanceId,omitempty"`
	NextPartManual          bool           `gorm:"column:next_part_manual;default:false" json:"nextPartManual"`
	NextTimeOffset          *int64         `gorm:"column:next_time_offset" json:"nextTimeOffset,omitempty"`
	StartedPlayback         *int64         `gorm:"column:started_playback" json:"startedPlayback,omitempty"`
	LastTakeTime            *int64         `gorm:"column:last_take_time" json:"lastTakeTime,omitempty"`
	PreviousPersistentState map[string]any `gorm:"column:previous_persistent_state;serializer:json" json:"-"`
	CreatedAt               time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt               time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (RundownPlaylist) TableName() string { return "rundown_playlists" }

// Rundown is one imported show or episode.
// Table: rundowns
type Rundown struct {
	ID                                   RundownID          `gorm:"column:id;primaryKey" json:"id"`
	ExternalID                           string             `gorm:"column:external_id;index" json:"externalId"`
	PlaylistID                           PlaylistID         `gorm:"column:playlist_id;index" json:"playlistId"`
	StudioID                             StudioID           `gorm:"column:studio_id;index" json:"studioId"`
	ShowStyleBaseID                      ShowStyleBaseID    `gorm:"column:show_style_base_id" json:"showStyleBaseId"`
	ShowStyleVariantID                   ShowStyleVariantID `gorm:"column:show_style_variant_id" json:"showStyleVariantId"`
	Name                                 string             `gorm:"column:name" json:"name"`
	Rank                                 float64            `gorm:"column:rank" json:"rank"`
	Unsynced                             bool               `gorm:"column:unsynced;default:false" json:"unsynced"`
	UnsyncedTime                         *int64             `gorm:"column:unsynced_time" json:"unsyncedTime,omitempty"`
	NotifiedCurrentPlayingPartExternalID string             `gorm:"column:notified_current_playing_part_external_id" json:"-"`
	CreatedAt                            time.Time          `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt                            time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Rundown) TableName() string { return "rundowns" }

// Segment is an ordered group of parts within a rundown.
// Table: segments
type Segment struct {
	ID         SegmentID `gorm:"column:id;primaryKey" json:"id"`
	ExternalID string    `gorm:"column:external_id" json:"externalId"`
	RundownID  RundownID `gorm:"column:rundown_id;index" json:"rundownId"`
	Name       string    `gorm:"column:name" json:"name"`
	Rank       float64   `gorm:"column:rank" json:"rank"`
}

func (Segment) TableName() string { return "segments" }

// PartTimings holds the playback history of a part. Every take appends.
type PartTimings struct {
	Take            []int64 `json:"take,omitempty"`
	PlayOffset      []int64 `json:"playOffset,omitempty"`
	TakeOut         []int64 `json:"takeOut,omitempty"`
	StartedPlayback []int64 `json:"startedPlayback,omitempty"`
	StoppedPlayback []int64 `json:"stoppedPlayback,omitempty"`
}

// Part is a playable unit within a segment.
// Table: parts
type Part struct {
	ID                             PartID       `gorm:"column:id;primaryKey" json:"id"`
	ExternalID                     string       `gorm:"column:external_id" json:"externalId"`
	RundownID                      RundownID    `gorm:"column:rundown_id;index" json:"rundownId"`
	SegmentID                      SegmentID    `gorm:"column:segment_id;index" json:"segmentId"`
	Title                          string       `gorm:"column:title" json:"title"`
	Rank                           float64      `gorm:"column:rank" json:"rank"`
	Invalid                        bool         `gorm:"column:invalid;default:false" json:"invalid,omitempty"`
	Floated                        bool         `gorm:"column:floated;default:false" json:"floated,omitempty"`
	AutoNext                       bool         `gorm:"column:auto_next;default:false" json:"autoNext,omitempty"`
	AutoNextOverlap                int64        `gorm:"column:auto_next_overlap" json:"autoNextOverlap,omitempty"`
	TransitionDuration             int64        `gorm:"column:transition_duration" json:"transitionDuration,omitempty"`
	PrerollDuration                int64        `gorm:"column:preroll_duration" json:"prerollDuration,omitempty"`
	ExpectedDuration               int64        `gorm:"column:expected_duration" json:"expectedDuration,omitempty"`
	HoldMode                       PartHoldMode `gorm:"column:hold_mode" json:"holdMode,omitempty"`
	DisableOutTransition           bool         `gorm:"column:disable_out_transition;default:false" json:"disableOutTransition,omitempty"`
	ShouldNotifyCurrentPlayingPart bool         `gorm:"column:should_notify_current_playing_part;default:false" json:"shouldNotifyCurrentPlayingPart,omitempty"`
	Timings                        PartTimings  `gorm:"column:timings;serializer:json" json:"timings"`
}

func (Part) TableName() string { return "parts" }

// IsPlayable reports whether the part can be set as next.
func (p *Part) IsPlayable() bool {
	return !p.Invalid && !p.Floated
}

// PieceEnable positions a piece relative to the start of its part.
type PieceEnable struct {
	Start    int64  `json:"start"`
	Duration *int64 `json:"duration,omitempty"`
}

// Piece is a graphic, clip or audio element attached to a part.
// Table: pieces
type Piece struct {
	ID               PieceID          `gorm:"column:id;primaryKey" json:"id"`
	ExternalID       string           `gorm:"column:external_id" json:"externalId"`
	RundownID        RundownID        `gorm:"column:rundown_id;index" json:"rundownId"`
	StartPartID      PartID           `gorm:"column:start_part_id;index" json:"startPartId"`
	StartSegmentID   SegmentID        `gorm:"column:start_segment_id" json:"startSegmentId"`
	StartRundownRank float64          `gorm:"column:start_rundown_rank" json:"startRundownRank"`
	StartSegmentRank float64          `gorm:"column:start_segment_rank" json:"startSegmentRank"`
	StartPartRank    float64          `gorm:"column:start_part_rank" json:"startPartRank"`
	Name             string           `gorm:"column:name" json:"name"`
	SourceLayerID    string           `gorm:"column:source_layer_id" json:"sourceLayerId"`
	OutputLayerID    string           `gorm:"column:output_layer_id" json:"outputLayerId"`
	Enable           PieceEnable      `gorm:"column:enable;serializer:json" json:"enable"`
	Lifespan         PieceLifespan    `gorm:"column:lifespan" json:"lifespan"`
	IsTransition     bool             `gorm:"column:is_transition;default:false" json:"isTransition,omitempty"`
	ExtendOnHold     bool             `gorm:"column:extend_on_hold;default:false" json:"extendOnHold,omitempty"`
	Overflows        bool             `gorm:"column:overflows;default:false" json:"overflows,omitempty"`
	Virtual          bool             `gorm:"column:virtual;default:false" json:"virtual,omitempty"`
	PrerollDuration  int64            `gorm:"column:preroll_duration" json:"prerollDuration,omitempty"`
	Content          map[string]any   `gorm:"column:content;serializer:json" json:"content,omitempty"`
	TimelineObjects  []TimelineObject `gorm:"column:timeline_objects;serializer:json" json:"timelineObjects,omitempty"`
}

func (Piece) TableName() string { return "pieces" }
