package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Expr is a timeline time expression: either an integer number of
// milliseconds or a reference such as "#obj.start + 2000". Integer values are
// encoded as JSON numbers.
type Expr string

// Ms returns an absolute expression.
func Ms(v int64) Expr {
	return Expr(strconv.FormatInt(v, 10))
}

// Int returns the expression as an integer when it is a plain number.
func (e Expr) Int() (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(e)), 10, 64)
	return v, err == nil
}

func (e Expr) MarshalJSON() ([]byte, error) {
	if v, ok := e.Int(); ok {
		return []byte(strconv.FormatInt(v, 10)), nil
	}
	return json.Marshal(string(e))
}

func (e *Expr) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*e = Expr(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*e = Expr(s)
	return nil
}

// TimelineEnable decides when a timeline object is active.
type TimelineEnable struct {
	Start    Expr `json:"start,omitempty" toml:"start"`
	End      Expr `json:"end,omitempty" toml:"end"`
	Duration Expr `json:"duration,omitempty" toml:"duration"`
	While    Expr `json:"while,omitempty" toml:"while"`
}

// TimelineObject is one entry of the device-facing schedule. Pieces carry
// templates of these which are placed into groups during generation.
type TimelineObject struct {
	ID                string         `json:"id"`
	Enable            TimelineEnable `json:"enable"`
	Layer             string         `json:"layer"`
	Priority          float64        `json:"priority,omitempty"`
	InGroup           string         `json:"inGroup,omitempty"`
	IsGroup           bool           `json:"isGroup,omitempty"`
	Content           map[string]any `json:"content,omitempty"`
	Classes           []string       `json:"classes,omitempty"`
	IsLookahead       bool           `json:"isLookahead,omitempty"`
	LookaheadForLayer string         `json:"lookaheadForLayer,omitempty"`
	PartInstanceID    PartInstanceID `json:"partInstanceId,omitempty"`
	PieceInstanceID   string         `json:"pieceInstanceId,omitempty"`
	InfinitePieceID   PieceID        `json:"infinitePieceId,omitempty"`
}

// Timeline is the complete generated schedule of a studio.
// Table: timelines
type Timeline struct {
	ID StudioID `gorm:"column:id;primaryKey" json:"id"`
	// PlaylistID is the playlist the timeline was generated from.
	PlaylistID PlaylistID       `gorm:"column:playlist_id" json:"playlistId,omitempty"`
	Objects    []TimelineObject `gorm:"column:objects;serializer:json" json:"objects"`
	Hash       string           `gorm:"column:hash" json:"hash"`
	Generated  int64            `gorm:"column:generated" json:"generated"`
}

func (Timeline) TableName() string { return "timelines" }

// All lists every model for migration.
func All() []any {
	return []any{
		&Studio{},
		&ShowStyleBase{},
		&ShowStyleVariant{},
		&RundownPlaylist{},
		&Rundown{},
		&Segment{},
		&Part{},
		&Piece{},
		&PartInstance{},
		&PieceInstance{},
		&Timeline{},
	}
}
