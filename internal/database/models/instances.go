package models

// PartInstanceTimings records the playback of one occurrence of a part.
type PartInstanceTimings struct {
	Take            *int64 `json:"take,omitempty"`
	PlayOffset      *int64 `json:"playOffset,omitempty"`
	TakeOut         *int64 `json:"takeOut,omitempty"`
	StartedPlayback *int64 `json:"startedPlayback,omitempty"`
	StoppedPlayback *int64 `json:"stoppedPlayback,omitempty"`
}

// OrphanedDeleted marks a part instance whose part was removed by ingest
// while it was on air.
const OrphanedDeleted = "deleted"

// PartInstance is a playback occurrence of a part. It carries a copy of the
// part so that playback is unaffected by later ingest changes.
// Table: part_instances
type PartInstance struct {
	ID                   PartInstanceID      `gorm:"column:id;primaryKey" json:"id"`
	PlaylistID           PlaylistID          `gorm:"column:playlist_id;index" json:"playlistId"`
	RundownID            RundownID           `gorm:"column:rundown_id;index" json:"rundownId"`
	SegmentID            SegmentID           `gorm:"column:segment_id" json:"segmentId"`
	PartID               PartID              `gorm:"column:part_id;index" json:"partId"`
	TakeCount            int                 `gorm:"column:take_count" json:"takeCount"`
	Rehearsal            bool                `gorm:"column:rehearsal;default:false" json:"rehearsal"`
	Reset                bool                `gorm:"column:reset;default:false;index" json:"reset,omitempty"`
	Orphaned             string              `gorm:"column:orphaned" json:"orphaned,omitempty"`
	Part                 Part                `gorm:"column:part;serializer:json" json:"part"`
	Timings              PartInstanceTimings `gorm:"column:timings;serializer:json" json:"timings"`
	PreviousPartEndState map[string]any      `gorm:"column:previous_part_end_state;serializer:json" json:"previousPartEndState,omitempty"`
}

func (PartInstance) TableName() string { return "part_instances" }

// PieceInstanceInfinite links a piece instance to the infinite it continues.
type PieceInstanceInfinite struct {
	InfiniteInstanceID string  `json:"infiniteInstanceId"`
	InfinitePieceID    PieceID `json:"infinitePieceId"`
	// FromPrevious is set when the instance was carried over from the previous part instance.
	FromPrevious bool `json:"fromPrevious,omitempty"`
	// FromHold marks pieces extended across a hold.
	FromHold bool `json:"fromHold,omitempty"`
}

// PieceInstance is a playback occurrence of a piece inside one part instance.
// Table: piece_instances
type PieceInstance struct {
	ID              PieceInstanceID        `gorm:"column:id;primaryKey" json:"id"`
	RundownID       RundownID              `gorm:"column:rundown_id;index" json:"rundownId"`
	PartInstanceID  PartInstanceID         `gorm:"column:part_instance_id;index" json:"partInstanceId"`
	PieceID         PieceID                `gorm:"column:piece_id;index" json:"pieceId"`
	Piece           Piece                  `gorm:"column:piece;serializer:json" json:"piece"`
	Infinite        *PieceInstanceInfinite `gorm:"column:infinite;serializer:json" json:"infinite,omitempty"`
	Disabled        bool                   `gorm:"column:disabled;default:false" json:"disabled,omitempty"`
	Reset           bool                   `gorm:"column:reset;default:false" json:"reset,omitempty"`
	UserDurationEnd *int64                 `gorm:"column:user_duration_end" json:"userDurationEnd,omitempty"`
	StartedPlayback *int64                 `gorm:"column:started_playback" json:"startedPlayback,omitempty"`
	StoppedPlayback *int64                 `gorm:"column:stopped_playback" json:"stoppedPlayback,omitempty"`
}

func (PieceInstance) TableName() string { return "piece_instances" }

// EndsAt returns the end of the piece relative to its part start, or nil when
// the piece runs until the part ends.
func (p *PieceInstance) EndsAt() *int64 {
	var end *int64
	if p.Piece.Enable.Duration != nil {
		end = Int64Ptr(p.Piece.Enable.Start + *p.Piece.Enable.Duration)
	}
	if p.UserDurationEnd != nil && (end == nil || *p.UserDurationEnd < *end) {
		end = Int64Ptr(*p.UserDurationEnd)
	}
	return end
}
