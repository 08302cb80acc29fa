package models

import "time"

// LookaheadMode controls how a mapping pre-loads upcoming content.
type LookaheadMode string

const (
	LookaheadNone      LookaheadMode = "NONE"
	LookaheadPreload   LookaheadMode = "PRELOAD"
	LookaheadWhenClear LookaheadMode = "WHEN_CLEAR"
)

// Mapping routes a timeline layer to a playout device.
type Mapping struct {
	DeviceID       string        `json:"deviceId" toml:"device"`
	LookaheadMode  LookaheadMode `json:"lookahead" toml:"lookahead"`
	LookaheadDepth int           `json:"lookaheadDepth,omitempty" toml:"lookahead_depth"`
}

// Studio represents a physical studio with its device layer mappings.
// Table: studios
type Studio struct {
	ID       StudioID           `gorm:"column:id;primaryKey" json:"id"`
	Name     string             `gorm:"column:name" json:"name"`
	Mappings map[string]Mapping `gorm:"column:mappings;serializer:json" json:"mappings"`
	// BlueprintConfig is passed to blueprint callbacks.
	BlueprintConfig map[string]any `gorm:"column:blueprint_config;serializer:json" json:"blueprintConfig,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Studio) TableName() string { return "studios" }

// SourceLayer is an input class (camera, VT, graphics...) pieces are placed on.
type SourceLayer struct {
	ID           string  `json:"id" toml:"id"`
	Name         string  `json:"name" toml:"name"`
	Type         string  `json:"type" toml:"type"`
	Rank         float64 `json:"rank" toml:"rank"`
	AllowDisable bool    `json:"allowDisable,omitempty" toml:"allow_disable"`
}

// OutputLayer is a destination such as program or preview.
type OutputLayer struct {
	ID    string  `json:"id" toml:"id"`
	Name  string  `json:"name" toml:"name"`
	IsPGM bool    `json:"isPGM,omitempty" toml:"pgm"`
	Rank  float64 `json:"rank" toml:"rank"`
}

// ShowStyleBase defines the layers available to a show.
// Table: show_style_bases
type ShowStyleBase struct {
	ID              ShowStyleBaseID `gorm:"column:id;primaryKey" json:"id"`
	Name            string          `gorm:"column:name" json:"name"`
	BlueprintID     string          `gorm:"column:blueprint_id" json:"blueprintId"`
	SourceLayers    []SourceLayer   `gorm:"column:source_layers;serializer:json" json:"sourceLayers"`
	OutputLayers    []OutputLayer   `gorm:"column:output_layers;serializer:json" json:"outputLayers"`
	BlueprintConfig map[string]any  `gorm:"column:blueprint_config;serializer:json" json:"blueprintConfig,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (ShowStyleBase) TableName() string { return "show_style_bases" }

// SourceLayer looks up a source layer by id.
func (s *ShowStyleBase) SourceLayer(id string) (SourceLayer, bool) {
	for _, l := range s.SourceLayers {
		if l.ID == id {
			return l, true
		}
	}
	return SourceLayer{}, false
}

// ShowStyleVariant is a variation of a show style base.
// Table: show_style_variants
type ShowStyleVariant struct {
	ID              ShowStyleVariantID `gorm:"column:id;primaryKey" json:"id"`
	ShowStyleBaseID ShowStyleBaseID    `gorm:"column:show_style_base_id;index" json:"showStyleBaseId"`
	Name            string             `gorm:"column:name" json:"name"`
	BlueprintConfig map[string]any     `gorm:"column:blueprint_config;serializer:json" json:"blueprintConfig,omitempty"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (ShowStyleVariant) TableName() string { return "show_style_variants" }
