// Package studioconfig loads studios and show styles from a TOML file and
// writes them to the store.
package studioconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

// File is the content of a studio configuration file.
type File struct {
	Studios    []Studio    `toml:"studio"`
	ShowStyles []ShowStyle `toml:"show_style"`
}

// Studio describes a studio and its device mappings.
type Studio struct {
	ID       string                    `toml:"id"`
	Name     string                    `toml:"name"`
	Mappings map[string]models.Mapping `toml:"mappings"`
	Config   map[string]any            `toml:"config"`
}

// ShowStyle describes a show style base with its variants.
type ShowStyle struct {
	ID           string               `toml:"id"`
	Name         string               `toml:"name"`
	Blueprint    string               `toml:"blueprint"`
	SourceLayers []models.SourceLayer `toml:"source_layer"`
	OutputLayers []models.OutputLayer `toml:"output_layer"`
	Config       map[string]any       `toml:"config"`
	Variants     []Variant            `toml:"variant"`
}

// Variant is a show style variant.
type Variant struct {
	ID     string         `toml:"id"`
	Name   string         `toml:"name"`
	Config map[string]any `toml:"config"`
}

// Load reads and validates a configuration file.
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open studio config: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes and validates a configuration. Unknown keys are an error.
func Parse(r io.Reader) (*File, error) {
	var f File
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse studio config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids and lookahead modes. Mappings without a lookahead
// mode get NONE.
func (f *File) Validate() error {
	studios := make(map[string]bool)
	for i := range f.Studios {
		s := &f.Studios[i]
		if s.ID == "" {
			return fmt.Errorf("studio %d: missing id", i)
		}
		if studios[s.ID] {
			return fmt.Errorf("studio %s: defined twice", s.ID)
		}
		studios[s.ID] = true

		for layer, m := range s.Mappings {
			switch m.LookaheadMode {
			case "":
				m.LookaheadMode = models.LookaheadNone
				s.Mappings[layer] = m
			case models.LookaheadNone, models.LookaheadPreload, models.LookaheadWhenClear:
			default:
				return fmt.Errorf("studio %s: mapping %s: unknown lookahead mode %q", s.ID, layer, m.LookaheadMode)
			}
			if m.LookaheadDepth < 0 {
				return fmt.Errorf("studio %s: mapping %s: negative lookahead depth", s.ID, layer)
			}
		}
	}

	showStyles := make(map[string]bool)
	variants := make(map[string]bool)
	for i, ss := range f.ShowStyles {
		if ss.ID == "" {
			return fmt.Errorf("show style %d: missing id", i)
		}
		if showStyles[ss.ID] {
			return fmt.Errorf("show style %s: defined twice", ss.ID)
		}
		showStyles[ss.ID] = true

		layers := make(map[string]bool)
		for _, l := range ss.SourceLayers {
			if l.ID == "" || layers[l.ID] {
				return fmt.Errorf("show style %s: source layer ids must be set and unique", ss.ID)
			}
			layers[l.ID] = true
		}
		for _, v := range ss.Variants {
			if v.ID == "" || variants[v.ID] {
				return fmt.Errorf("show style %s: variant ids must be set and unique", ss.ID)
			}
			variants[v.ID] = true
		}
	}
	return nil
}

// Apply upserts everything in f in one transaction and drops the cached
// blueprint configuration of what changed. configs may be nil.
func Apply(ctx context.Context, st *store.Store, configs *blueprint.ConfigCache, f *File) error {
	err := st.Transaction(ctx, func(tx *store.Store) error {
		for _, s := range f.Studios {
			studio := models.Studio{
				ID:              models.StudioID(s.ID),
				Name:            s.Name,
				Mappings:        s.Mappings,
				BlueprintConfig: s.Config,
			}
			if studio.Name == "" {
				studio.Name = s.ID
			}
			if existing, err := tx.Studios.FindByID(ctx, s.ID); err != nil {
				return err
			} else if existing != nil {
				studio.CreatedAt = existing.CreatedAt
			}
			if err := tx.Studios.Save(ctx, &studio); err != nil {
				return fmt.Errorf("save studio %s: %w", s.ID, err)
			}
		}

		for _, ss := range f.ShowStyles {
			base := models.ShowStyleBase{
				ID:              models.ShowStyleBaseID(ss.ID),
				Name:            ss.Name,
				BlueprintID:     ss.Blueprint,
				SourceLayers:    ss.SourceLayers,
				OutputLayers:    ss.OutputLayers,
				BlueprintConfig: ss.Config,
			}
			if existing, err := tx.ShowStyleBases.FindByID(ctx, ss.ID); err != nil {
				return err
			} else if existing != nil {
				base.CreatedAt = existing.CreatedAt
			}
			if err := tx.ShowStyleBases.Save(ctx, &base); err != nil {
				return fmt.Errorf("save show style %s: %w", ss.ID, err)
			}

			for _, v := range ss.Variants {
				variant := models.ShowStyleVariant{
					ID:              models.ShowStyleVariantID(v.ID),
					ShowStyleBaseID: base.ID,
					Name:            v.Name,
					BlueprintConfig: v.Config,
				}
				if err := tx.ShowStyleVariants.Save(ctx, &variant); err != nil {
					return fmt.Errorf("save variant %s: %w", v.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if configs != nil {
		for _, s := range f.Studios {
			configs.InvalidateStudio(models.StudioID(s.ID))
		}
		for _, ss := range f.ShowStyles {
			configs.InvalidateShowStyle(models.ShowStyleBaseID(ss.ID))
		}
	}
	return nil
}
