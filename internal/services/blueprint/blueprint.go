// Package blueprint defines the callbacks a show style supplies to playout
// and the registry they are looked up in.
package blueprint

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// Context is what a callback gets to see of the playlist it runs for.
type Context struct {
	Studio    models.Studio
	ShowStyle models.ShowStyleBase
	Playlist  models.RundownPlaylist
	Rundown   models.Rundown
	// Config is the merged blueprint configuration of studio and show style.
	Config map[string]any
	// Current and Next are unset when there is no such part instance.
	Current *models.PartInstance
	Next    *models.PartInstance
	Log     *slog.Logger
}

// EndStateInput is passed to GetEndStateForPart.
type EndStateInput struct {
	PreviousPersistentState map[string]any
	PreviousEndState        map[string]any
	ResolvedPieces          []models.PieceInstance
	Now                     int64
}

// ShowStyleBlueprint is the playout contract of a show style.
type ShowStyleBlueprint interface {
	// GetEndStateForPart samples the state of a part as it is taken off air.
	GetEndStateForPart(ctx context.Context, bc *Context, in EndStateInput) (map[string]any, error)
	OnPreTake(ctx context.Context, bc *Context) error
	OnPostTake(ctx context.Context, bc *Context) error
	OnRundownFirstTake(ctx context.Context, bc *Context) error
	OnRundownActivate(ctx context.Context, bc *Context) error
	OnRundownDeActivate(ctx context.Context, bc *Context) error
}

// Base implements every callback as a no-op. Embed it to implement only
// some of them.
type Base struct{}

func (Base) GetEndStateForPart(context.Context, *Context, EndStateInput) (map[string]any, error) {
	return nil, nil
}
func (Base) OnPreTake(context.Context, *Context) error           { return nil }
func (Base) OnPostTake(context.Context, *Context) error          { return nil }
func (Base) OnRundownFirstTake(context.Context, *Context) error  { return nil }
func (Base) OnRundownActivate(context.Context, *Context) error   { return nil }
func (Base) OnRundownDeActivate(context.Context, *Context) error { return nil }

// Registry maps blueprint ids to implementations.
type Registry struct {
	mu         sync.RWMutex
	blueprints map[string]ShowStyleBlueprint
	fallback   ShowStyleBlueprint
}

// NewRegistry creates a registry whose unknown ids resolve to fallback, or
// to Base when fallback is nil.
func NewRegistry(fallback ShowStyleBlueprint) *Registry {
	if fallback == nil {
		fallback = Base{}
	}
	return &Registry{blueprints: make(map[string]ShowStyleBlueprint), fallback: fallback}
}

// Register adds or replaces a blueprint.
func (r *Registry) Register(id string, bp ShowStyleBlueprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blueprints[id] = bp
}

// Get returns the blueprint of a show style.
func (r *Registry) Get(showStyle models.ShowStyleBase) ShowStyleBlueprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bp, ok := r.blueprints[showStyle.BlueprintID]; ok {
		return bp
	}
	return r.fallback
}
