// Package playout implements the playback state machine of rundown
// playlists: activation, next selection, takes, holds and the callbacks of
// the playout gateway. Every operation runs under the playlist lock against
// a cache of the playlist and regenerates the studio timeline before it is
// flushed.
package playout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/metrics"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
	"github.com/bbernstein/sofie-playout-go/internal/services/pubsub"
	"github.com/bbernstein/sofie-playout-go/internal/services/timeline"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

const slowLockWait = time.Second

// Options configure a Service. Unset collaborators get defaults. A zero
// TakeDebounce or AutoNextGuard turns that guard off; a zero LookaheadSettle
// uses lookahead.DefaultSettle.
type Options struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	PubSub     *pubsub.PubSub
	Blueprints *blueprint.Registry
	Configs    *blueprint.ConfigCache
	Locks      *lock.Manager

	// TakeDebounce is the minimum time between two takes.
	TakeDebounce time.Duration
	// AutoNextGuard rejects takes this close to an impending auto-next.
	AutoNextGuard time.Duration
	// LookaheadSettle is passed on to timeline generation.
	LookaheadSettle time.Duration

	Now   func() time.Time
	NewID func() string
}

// Service runs playout operations.
type Service struct {
	store      *store.Store
	log        *slog.Logger
	metrics    *metrics.Metrics
	pubsub     *pubsub.PubSub
	blueprints *blueprint.Registry
	configs    *blueprint.ConfigCache
	locks      *lock.Manager

	takeDebounce  time.Duration
	autoNextGuard time.Duration
	settle        time.Duration

	nowFn func() time.Time
	newID func() string
}

// NewService creates a playout service on st.
func NewService(st *store.Store, opts Options) *Service {
	s := &Service{
		store:         st,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		pubsub:        opts.PubSub,
		blueprints:    opts.Blueprints,
		configs:       opts.Configs,
		locks:         opts.Locks,
		takeDebounce:  opts.TakeDebounce,
		autoNextGuard: opts.AutoNextGuard,
		settle:        opts.LookaheadSettle,
		nowFn:         opts.Now,
		newID:         opts.NewID,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.pubsub == nil {
		s.pubsub = pubsub.New()
	}
	if s.blueprints == nil {
		s.blueprints = blueprint.NewRegistry(nil)
	}
	if s.configs == nil {
		s.configs = blueprint.NewConfigCache(st, blueprint.DefaultConfigTTL)
	}
	if s.locks == nil {
		s.locks = lock.NewManager()
	}
	if s.locks.OnWait == nil {
		s.locks.OnWait = s.observeLockWait
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.newID == nil {
		s.newID = store.NewID
	}
	return s
}

func (s *Service) observeLockWait(key string, priority lock.Priority, wait time.Duration) {
	s.metrics.ObserveLockWait(priority.String(), wait)
	if wait > slowLockWait {
		s.log.Warn("slow lock acquisition", "key", key, "priority", priority.String(), "wait", wait)
	}
}

// Store returns the document store.
func (s *Service) Store() *store.Store {
	return s.store
}

// PubSub returns the change notification hub.
func (s *Service) PubSub() *pubsub.PubSub {
	return s.pubsub
}

// Locks returns the lock manager shared with ingest.
func (s *Service) Locks() *lock.Manager {
	return s.locks
}

func (s *Service) now() int64 {
	return s.nowFn().UnixMilli()
}

// Operation is the body of a playlist operation.
type Operation func(ctx context.Context, c *cache.Cache) error

// RunPlaylist runs op on a fresh cache of the playlist while holding its
// lock, then regenerates the studio timeline and flushes. When op fails
// nothing is written.
func (s *Service) RunPlaylist(ctx context.Context, action string, playlistID models.PlaylistID, priority lock.Priority, op Operation, extraKeys ...string) error {
	keys := append(append([]string(nil), extraKeys...), lock.PlaylistKey(string(playlistID)))
	log := s.log.With("playlist_id", playlistID, "action", action)

	err := s.locks.Run(ctx, priority, func(ctx context.Context) error {
		c, err := cache.Init(ctx, s.store, log, playlistID)
		if err != nil {
			if errors.Is(err, cache.ErrPlaylistNotFound) {
				return reject(ErrNotFound, "Rundown playlist %s not found", playlistID)
			}
			return err
		}
		if err := op(ctx, c); err != nil {
			return err
		}
		s.updateTimeline(c)
		s.deferPlaylistEvent(c)
		return c.SaveAllToDatabase(ctx)
	}, keys...)

	if err != nil {
		if ce, ok := AsClientError(err); ok {
			log.Info("action rejected", "reason", ce.Key, "message", ce.Message)
			s.metrics.IncRejected(ce.Key)
		} else {
			log.Error("action failed", "error", err)
		}
	}
	return err
}

// updateTimeline regenerates the studio timeline inside the operation.
func (s *Service) updateTimeline(c *cache.Cache) {
	studioID := c.Playlist().StudioID
	if studioID == "" {
		return
	}
	res := timeline.UpdateTimeline(c, studioID, timeline.Options{
		Settle: s.settle.Milliseconds(),
		Now:    s.nowFn,
	})
	if !res.Changed {
		return
	}
	tl := res.Timeline
	c.Defer(func(context.Context) {
		s.metrics.ObserveTimeline(len(tl.Objects))
		s.pubsub.Publish(pubsub.TopicTimeline, string(tl.ID), &tl)
	})
}

func (s *Service) deferPlaylistEvent(c *cache.Cache) {
	c.Defer(func(context.Context) {
		p, ok := c.Playlists.FindOne(c.PlaylistID)
		if !ok {
			return
		}
		s.pubsub.Publish(pubsub.TopicPlaylist, string(p.ID), pubsub.NewPlaylistEvent(&p))
	})
}

// blueprintFor returns the blueprint of a rundown and the context to call it with.
func (s *Service) blueprintFor(ctx context.Context, c *cache.Cache, rundownID models.RundownID) (blueprint.ShowStyleBlueprint, *blueprint.Context) {
	rd, _ := c.Rundowns.FindOne(rundownID)
	showStyle, _ := c.ShowStyleFor(rundownID)

	cfg, err := s.configs.Get(ctx, c.Studio.ID, rd.ShowStyleBaseID, rd.ShowStyleVariantID)
	if err != nil {
		c.Logger().Warn("blueprint config unavailable", "rundown_id", rundownID, "error", err)
	}

	bc := &blueprint.Context{
		Studio:    c.Studio,
		ShowStyle: showStyle,
		Playlist:  c.Playlist(),
		Rundown:   rd,
		Config:    cfg,
		Log:       c.Logger().With("blueprint", showStyle.BlueprintID, "rundown_id", rundownID),
	}
	if cur, ok := c.CurrentPartInstance(); ok {
		bc.Current = &cur
	}
	if next, ok := c.NextPartInstance(); ok {
		bc.Next = &next
	}
	return s.blueprints.Get(showStyle), bc
}

// runHook calls a fire-and-forget blueprint callback. Failures are logged
// and counted but never fail the operation.
func (s *Service) runHook(ctx context.Context, c *cache.Cache, name string, rundownID models.RundownID, call func(bp blueprint.ShowStyleBlueprint, bc *blueprint.Context) error) {
	bp, bc := s.blueprintFor(ctx, c, rundownID)
	if err := call(bp, bc); err != nil {
		s.metrics.IncBlueprintErrors(name)
		c.Logger().Error("blueprint callback failed", "callback", name, "rundown_id", rundownID, "error", err)
	}
}

// firstRundownID returns the rundown to run playlist-wide hooks for.
func firstRundownID(c *cache.Cache) models.RundownID {
	if pi, ok := c.CurrentPartInstance(); ok {
		return pi.RundownID
	}
	if pi, ok := c.NextPartInstance(); ok {
		return pi.RundownID
	}
	if rundowns := c.OrderedRundowns(); len(rundowns) > 0 {
		return rundowns[0].ID
	}
	return ""
}
