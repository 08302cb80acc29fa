package playout

import (
	"context"
	"fmt"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/blueprint"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
	"github.com/bbernstein/sofie-playout-go/internal/services/pubsub"
)

// Take puts the next part instance on air.
func (s *Service) Take(ctx context.Context, playlistID models.PlaylistID) error {
	return s.RunPlaylist(ctx, "take", playlistID, lock.PriorityUserPlayout, func(ctx context.Context, c *cache.Cache) error {
		now := s.now()
		if err := s.checkTake(c, now); err != nil {
			return err
		}
		return s.takeNext(ctx, c, now)
	})
}

// checkTake rejects takes that are not allowed right now.
func (s *Service) checkTake(c *cache.Cache, now int64) error {
	p := c.Playlist()
	if !p.Active {
		return reject(ErrPlaylistNotActive, "Rundown playlist %s is not active", p.ID)
	}
	if _, ok := c.NextPartInstance(); !ok {
		return reject(ErrNoNextPart, "Rundown playlist %s has no next part", p.ID)
	}
	if p.LastTakeTime != nil && now-*p.LastTakeTime < s.takeDebounce.Milliseconds() {
		return reject(ErrTakeTooSoon, "Take was rejected because the previous take was %dms ago", now-*p.LastTakeTime)
	}

	current, ok := c.CurrentPartInstance()
	if !ok {
		return nil
	}
	if take := current.Timings.Take; take != nil && current.Part.TransitionDuration > 0 && now < *take+current.Part.TransitionDuration {
		return reject(ErrTransitionInProgress, "Take was rejected because the transition of part %s is still running", current.PartID)
	}
	if start, ok := partStartedAt(current); ok && current.Part.AutoNext && current.Part.ExpectedDuration > 0 {
		remaining := start + current.Part.ExpectedDuration - now
		if remaining >= 0 && remaining < s.autoNextGuard.Milliseconds() {
			return reject(ErrTakeTooSoon, "Take was rejected because an auto-next is due in %dms", remaining)
		}
	}
	return nil
}

// takeNext rotates the part instance pointers and prepares the new next
// part. It is shared by user takes and auto-nexts reported by the gateway.
func (s *Service) takeNext(ctx context.Context, c *cache.Cache, now int64) error {
	p := c.Playlist()

	switch p.HoldState {
	case models.HoldComplete:
		c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.HoldState = models.HoldNone })
	case models.HoldActive:
		// this take ends the hold instead of moving on
		c.UpdatePlaylist(func(p *models.RundownPlaylist) {
			p.HoldState = models.HoldComplete
			p.LastTakeTime = &now
		})
		return nil
	}
	enteringHold := p.HoldState == models.HoldPending

	next, ok := c.NextPartInstance()
	if !ok {
		return reject(ErrNoNextPart, "Rundown playlist %s has no next part", p.ID)
	}
	current, hasCurrent := c.CurrentPartInstance()

	bp, bc := s.blueprintFor(ctx, c, next.RundownID)
	if err := bp.OnPreTake(ctx, bc); err != nil {
		s.metrics.IncBlueprintErrors("onPreTake")
		c.Logger().Error("blueprint callback failed", "callback", "onPreTake", "error", err)
	}

	if hasCurrent {
		outBP, outBC := s.blueprintFor(ctx, c, current.RundownID)
		endState, err := outBP.GetEndStateForPart(ctx, outBC, blueprint.EndStateInput{
			PreviousPersistentState: p.PreviousPersistentState,
			PreviousEndState:        current.PreviousPartEndState,
			ResolvedPieces:          c.PieceInstancesOf(current.ID),
			Now:                     now,
		})
		if err != nil {
			s.metrics.IncBlueprintErrors("getEndStateForPart")
			return fmt.Errorf("end state of part instance %s: %w", current.ID, err)
		}
		if endState != nil {
			c.PartInstances.Update(next.ID, func(pi *models.PartInstance) { pi.PreviousPartEndState = endState })
			c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.PreviousPersistentState = endState })
		}
	}

	playOffset := int64(0)
	if p.NextTimeOffset != nil {
		playOffset = *p.NextTimeOffset
	}
	c.UpdatePlaylist(func(p *models.RundownPlaylist) {
		p.PreviousPartInstanceID = p.CurrentPartInstanceID
		p.CurrentPartInstanceID = next.ID
		p.NextPartInstanceID = ""
		p.NextPartManual = false
		p.NextTimeOffset = nil
		p.LastTakeTime = &now
		if enteringHold {
			p.HoldState = models.HoldActive
		}
	})

	takeCount := 0
	if hasCurrent {
		takeCount = current.TakeCount + 1
	}
	c.PartInstances.Update(next.ID, func(pi *models.PartInstance) {
		pi.TakeCount = takeCount
		pi.Timings.Take = &now
		pi.Timings.PlayOffset = &playOffset
	})
	c.Parts.Update(next.PartID, func(part *models.Part) {
		part.Timings.Take = append(part.Timings.Take, now)
		part.Timings.PlayOffset = append(part.Timings.PlayOffset, playOffset)
	})
	if hasCurrent {
		c.PartInstances.Update(current.ID, func(pi *models.PartInstance) { pi.Timings.TakeOut = &now })
		c.Parts.Update(current.PartID, func(part *models.Part) {
			part.Timings.TakeOut = append(part.Timings.TakeOut, now)
		})

		if err := s.copyOverflow(c, current, next, now); err != nil {
			return err
		}
		if enteringHold {
			if err := s.extendOnHold(c, current, next); err != nil {
				return err
			}
		}
	}

	taken, _ := c.PartInstance(next.ID)
	if part, ok := selectNextPart(c, &taken, p.Loop); ok {
		if err := s.setNextPart(c, &part, false, nil); err != nil {
			return err
		}
	}

	s.notifyNowPlaying(c, taken, now)

	firstTake := len(c.PartInstances.Find(func(pi *models.PartInstance) bool {
		return pi.RundownID == taken.RundownID && pi.ID != taken.ID && pi.Timings.Take != nil
	})) == 0
	rundownID := taken.RundownID
	c.Defer(func(ctx context.Context) {
		s.metrics.IncTakes()
		if firstTake {
			s.runHook(ctx, c, "onRundownFirstTake", rundownID, func(bp blueprint.ShowStyleBlueprint, bc *blueprint.Context) error {
				return bp.OnRundownFirstTake(ctx, bc)
			})
		}
		s.runHook(ctx, c, "onPostTake", rundownID, func(bp blueprint.ShowStyleBlueprint, bc *blueprint.Context) error {
			return bp.OnPostTake(ctx, bc)
		})
	})
	return nil
}

// copyOverflow continues pieces of the outgoing part that are marked to
// overflow and have not finished yet, for their remaining duration.
func (s *Service) copyOverflow(c *cache.Cache, outgoing, incoming models.PartInstance, now int64) error {
	start, ok := partStartedAt(outgoing)
	if !ok {
		return nil
	}
	played := now - start

	for _, pi := range c.PieceInstancesOf(outgoing.ID) {
		if !pi.Piece.Overflows || pi.Disabled || pi.Infinite != nil || pi.Piece.Enable.Start >= played {
			continue
		}
		end := pi.EndsAt()
		if end == nil || *end <= played {
			continue
		}
		piece := pi.Piece
		piece.Enable = models.PieceEnable{Start: 0, Duration: models.Int64Ptr(*end - played)}
		err := c.PieceInstances.Insert(models.PieceInstance{
			ID:             models.PieceInstanceID(s.newID()),
			RundownID:      incoming.RundownID,
			PartInstanceID: incoming.ID,
			PieceID:        pi.PieceID,
			Piece:          piece,
		})
		if err != nil {
			return fmt.Errorf("copy overflow piece %s: %w", pi.PieceID, err)
		}
	}
	return nil
}

// extendOnHold turns the extend-on-hold pieces of the outgoing part into
// infinites that continue in the incoming part until the hold completes.
func (s *Service) extendOnHold(c *cache.Cache, outgoing, incoming models.PartInstance) error {
	for _, pi := range c.PieceInstancesOf(outgoing.ID) {
		if !pi.Piece.ExtendOnHold || pi.Disabled || pi.Infinite != nil {
			continue
		}
		infiniteID := s.newID()
		c.PieceInstances.Update(pi.ID, func(p *models.PieceInstance) {
			p.Infinite = &models.PieceInstanceInfinite{
				InfiniteInstanceID: infiniteID,
				InfinitePieceID:    pi.PieceID,
				FromHold:           true,
			}
		})

		piece := pi.Piece
		piece.Enable = models.PieceEnable{Start: 0}
		err := c.PieceInstances.Insert(models.PieceInstance{
			ID:              models.PieceInstanceID(s.newID()),
			RundownID:       incoming.RundownID,
			PartInstanceID:  incoming.ID,
			PieceID:         pi.PieceID,
			Piece:           piece,
			StartedPlayback: pi.StartedPlayback,
			Infinite: &models.PieceInstanceInfinite{
				InfiniteInstanceID: infiniteID,
				InfinitePieceID:    pi.PieceID,
				FromPrevious:       true,
				FromHold:           true,
			},
		})
		if err != nil {
			return fmt.Errorf("extend piece %s on hold: %w", pi.PieceID, err)
		}
	}
	return nil
}

// notifyNowPlaying records the part that went on air on its rundown and
// tells ingest about it after the flush.
func (s *Service) notifyNowPlaying(c *cache.Cache, pi models.PartInstance, now int64) {
	if !pi.Part.ShouldNotifyCurrentPlayingPart || c.Playlist().Rehearsal {
		return
	}
	rd, ok := c.Rundowns.FindOne(pi.RundownID)
	if !ok || rd.NotifiedCurrentPlayingPartExternalID == pi.Part.ExternalID {
		return
	}
	c.Rundowns.Update(rd.ID, func(r *models.Rundown) {
		r.NotifiedCurrentPlayingPartExternalID = pi.Part.ExternalID
	})
	event := pubsub.NowPlayingEvent{RundownID: rd.ID, PartExternalID: pi.Part.ExternalID, Time: now}
	c.Defer(func(context.Context) {
		s.pubsub.Publish(pubsub.TopicNowPlaying, string(rd.ID), event)
	})
}
