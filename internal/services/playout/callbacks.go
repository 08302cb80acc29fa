package playout

import (
	"context"
	"fmt"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/cache"
	"github.com/bbernstein/sofie-playout-go/internal/services/lock"
)

// runForRundown runs op on the playlist of a rundown. The gateway reports
// playback by rundown; times are wall clock milliseconds.
func (s *Service) runForRundown(ctx context.Context, action string, rundownID models.RundownID, op Operation) error {
	rd, err := s.store.Rundowns.FindByID(ctx, string(rundownID))
	if err != nil {
		return fmt.Errorf("load rundown: %w", err)
	}
	if rd == nil {
		return reject(ErrNotFound, "Rundown %s not found", rundownID)
	}
	return s.RunPlaylist(ctx, action, rd.PlaylistID, lock.PriorityUserPlayout, op)
}

// OnPartPlaybackStarted records that a part instance went on air. When it is
// the next part instance the gateway played an auto-next, and the pointers
// are rotated as for a take.
func (s *Service) OnPartPlaybackStarted(ctx context.Context, rundownID models.RundownID, partInstanceID models.PartInstanceID, at int64) error {
	return s.runForRundown(ctx, "onPartPlaybackStarted", rundownID, func(ctx context.Context, c *cache.Cache) error {
		pi, ok := c.PartInstance(partInstanceID)
		if !ok {
			return reject(ErrNotFound, "Part instance %s not found", partInstanceID)
		}

		p := c.Playlist()
		switch partInstanceID {
		case p.NextPartInstanceID:
			if err := s.takeNext(ctx, c, at); err != nil {
				return err
			}
		case p.CurrentPartInstanceID:
		default:
			c.Logger().Warn("playback started for a part instance that is not current or next", "part_instance_id", partInstanceID)
		}

		if pi.Timings.StartedPlayback == nil {
			c.PartInstances.Update(pi.ID, func(x *models.PartInstance) {
				x.Timings.StartedPlayback = &at
			})
			c.Parts.Update(pi.PartID, func(part *models.Part) {
				part.Timings.StartedPlayback = append(part.Timings.StartedPlayback, at)
			})
		}
		if p.StartedPlayback == nil && p.Active {
			c.UpdatePlaylist(func(p *models.RundownPlaylist) { p.StartedPlayback = &at })
		}
		return nil
	})
}

// OnPartPlaybackStopped records that a part instance went off air.
func (s *Service) OnPartPlaybackStopped(ctx context.Context, rundownID models.RundownID, partInstanceID models.PartInstanceID, at int64) error {
	return s.runForRundown(ctx, "onPartPlaybackStopped", rundownID, func(ctx context.Context, c *cache.Cache) error {
		pi, ok := c.PartInstance(partInstanceID)
		if !ok {
			return reject(ErrNotFound, "Part instance %s not found", partInstanceID)
		}
		if pi.Timings.StoppedPlayback != nil {
			return nil
		}
		c.PartInstances.Update(pi.ID, func(x *models.PartInstance) { x.Timings.StoppedPlayback = &at })
		c.Parts.Update(pi.PartID, func(part *models.Part) {
			part.Timings.StoppedPlayback = append(part.Timings.StoppedPlayback, at)
		})
		return nil
	})
}

// OnPiecePlaybackStarted records that a piece instance started playing. For
// an infinite every instance of the same continuation shares the start.
func (s *Service) OnPiecePlaybackStarted(ctx context.Context, rundownID models.RundownID, pieceInstanceID models.PieceInstanceID, at int64) error {
	return s.runForRundown(ctx, "onPiecePlaybackStarted", rundownID, func(ctx context.Context, c *cache.Cache) error {
		pi, ok := c.PieceInstances.FindOne(pieceInstanceID)
		if !ok {
			return reject(ErrNotFound, "Piece instance %s not found", pieceInstanceID)
		}
		if pi.StartedPlayback != nil {
			return nil
		}
		if pi.Infinite == nil {
			c.PieceInstances.Update(pi.ID, func(x *models.PieceInstance) { x.StartedPlayback = &at })
			return nil
		}
		infiniteID := pi.Infinite.InfiniteInstanceID
		c.PieceInstances.UpdateAll(
			func(x *models.PieceInstance) bool {
				return x.Infinite != nil && x.Infinite.InfiniteInstanceID == infiniteID && x.StartedPlayback == nil
			},
			func(x *models.PieceInstance) { x.StartedPlayback = &at },
		)
		return nil
	})
}

// OnPiecePlaybackStopped records that a piece instance stopped playing.
func (s *Service) OnPiecePlaybackStopped(ctx context.Context, rundownID models.RundownID, pieceInstanceID models.PieceInstanceID, at int64) error {
	return s.runForRundown(ctx, "onPiecePlaybackStopped", rundownID, func(ctx context.Context, c *cache.Cache) error {
		pi, ok := c.PieceInstances.FindOne(pieceInstanceID)
		if !ok {
			return reject(ErrNotFound, "Piece instance %s not found", pieceInstanceID)
		}
		if pi.StoppedPlayback == nil {
			c.PieceInstances.Update(pi.ID, func(x *models.PieceInstance) { x.StoppedPlayback = &at })
		}
		return nil
	})
}
