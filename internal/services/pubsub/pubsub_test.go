package pubsub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

func drain(ch chan interface{}) []interface{} {
	var out []interface{}
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestSubscribe_AssignsUniqueIDs(t *testing.T) {
	ps := New()
	a := ps.Subscribe(TopicTimeline, "studio0", 1)
	b := ps.Subscribe(TopicTimeline, "studio0", 1)
	c := ps.Subscribe(TopicPlaylist, "", 1)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, b.ID, c.ID)
	assert.Equal(t, 2, ps.SubscriberCount(TopicTimeline))
	assert.Equal(t, 1, ps.SubscriberCount(TopicPlaylist))
	assert.Zero(t, ps.SubscriberCount(TopicNowPlaying))
}

func TestPublish_Filters(t *testing.T) {
	ps := New()
	studio0 := ps.Subscribe(TopicTimeline, "studio0", 4)
	studio1 := ps.Subscribe(TopicTimeline, "studio1", 4)
	all := ps.Subscribe(TopicTimeline, "", 4)
	other := ps.Subscribe(TopicPlaylist, "studio0", 4)

	tl := &models.Timeline{ID: "studio0"}
	ps.Publish(TopicTimeline, "studio0", tl)

	assert.Equal(t, []interface{}{tl}, drain(studio0.Channel))
	assert.Empty(t, drain(studio1.Channel))
	assert.Equal(t, []interface{}{tl}, drain(all.Channel))
	assert.Empty(t, drain(other.Channel))

	// an unfiltered publish reaches every subscriber of the topic
	ps.Publish(TopicTimeline, "", tl)
	assert.Len(t, drain(studio0.Channel), 1)
	assert.Len(t, drain(studio1.Channel), 1)
}

func TestPublish_FullChannelDropsMessage(t *testing.T) {
	ps := New()
	sub := ps.Subscribe(TopicNowPlaying, "rd0", 1)

	first := NowPlayingEvent{RundownID: "rd0", PartExternalID: "a", Time: 1}
	second := NowPlayingEvent{RundownID: "rd0", PartExternalID: "b", Time: 2}
	ps.Publish(TopicNowPlaying, "rd0", first)
	ps.Publish(TopicNowPlaying, "rd0", second)

	assert.Equal(t, []interface{}{first}, drain(sub.Channel))
}

func TestUnsubscribe(t *testing.T) {
	ps := New()
	keep := ps.Subscribe(TopicPlaylist, "playlist0", 1)
	sub := ps.Subscribe(TopicPlaylist, "playlist0", 1)

	ps.Unsubscribe(sub)
	_, open := <-sub.Channel
	assert.False(t, open, "channel is closed")
	assert.Equal(t, 1, ps.SubscriberCount(TopicPlaylist))

	// twice is harmless, and publishing afterwards does not panic
	ps.Unsubscribe(sub)
	ps.Publish(TopicPlaylist, "playlist0", PlaylistEvent{PlaylistID: "playlist0"})
	assert.Len(t, drain(keep.Channel), 1)
}

func TestNewPlaylistEvent(t *testing.T) {
	p := &models.RundownPlaylist{
		ID:                     "playlist0",
		Active:                 true,
		Rehearsal:              true,
		HoldState:              models.HoldPending,
		CurrentPartInstanceID:  "pi1",
		NextPartInstanceID:     "pi2",
		PreviousPartInstanceID: "pi0",
	}
	assert.Equal(t, PlaylistEvent{
		PlaylistID:             "playlist0",
		Active:                 true,
		Rehearsal:              true,
		HoldState:              models.HoldPending,
		CurrentPartInstanceID:  "pi1",
		NextPartInstanceID:     "pi2",
		PreviousPartInstanceID: "pi0",
	}, NewPlaylistEvent(p))
}

func TestConcurrentOperations(t *testing.T) {
	ps := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := ps.Subscribe(TopicTimeline, "studio0", 8)
			ps.Publish(TopicTimeline, "studio0", &models.Timeline{ID: "studio0"})
			ps.Unsubscribe(sub)
		}()
	}
	wg.Wait()
	require.Zero(t, ps.SubscriberCount(TopicTimeline))
}
