// Package pubsub distributes committed playout changes to in-process
// listeners such as the timeline feed.
package pubsub

import (
	"strconv"
	"sync"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

// Topic represents a subscription topic.
type Topic string

const (
	// TopicTimeline carries *models.Timeline, filtered by studio id.
	TopicTimeline Topic = "TIMELINE_UPDATED"
	// TopicPlaylist carries PlaylistEvent, filtered by playlist id.
	TopicPlaylist Topic = "PLAYLIST_UPDATED"
	// TopicNowPlaying carries NowPlayingEvent, filtered by rundown id.
	TopicNowPlaying Topic = "NOW_PLAYING"
)

// PlaylistEvent describes the playback pointers of a playlist after an operation.
type PlaylistEvent struct {
	PlaylistID             models.PlaylistID     `json:"playlistId"`
	Active                 bool                  `json:"active"`
	Rehearsal              bool                  `json:"rehearsal"`
	HoldState              models.HoldState      `json:"holdState,omitempty"`
	CurrentPartInstanceID  models.PartInstanceID `json:"currentPartInstanceId,omitempty"`
	NextPartInstanceID     models.PartInstanceID `json:"nextPartInstanceId,omitempty"`
	PreviousPartInstanceID models.PartInstanceID `json:"previousPartInstanceId,omitempty"`
}

// NewPlaylistEvent captures the pointers of p.
func NewPlaylistEvent(p *models.RundownPlaylist) PlaylistEvent {
	return PlaylistEvent{
		PlaylistID:             p.ID,
		Active:                 p.Active,
		Rehearsal:              p.Rehearsal,
		HoldState:              p.HoldState,
		CurrentPartInstanceID:  p.CurrentPartInstanceID,
		NextPartInstanceID:     p.NextPartInstanceID,
		PreviousPartInstanceID: p.PreviousPartInstanceID,
	}
}

// NowPlayingEvent tells ingest which part went on air.
type NowPlayingEvent struct {
	RundownID      models.RundownID `json:"rundownId"`
	PartExternalID string           `json:"partExternalId"`
	Time           int64            `json:"time"`
}

// Subscriber represents a subscription channel.
type Subscriber struct {
	ID      string
	Topic   Topic
	Filter  string // Optional filter value (e.g., studioId, playlistId)
	Channel chan interface{}
}

// PubSub manages subscriptions and message distribution.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*Subscriber
	nextID      int
}

// New creates a new PubSub instance.
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[Topic][]*Subscriber),
	}
}

// Subscribe creates a new subscription for a topic.
func (ps *PubSub) Subscribe(topic Topic, filter string, bufferSize int) *Subscriber {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.nextID++
	sub := &Subscriber{
		ID:      strconv.Itoa(ps.nextID),
		Topic:   topic,
		Filter:  filter,
		Channel: make(chan interface{}, bufferSize),
	}

	ps.subscribers[topic] = append(ps.subscribers[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (ps *PubSub) Unsubscribe(sub *Subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subscribers[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.Channel)
			ps.subscribers[sub.Topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish sends a message to all subscribers of a topic.
// If filter is non-empty, only sends to subscribers with matching filter or empty filter.
// Sends never block; a subscriber with a full channel misses the message.
func (ps *PubSub) Publish(topic Topic, filter string, message interface{}) {
	// held while sending so that Unsubscribe cannot close a channel mid-send
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subscribers[topic] {
		if sub.Filter == "" || filter == "" || sub.Filter == filter {
			select {
			case sub.Channel <- message:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}
