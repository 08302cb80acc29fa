package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
	"github.com/bbernstein/sofie-playout-go/internal/services/pubsub"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 10 * time.Second
	feedBuffer   = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the gateway is not a browser
	CheckOrigin: func(r *http.Request) bool { return true },
}

type playbackRequest struct {
	// Time is when playback changed, in wall clock milliseconds. Zero means now.
	Time int64 `json:"time"`
}

type playbackCallback func(ctx context.Context, rundownID models.RundownID, instanceID string, at int64) error

func (h *handler) playback(w http.ResponseWriter, r *http.Request, call playbackCallback) {
	var req playbackRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	at := req.Time
	if at == 0 {
		at = h.now().UnixMilli()
	}
	rundownID := models.RundownID(chi.URLParam(r, "rundownId"))
	h.respond(w, nil, call(r.Context(), rundownID, chi.URLParam(r, "instanceId"), at))
}

func (h *handler) partStarted(w http.ResponseWriter, r *http.Request) {
	h.playback(w, r, func(ctx context.Context, rd models.RundownID, id string, at int64) error {
		return h.playout.OnPartPlaybackStarted(ctx, rd, models.PartInstanceID(id), at)
	})
}

func (h *handler) partStopped(w http.ResponseWriter, r *http.Request) {
	h.playback(w, r, func(ctx context.Context, rd models.RundownID, id string, at int64) error {
		return h.playout.OnPartPlaybackStopped(ctx, rd, models.PartInstanceID(id), at)
	})
}

func (h *handler) pieceStarted(w http.ResponseWriter, r *http.Request) {
	h.playback(w, r, func(ctx context.Context, rd models.RundownID, id string, at int64) error {
		return h.playout.OnPiecePlaybackStarted(ctx, rd, models.PieceInstanceID(id), at)
	})
}

func (h *handler) pieceStopped(w http.ResponseWriter, r *http.Request) {
	h.playback(w, r, func(ctx context.Context, rd models.RundownID, id string, at int64) error {
		return h.playout.OnPiecePlaybackStopped(ctx, rd, models.PieceInstanceID(id), at)
	})
}

func (h *handler) loadTimeline(ctx context.Context, studioID string) (*models.Timeline, error) {
	tl, err := h.playout.Store().Timelines.FindByID(ctx, studioID)
	if err != nil {
		return nil, err
	}
	if tl == nil {
		return nil, playout.Rejectf(playout.ErrNotFound, "No timeline for studio %s", studioID)
	}
	return tl, nil
}

func (h *handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := h.loadTimeline(r.Context(), chi.URLParam(r, "studioId"))
	if err != nil {
		h.respond(w, nil, err)
		return
	}
	h.respond(w, tl, nil)
}

// TimelineMessage is pushed on the timeline feed.
type TimelineMessage struct {
	Type     string           `json:"type"`
	Timeline *models.Timeline `json:"timeline"`
}

// PlaylistMessage is pushed on the playlist feed.
type PlaylistMessage struct {
	Type     string               `json:"type"`
	Playlist pubsub.PlaylistEvent `json:"playlist"`
}

// timelineFeed pushes the studio timeline to the gateway on connect and on
// every change.
func (h *handler) timelineFeed(w http.ResponseWriter, r *http.Request) {
	studioID := chi.URLParam(r, "studioId")
	h.serveFeed(w, r, pubsub.TopicTimeline, studioID,
		func(ctx context.Context) (any, bool) {
			tl, err := h.loadTimeline(ctx, studioID)
			if err != nil {
				return nil, false
			}
			return TimelineMessage{Type: "timeline", Timeline: tl}, true
		},
		func(msg any) (any, bool) {
			tl, ok := msg.(*models.Timeline)
			return TimelineMessage{Type: "timeline", Timeline: tl}, ok
		})
}

// playlistFeed pushes the playback pointers of a playlist after every
// operation on it.
func (h *handler) playlistFeed(w http.ResponseWriter, r *http.Request) {
	id := playlistID(r)
	h.serveFeed(w, r, pubsub.TopicPlaylist, string(id),
		func(ctx context.Context) (any, bool) {
			p, err := h.playout.Store().Playlists.FindByID(ctx, string(id))
			if err != nil || p == nil {
				return nil, false
			}
			return PlaylistMessage{Type: "playlist", Playlist: pubsub.NewPlaylistEvent(p)}, true
		},
		func(msg any) (any, bool) {
			ev, ok := msg.(pubsub.PlaylistEvent)
			return PlaylistMessage{Type: "playlist", Playlist: ev}, ok
		})
}

// serveFeed upgrades to a websocket and relays a topic until the client goes
// away. initial, when it reports true, is sent first. The subscription is
// taken before the upgrade so nothing published after the handshake is lost.
func (h *handler) serveFeed(w http.ResponseWriter, r *http.Request, topic pubsub.Topic, filter string,
	initial func(context.Context) (any, bool), wrap func(any) (any, bool)) {
	ps := h.playout.PubSub()
	sub := ps.Subscribe(topic, filter, feedBuffer)
	defer ps.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("feed upgrade failed", "topic", topic, "filter", filter, "error", err)
		return
	}
	defer conn.Close()
	log := h.log.With("topic", topic, "filter", filter, "subscriber", sub.ID)
	log.Info("feed connected")

	send := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if v, ok := initial(r.Context()); ok {
		if err := send(v); err != nil {
			return
		}
	}

	// clients send nothing; reading detects the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Info("feed closed")
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			v, ok := wrap(msg)
			if !ok {
				continue
			}
			if err := send(v); err != nil {
				log.Warn("feed write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
