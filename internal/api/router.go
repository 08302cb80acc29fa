// Package api is the HTTP surface of the playout core: user actions on
// playlists, callbacks of the playout gateway, ingest of rundowns and the
// studio timeline feed.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/bbernstein/sofie-playout-go/internal/logger"
	"github.com/bbernstein/sofie-playout-go/internal/metrics"
	"github.com/bbernstein/sofie-playout-go/internal/services/ingest"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
)

const requestTimeout = 60 * time.Second

// Config holds the dependencies of the router.
type Config struct {
	Playout *playout.Service
	Ingest  *ingest.Service
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// CORSOrigins are allowed to call the action API from a browser.
	CORSOrigins []string
	Debug       bool
	Version     string

	Now func() time.Time
}

type handler struct {
	playout *playout.Service
	ingest  *ingest.Service
	log     *slog.Logger
	metrics *metrics.Metrics
	version string
	now     func() time.Time
}

// NewRouter builds the chi router with every route and middleware.
func NewRouter(cfg Config) http.Handler {
	h := &handler{
		playout: cfg.Playout,
		ingest:  cfg.Ingest,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		version: cfg.Version,
		now:     cfg.Now,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = metrics.New()
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger(h.log))
	r.Use(metrics.RequestMiddleware(h.metrics))
	r.Use(middleware.Recoverer)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            cfg.Debug,
	})
	r.Use(corsMiddleware.Handler)

	r.Get("/health", h.health)
	r.Handle("/metrics", h.metrics.Handler(h.refreshGauges))

	// long-lived, so outside the request timeout
	r.Get("/gateway/studios/{studioId}/timeline", h.timelineFeed)
	r.Get("/playlists/{playlistId}/events", h.playlistFeed)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/playlists/{playlistId}", func(r chi.Router) {
			r.Post("/activate", h.activate)
			r.Post("/deactivate", h.deactivate)
			r.Post("/reset", h.reset)
			r.Post("/take", h.take)
			r.Post("/next", h.setNext)
			r.Post("/move-next", h.moveNext)
			r.Post("/hold", h.activateHold)
			r.Post("/hold/cancel", h.deactivateHold)
			r.Post("/disable-next-piece", h.disableNextPiece)
			r.Post("/part-instances/{instanceId}/stop-layers", h.stopLayers)
		})

		r.Route("/gateway/rundowns/{rundownId}", func(r chi.Router) {
			r.Post("/part-instances/{instanceId}/started", h.partStarted)
			r.Post("/part-instances/{instanceId}/stopped", h.partStopped)
			r.Post("/piece-instances/{instanceId}/started", h.pieceStarted)
			r.Post("/piece-instances/{instanceId}/stopped", h.pieceStopped)
		})

		r.Route("/ingest/rundowns", func(r chi.Router) {
			r.Put("/", h.updateRundown)
			r.Delete("/{rundownId}", h.removeRundown)
			r.Post("/{rundownId}/resync", h.resyncRundown)
		})

		r.Get("/studios/{studioId}/timeline", h.getTimeline)
	})

	return r
}

func (h *handler) refreshGauges() {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	h.playout.RefreshActivePlaylists(ctx)
}

// health returns the server health status.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   h.version,
	})
}
