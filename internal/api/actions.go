package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
)

func playlistID(r *http.Request) models.PlaylistID {
	return models.PlaylistID(chi.URLParam(r, "playlistId"))
}

type activateRequest struct {
	Rehearsal bool `json:"rehearsal"`
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	h.respond(w, nil, h.playout.Activate(r.Context(), playlistID(r), req.Rehearsal))
}

func (h *handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, nil, h.playout.Deactivate(r.Context(), playlistID(r)))
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, nil, h.playout.Reset(r.Context(), playlistID(r)))
}

func (h *handler) take(w http.ResponseWriter, r *http.Request) {
	h.respond(w, nil, h.playout.Take(r.Context(), playlistID(r)))
}

type setNextRequest struct {
	PartID     *models.PartID `json:"partId"`
	Manual     bool           `json:"manual"`
	TimeOffset *int64         `json:"timeOffset"`
}

func (h *handler) setNext(w http.ResponseWriter, r *http.Request) {
	var req setNextRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	var partID models.PartID
	if req.PartID != nil {
		partID = *req.PartID
	}
	h.respond(w, nil, h.playout.SetNext(r.Context(), playlistID(r), partID, req.Manual, req.TimeOffset))
}

type moveNextRequest struct {
	Horizontal int `json:"horizontal"`
	Vertical   int `json:"vertical"`
}

type moveNextResult struct {
	PartID models.PartID `json:"partId"`
}

func (h *handler) moveNext(w http.ResponseWriter, r *http.Request) {
	var req moveNextRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	partID, err := h.playout.MoveNext(r.Context(), playlistID(r), req.Horizontal, req.Vertical)
	if err != nil {
		h.respond(w, nil, err)
		return
	}
	h.respond(w, moveNextResult{PartID: partID}, nil)
}

func (h *handler) activateHold(w http.ResponseWriter, r *http.Request) {
	h.respond(w, nil, h.playout.ActivateHold(r.Context(), playlistID(r)))
}

func (h *handler) deactivateHold(w http.ResponseWriter, r *http.Request) {
	h.respond(w, nil, h.playout.DeactivateHold(r.Context(), playlistID(r)))
}

type disableNextPieceRequest struct {
	Undo bool `json:"undo"`
}

func (h *handler) disableNextPiece(w http.ResponseWriter, r *http.Request) {
	var req disableNextPieceRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	h.respond(w, nil, h.playout.DisableNextPiece(r.Context(), playlistID(r), req.Undo))
}

type stopLayersRequest struct {
	SourceLayerIDs []string `json:"sourceLayerIds"`
}

func (h *handler) stopLayers(w http.ResponseWriter, r *http.Request) {
	var req stopLayersRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, nil, err)
		return
	}
	instanceID := models.PartInstanceID(chi.URLParam(r, "instanceId"))
	h.respond(w, nil, h.playout.SourceLayerOnPartStop(r.Context(), playlistID(r), instanceID, req.SourceLayerIDs))
}
