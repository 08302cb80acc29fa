package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/ingest"
	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
)

func (h *handler) updateRundown(w http.ResponseWriter, r *http.Request) {
	var in ingest.Rundown
	if err := decode(r, &in); err != nil {
		h.respond(w, nil, err)
		return
	}
	res, err := h.ingest.UpdateRundown(r.Context(), in)
	h.respond(w, res, err)
}

func (h *handler) removeRundown(w http.ResponseWriter, r *http.Request) {
	res, err := h.ingest.RemoveRundown(r.Context(), models.RundownID(chi.URLParam(r, "rundownId")))
	h.respond(w, res, err)
}

func (h *handler) resyncRundown(w http.ResponseWriter, r *http.Request) {
	var in ingest.Rundown
	if err := decode(r, &in); err != nil {
		h.respond(w, nil, err)
		return
	}
	if id := chi.URLParam(r, "rundownId"); string(in.ID()) != id {
		h.respond(w, nil, playout.Rejectf(playout.ErrInvalidPayload, "Payload is for rundown %s, not %s", in.ID(), id))
		return
	}
	res, err := h.ingest.ResyncRundown(r.Context(), in)
	h.respond(w, res, err)
}
