package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/models"
)

// GetDraft handles GET /api/drafts/{date}. Opening a draft seeds it from the
// stored entry, or from the defaults when the day has none.
//
//	@Summary		Open the draft for a date
//	@Tags			drafts
//	@Produce		json
//	@Param			date	path		string	true	"Date (YYYY-MM-DD)"
//	@Success		200		{object}	autosave.Draft
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{date} [get]
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Open(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, "open draft", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PatchDraft handles PATCH /api/drafts/{date}. Changes are saved after the
// autosave delay.
//
//	@Summary		Change a draft
//	@Tags			drafts
//	@Accept			json
//	@Produce		json
//	@Param			date	path		string				true	"Date (YYYY-MM-DD)"
//	@Param			body	body		DraftPatchRequest	true	"Changes"
//	@Success		200		{object}	autosave.Draft
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{date} [patch]
func (h *Handler) PatchDraft(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	date := chi.URLParam(r, "date")

	var req DraftPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	for key := range req.Metrics {
		if _, ok := models.MetricByKey(key); !ok {
			writeError(w, "patch draft", apperr.NewValidationError("metrics."+string(key), "unknown metric"))
			return
		}
	}

	d, err := h.drafts.Open(r.Context(), date)
	if err != nil {
		writeError(w, "patch draft", err)
		return
	}
	if req.Phase != "" {
		if d, err = h.drafts.SetPhase(r.Context(), date, req.Phase); err != nil {
			writeError(w, "patch draft", err)
			return
		}
	}
	// Catalog order keeps the result deterministic when one value is rejected.
	for _, key := range models.MetricKeys() {
		v, ok := req.Metrics[key]
		if !ok || v == nil {
			continue
		}
		if d, err = h.drafts.SetMetric(r.Context(), date, key, *v); err != nil {
			writeError(w, "patch draft", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, d)
}

// FlushDraft handles POST /api/drafts/{date}/flush.
//
//	@Summary		Save a draft now
//	@Tags			drafts
//	@Produce		json
//	@Param			date	path		string	true	"Date (YYYY-MM-DD)"
//	@Success		200		{object}	autosave.Draft
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{date}/flush [post]
func (h *Handler) FlushDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Flush(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, "flush draft", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DiscardDraft handles DELETE /api/drafts/{date}. Unsaved changes are lost.
//
//	@Summary		Drop a draft
//	@Tags			drafts
//	@Param			date	path	string	true	"Date (YYYY-MM-DD)"
//	@Success		204		"Draft discarded"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/drafts/{date} [delete]
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if !h.drafts.Discard(chi.URLParam(r, "date")) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
