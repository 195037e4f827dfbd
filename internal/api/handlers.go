package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wellbeing/internal/analytics"
	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/autosave"
	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/models"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    *entryservice.Service
	drafts *autosave.Manager
	now    func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(svc *entryservice.Service, drafts *autosave.Manager, now func() time.Time) *Handler {
	return &Handler{svc: svc, drafts: drafts, now: now}
}

// Catalog handles GET /api/catalog.
//
//	@Summary		List phases and metrics
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	CatalogResponse
//	@Security		BearerAuth
//	@Router			/catalog [get]
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{
		Phases:  models.Phases(),
		Metrics: models.MetricCatalog(),
	})
}

// ListEntries handles GET /api/entries.
//
//	@Summary		List entries, newest first
//	@Tags			entries
//	@Produce		json
//	@Param			phase	query		string	false	"Filter by phase"	Enums(awareness, clarity, strength, ownership)
//	@Param			from	query		string	false	"Inclusive start date (YYYY-MM-DD)"
//	@Param			to		query		string	false	"Inclusive end date (YYYY-MM-DD)"
//	@Success		200		{object}	EntryListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	phase, from, to := q.Get("phase"), q.Get("from"), q.Get("to")

	var (
		entries []models.Entry
		err     error
	)
	switch {
	case phase != "" && (from != "" || to != ""):
		writeJSON(w, http.StatusBadRequest, errorBody("phase cannot be combined with from/to"))
		return
	case phase != "":
		entries, err = h.svc.ListByPhase(r.Context(), models.Phase(phase))
	case from != "" || to != "":
		entries, err = h.svc.ListByDateRange(r.Context(), from, to)
	default:
		entries, err = h.svc.List(r.Context())
	}
	if err != nil {
		writeError(w, "list entries", err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: entries, Total: len(entries)})
}

// GetEntry handles GET /api/entries/{id}.
//
//	@Summary		Get a single entry by id
//	@Tags			entries
//	@Produce		json
//	@Param			id	path		int	true	"Entry id"
//	@Success		200	{object}	models.Entry
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetEntryByDate handles GET /api/entries/date/{date}.
//
//	@Summary		Get the entry recorded for a date
//	@Tags			entries
//	@Produce		json
//	@Param			date	path		string	true	"Date (YYYY-MM-DD)"
//	@Success		200		{object}	models.Entry
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/date/{date} [get]
func (h *Handler) GetEntryByDate(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetByDate(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, "get entry by date", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// SaveEntry handles PUT /api/entries.
//
//	@Summary		Create or update the entry for a date
//	@Tags			entries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveEntryRequest	true	"Entry to save"
//	@Success		200		{object}	models.Entry
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [put]
func (h *Handler) SaveEntry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SaveEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res := h.svc.SaveEntry(r.Context(), req)
	if !res.Success {
		writeError(w, "save entry", res.Err())
		return
	}
	writeJSON(w, http.StatusOK, res.Data)
}

// DeleteEntry handles DELETE /api/entries/{id}.
//
//	@Summary		Delete an entry
//	@Tags			entries
//	@Param			id	path	int	true	"Entry id"
//	@Success		204	"Entry deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries/{id} [delete]
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if res := h.svc.DeleteEntry(r.Context(), id); !res.Success {
		writeError(w, "delete entry", res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearEntries handles DELETE /api/entries.
//
//	@Summary		Delete every entry
//	@Tags			entries
//	@Produce		json
//	@Param			confirm	query		bool	true	"Must be true"
//	@Success		200		{object}	CountResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entries [delete]
func (h *Handler) ClearEntries(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("clearing all entries requires confirm=true"))
		return
	}
	res := h.svc.ClearAll(r.Context())
	if !res.Success {
		writeError(w, "clear entries", res.Err())
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: res.Count})
}

// Trends handles GET /api/trends.
//
//	@Summary		Period summary and chart series
//	@Tags			analytics
//	@Produce		json
//	@Param			period	query		string	false	"Period"	Enums(week, month, all)
//	@Param			anchor	query		string	false	"Reference date (YYYY-MM-DD), default today"
//	@Param			metric	query		string	false	"Metric to chart; empty charts the entry score"
//	@Success		200		{object}	TrendsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trends [get]
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := analytics.ParsePeriod(q.Get("period"))
	if err != nil {
		writeError(w, "trends", err)
		return
	}
	anchor, err := h.anchor(r)
	if err != nil {
		writeError(w, "trends", err)
		return
	}
	metric := models.MetricKey(q.Get("metric"))
	if metric != "" {
		if _, ok := models.MetricByKey(metric); !ok {
			writeError(w, "trends", apperr.NewValidationError("metric", fmt.Sprintf("unknown metric %q", metric)))
			return
		}
	}

	entries, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "trends", err)
		return
	}
	writeJSON(w, http.StatusOK, TrendsResponse{
		Summary: analytics.Summarize(entries, period, anchor),
		Metric:  string(metric),
		Series:  analytics.Series(analytics.FilterByPeriod(entries, period, anchor), metric),
	})
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Dashboard overview
//	@Tags			analytics
//	@Produce		json
//	@Param			anchor	query		string	false	"Reference date (YYYY-MM-DD), default today"
//	@Success		200		{object}	analytics.Overview
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	anchor, err := h.anchor(r)
	if err != nil {
		writeError(w, "dashboard", err)
		return
	}
	entries, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Dashboard(entries, anchor))
}

// Search handles GET /api/search.
//
//	@Summary		Search entries by date, phase or score
//	@Tags			analytics
//	@Produce		json
//	@Param			q	query		string	false	"Search text; empty returns everything"
//	@Success		200	{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "search", err)
		return
	}
	hits := analytics.SearchEntries(entries, r.URL.Query().Get("q"))
	results := make([]SearchResult, 0, len(hits))
	for _, e := range hits {
		results = append(results, SearchResult{
			Entry:     e,
			LongDate:  analytics.FormatLongDate(e.Date),
			Score:     analytics.Round1(analytics.EntryScore(e)),
			PhaseName: e.Phase.Label(),
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

func (h *Handler) anchor(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("anchor")
	if raw == "" {
		return h.now(), nil
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.NewValidationError("anchor", "must be a YYYY-MM-DD date")
	}
	return t, nil
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be a positive integer"))
		return 0, false
	}
	return id, true
}
