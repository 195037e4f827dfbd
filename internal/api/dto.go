package api

import (
	"github.com/starford/wellbeing/internal/analytics"
	"github.com/starford/wellbeing/internal/auth"
	"github.com/starford/wellbeing/internal/models"
)

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" example:"demo@example.com" validate:"required"`
	Password string `json:"password" example:"demo123" validate:"required"`
}

// LoginResponse carries the bearer token and the signed-in user.
type LoginResponse struct {
	Token string    `json:"token" validate:"required"`
	User  auth.User `json:"user" validate:"required"`
}

// SaveEntryRequest is the request body for PUT /entries. Omitted metrics keep
// their stored values.
type SaveEntryRequest = models.Candidate

// CatalogResponse lists the phases and metrics.
type CatalogResponse struct {
	Phases  []models.PhaseInfo  `json:"phases" validate:"required"`
	Metrics []models.MetricInfo `json:"metrics" validate:"required"`
}

// EntryListResponse wraps entry listings.
type EntryListResponse struct {
	Entries []models.Entry `json:"entries" validate:"required"`
	Total   int            `json:"total" example:"12" validate:"required"`
}

// CountResponse reports how many entries a bulk operation touched.
type CountResponse struct {
	Count int `json:"count" example:"3"`
}

// TrendsResponse is the trends page payload.
type TrendsResponse struct {
	Summary analytics.Summary `json:"summary" validate:"required"`
	Metric  string            `json:"metric,omitempty" example:"agency"`
	Series  []analytics.Point `json:"series" validate:"required"`
}

// SearchResult is a single matching entry with its display fields.
type SearchResult struct {
	Entry     models.Entry `json:"entry" validate:"required"`
	LongDate  string       `json:"longDate" example:"Monday, 8 January"`
	Score     float64      `json:"score" example:"7.5"`
	PhaseName string       `json:"phaseName" example:"Clarity"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// DraftPatchRequest changes a draft. Metrics set to null are ignored.
type DraftPatchRequest struct {
	Phase   models.Phase                  `json:"phase,omitempty" example:"clarity"`
	Metrics map[models.MetricKey]*float64 `json:"metrics,omitempty"`
}
