package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/wellbeing/internal/auth"
	"github.com/starford/wellbeing/internal/autosave"
	"github.com/starford/wellbeing/internal/entryservice"
)

// Deps are the collaborators the API routes call into.
type Deps struct {
	Entries *entryservice.Service
	Drafts  *autosave.Manager
	// Auth enables token mode. Nil means disabled mode: every route is open
	// and /auth/login answers 404.
	Auth *auth.Authenticator
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// LoginRate limits login attempts per client IP. Zero means 1 per second, burst 5.
	LoginRate  rate.Limit
	LoginBurst int
	// Now is the clock used to anchor trends and name exports.
	Now func() time.Time
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LoginRate == 0 {
		d.LoginRate, d.LoginBurst = 1, 5
	}
	h := NewHandler(d.Entries, d.Drafts, d.Now)

	var verifier TokenVerifier
	if d.Auth != nil {
		verifier = d.Auth
	}

	r := chi.NewRouter()

	if d.Auth != nil {
		ah := &AuthHandler{auth: d.Auth}
		r.With(RateLimit(d.LoginRate, d.LoginBurst)).Post("/auth/login", ah.Login)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(verifier))

		r.Get("/me", Me)
		r.Get("/catalog", h.Catalog)

		// Entries.
		r.Get("/entries", h.ListEntries)
		r.Put("/entries", h.SaveEntry)
		r.Delete("/entries", h.ClearEntries)
		r.Get("/entries/date/{date}", h.GetEntryByDate)
		r.Get("/entries/{id}", h.GetEntry)
		r.Delete("/entries/{id}", h.DeleteEntry)

		// Transfer.
		r.Get("/export", h.Export)
		r.Get("/export.xlsx", h.ExportXLSX)
		r.Post("/import", h.Import)

		// Analytics.
		r.Get("/trends", h.Trends)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/search", h.Search)

		// Drafts.
		if d.Drafts != nil {
			r.Get("/drafts/{date}", h.GetDraft)
			r.Patch("/drafts/{date}", h.PatchDraft)
			r.Post("/drafts/{date}/flush", h.FlushDraft)
			r.Delete("/drafts/{date}", h.DiscardDraft)
		}

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
