package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/auth"
)

// AuthHandler serves the login route.
type AuthHandler struct {
	auth *auth.Authenticator
}

// Login handles POST /api/auth/login.
//
//	@Summary		Exchange credentials for a bearer token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	LoginResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email and password are required"))
		return
	}
	token, user, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid email or password"))
			return
		}
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// Me handles GET /api/me. In disabled mode there is no user and it answers 404.
//
//	@Summary		The signed-in user
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	auth.User
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/me [get]
func Me(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no user in disabled auth mode"))
		return
	}
	writeJSON(w, http.StatusOK, u)
}
