package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.CountLogin("denied")
		switch {
		case errors.Is(err, auth.ErrAccountDeactivated):
			writeError(w, r, http.StatusUnauthorized, "Account is deactivated")
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
		default:
			serviceError(w, r, err)
		}
		return
	}
	obs.CountLogin("ok")
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	session, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		obs.CountRefresh("denied")
		writeError(w, r, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	obs.CountRefresh("ok")
	writeJSON(w, http.StatusOK, session)
}

// handleMe reloads the caller and returns a fresh session. The reissued
// pair is how role and permission changes reach a logged-in client.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	session, err := a.auth.Me(r.Context(), identity.UserID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
