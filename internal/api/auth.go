package api

import (
	"net/http"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  auth.PublicUser `json:"user"`
	Token string          `json:"token"`
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	user, token, err := a.auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Token: token})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeBody(w, r, &req); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	user, token, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Token: token})
}

// logout always succeeds. A missing token or a failed write is only logged.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if token, err := auth.BearerToken(r.Header.Get("Authorization")); err == nil {
		if err := a.auth.Logout(r.Context(), token); err != nil {
			if store.IsStoreFailure(err) {
				httperrors.LogWarn(r, "logout could not persist", err)
			} else {
				httperrors.LogError(r, "logout failed", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) revokeOthers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	n, err := a.auth.RevokeOtherSessions(r.Context(), userID, auth.SessionTokenFromContext(r.Context()))
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := a.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var upd auth.ProfileUpdate
	if err := decodeBody(w, r, &upd); err != nil {
		httperrors.Write(w, r, err)
		return
	}

	user, err := a.auth.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
