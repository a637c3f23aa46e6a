// Package handlers implements the HTTP request handlers. Only the
// session/credential control flow carries real logic; rendering stays out.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blogapp/internal/logging"
	"blogapp/internal/sessions"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "session_id"

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// serverError logs the full failure for the operator and sends the client a
// generic message only.
func serverError(w http.ResponseWriter, log logging.Logger, err error) {
	log.Error("request failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal server error")
}

// setSessionCookie writes the session cookie. The value is the opaque token
// only; identity is resolved server-side on every request.
func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, lifetime time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(lifetime.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// resolveSession resolves the request's session cookie. ErrNoSession covers
// both a missing cookie and an expired row; the caller treats either as an
// anonymous request.
func resolveSession(r *http.Request, mgr *sessions.Manager) (*sessions.Session, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, sessions.ErrNoSession
	}
	sess, err := mgr.Lookup(r.Context(), cookie.Value)
	if errors.Is(err, sessions.ErrExpired) {
		return nil, sessions.ErrNoSession
	}
	return sess, err
}
