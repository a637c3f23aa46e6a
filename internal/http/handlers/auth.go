package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blogapp/internal/accounts"
	"blogapp/internal/logging"
	"blogapp/internal/security"
	"blogapp/internal/sessions"
)

type AuthHandler struct {
	accounts *accounts.Store
	sessions *sessions.Manager
	lifetime time.Duration
	log      logging.Logger
}

func NewAuthHandler(acc *accounts.Store, mgr *sessions.Manager, lifetime time.Duration, log logging.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: acc,
		sessions: mgr,
		lifetime: lifetime,
		log:      log.With("handler", "auth"),
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Firstname == "" || req.Email == "" || req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "firstname, email, username and password are required")
		return
	}

	_, err := h.accounts.Create(r.Context(), accounts.Signup{
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
	})
	if errors.Is(err, accounts.ErrAccountExists) {
		respondError(w, http.StatusConflict, "account already exists")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"message": "account created"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	account, err := h.accounts.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, accounts.ErrNoAccount) {
		// Same message and, via the burned comparison, the same timing as
		// a wrong password; whether the email exists is not disclosed.
		security.CompareDummy(req.Password)
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}
	if !h.accounts.VerifyPassword(account, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.sessions.Issue(r.Context(), account.UniqueID, sessions.Profile{
		Username: account.Username,
		Email:    account.Email,
		Realname: account.Realname(),
	})
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	setSessionCookie(w, token, expiresAt, h.lifetime)
	h.log.Info("login", "username", account.Username)
	respondJSON(w, http.StatusOK, map[string]string{"message": "login successful"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			serverError(w, h.log, err)
			return
		}
	}
	clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
}
