package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blogapp/internal/accounts"
	"blogapp/internal/images"
	"blogapp/internal/logging"
	"blogapp/internal/sessions"
)

const maxImageBytes = 10 << 20

type ProfileHandler struct {
	accounts *accounts.Store
	sessions *sessions.Manager
	images   *images.Store
	lifetime time.Duration
	log      logging.Logger
}

func NewProfileHandler(acc *accounts.Store, mgr *sessions.Manager, img *images.Store, lifetime time.Duration, log logging.Logger) *ProfileHandler {
	return &ProfileHandler{
		accounts: acc,
		sessions: mgr,
		images:   img,
		lifetime: lifetime,
		log:      log.With("handler", "profile"),
	}
}

// View serves the profile of the logged-in user straight from the session
// row; the denormalized columns make a users-table join unnecessary here.
func (h *ProfileHandler) View(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	resp := map[string]string{
		"username": sess.Username,
		"email":    sess.Email,
		"realname": sess.Realname,
	}
	if name, ok := h.images.Path(sess.UniqueID); ok {
		resp["image"] = name
	}
	respondJSON(w, http.StatusOK, resp)
}

// Update applies a partial profile change and rotates the session so the
// denormalized session columns never go stale.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	var req struct {
		Firstname *string `json:"firstname"`
		Lastname  *string `json:"lastname"`
		Email     *string `json:"email"`
		Username  *string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	fields := map[string]any{}
	if req.Firstname != nil {
		fields["firstname"] = *req.Firstname
	}
	if req.Lastname != nil {
		fields["lastname"] = *req.Lastname
	}
	if req.Email != nil {
		fields["email"] = *req.Email
	}
	if req.Username != nil {
		fields["username"] = *req.Username
	}
	if len(fields) == 0 {
		respondError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	err = h.accounts.Update(r.Context(), sess.UniqueID, fields)
	if errors.Is(err, accounts.ErrAccountExists) {
		respondError(w, http.StatusConflict, "email already in use")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	account, err := h.accounts.FindByID(r.Context(), sess.UniqueID)
	if err != nil {
		serverError(w, h.log, err)
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
	respondJSON(w, http.StatusOK, map[string]string{"message": "profile updated"})
}

// UploadImage accepts a png or jpeg profile picture.
func (h *ProfileHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	name, err := h.images.Save(sess.UniqueID, file)
	if errors.Is(err, images.ErrInvalidUpload) {
		respondError(w, http.StatusBadRequest, "only png and jpeg images are accepted")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"image": name})
}
