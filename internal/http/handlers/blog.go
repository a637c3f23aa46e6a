package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"blogapp/internal/blogs"
	"blogapp/internal/logging"
	"blogapp/internal/sessions"

	"github.com/gorilla/mux"
)

type BlogHandler struct {
	blogs    *blogs.Store
	sessions *sessions.Manager
	log      logging.Logger
}

func NewBlogHandler(bs *blogs.Store, mgr *sessions.Manager, log logging.Logger) *BlogHandler {
	return &BlogHandler{
		blogs:    bs,
		sessions: mgr,
		log:      log.With("handler", "blog"),
	}
}

type blogRequest struct {
	Title   string `json:"title"`
	Tags    string `json:"tags"`
	Content string `json:"content"`
}

func (h *BlogHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	var req blogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}

	created, err := h.blogs.Create(r.Context(), blogs.Post{
		UniqueID: sess.UniqueID,
		Username: sess.Username,
		Title:    req.Title,
		Tags:     req.Tags,
	}, []byte(req.Content), false)
	if errors.Is(err, blogs.ErrBadTitle) {
		respondError(w, http.StatusBadRequest, "invalid title")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "a post with this title already exists")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"id": blogs.PostID(sess.UniqueID, req.Title),
	})
}

// View serves one rendered post.
func (h *BlogHandler) View(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	author, title := vars["author"], vars["title"]

	html, err := h.blogs.Render(author, title)
	if errors.Is(err, blogs.ErrNoPost) || errors.Is(err, blogs.ErrBadTitle) {
		respondError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"title": title,
		"html":  string(html),
	})
}

// Update replaces a post the session owner wrote: remove the old file+row,
// then create with overwrite set.
func (h *BlogHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	vars := mux.Vars(r)
	if vars["author"] != sess.UniqueID {
		respondError(w, http.StatusForbidden, "not your post")
		return
	}
	title := vars["title"]

	var req blogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Title == "" {
		req.Title = title
	}

	// A rename must not land on another post's title. Checked before the
	// delete so a conflict leaves the old post as it was.
	if req.Title != title {
		taken, err := h.blogs.Exists(r.Context(), sess.UniqueID, req.Title)
		if err != nil {
			serverError(w, h.log, err)
			return
		}
		if taken {
			respondError(w, http.StatusConflict, "a post with this title already exists")
			return
		}
	}

	if err := h.blogs.Delete(r.Context(), sess.UniqueID, title); err != nil {
		if errors.Is(err, blogs.ErrNoPost) {
			respondError(w, http.StatusNotFound, "post not found")
			return
		}
		if !errors.Is(err, blogs.ErrPartial) {
			serverError(w, h.log, err)
			return
		}
		// Partial cleanup still cleared both stores; the rewrite can
		// proceed.
		h.log.Warn("reconciled inconsistent post before update", "err", err)
	}

	created, err := h.blogs.Create(r.Context(), blogs.Post{
		UniqueID: sess.UniqueID,
		Username: sess.Username,
		Title:    req.Title,
		Tags:     req.Tags,
	}, []byte(req.Content), true)
	if errors.Is(err, blogs.ErrBadTitle) {
		respondError(w, http.StatusBadRequest, "invalid title")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}
	if !created {
		respondError(w, http.StatusConflict, "a post with this title already exists")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id": blogs.PostID(sess.UniqueID, req.Title),
	})
}

func (h *BlogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, err := resolveSession(r, h.sessions)
	if errors.Is(err, sessions.ErrNoSession) {
		respondError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err != nil {
		serverError(w, h.log, err)
		return
	}

	vars := mux.Vars(r)
	if vars["author"] != sess.UniqueID {
		respondError(w, http.StatusForbidden, "not your post")
		return
	}

	err = h.blogs.Delete(r.Context(), sess.UniqueID, vars["title"])
	switch {
	case errors.Is(err, blogs.ErrNoPost), errors.Is(err, blogs.ErrBadTitle):
		respondError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, blogs.ErrPartial):
		serverError(w, h.log, err)
	case err != nil:
		serverError(w, h.log, err)
	default:
		respondJSON(w, http.StatusOK, map[string]string{"message": "post deleted"})
	}
}

// Search filters posts by a title substring and comma-separated tags.
func (h *BlogHandler) Search(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	posts, err := h.blogs.Search(r.Context(), title, tags)
	if err != nil {
		serverError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, postList(posts))
}

// Random serves a sample of posts for the landing page.
func (h *BlogHandler) Random(w http.ResponseWriter, r *http.Request) {
	count := 4
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = n
	}

	posts, err := h.blogs.PickRandom(r.Context(), count)
	if err != nil {
		serverError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, postList(posts))
}

type postJSON struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Username string `json:"username"`
	Title    string `json:"title"`
	Tags     string `json:"tags"`
}

func postList(posts []blogs.Post) []postJSON {
	out := make([]postJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, postJSON{
			ID:       blogs.PostID(p.UniqueID, p.Title),
			Author:   p.UniqueID,
			Username: p.Username,
			Title:    p.Title,
			Tags:     p.Tags,
		})
	}
	return out
}
