package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/tipfinity/internal/middleware"
	"github.com/ayush/tipfinity/internal/models"
)

func (h *Handler) ListCreators(w http.ResponseWriter, r *http.Request) {
	creators, err := h.app.Queries.Creators(r.Context())
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if creators == nil {
		creators = []models.Creator{}
	}
	writeJSON(w, http.StatusOK, creators)
}

func (h *Handler) CreateCreator(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCreatorInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	created, err := h.app.Queries.CreateCreator(r.Context(), req)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetCreator(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	c, err := h.app.Queries.Creator(r.Context(), id)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// selfOnly resolves the {id} parameter and requires it to name the session creator.
func (h *Handler) selfOnly(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.app.Logger, err)
		return 0, false
	}
	cur := middlewareCreator(r)
	if cur == nil || cur.ID != id {
		writeMessage(w, http.StatusForbidden, "only the session creator can be modified")
		return 0, false
	}
	return id, true
}

// UpdateCreator edits the session creator's profile and refreshes the session.
func (h *Handler) UpdateCreator(w http.ResponseWriter, r *http.Request) {
	id, ok := h.selfOnly(w, r)
	if !ok {
		return
	}
	var req models.UpdateCreatorInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	res, err := h.app.Queries.UpdateCreator(r.Context(), id, req)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}

	// Prefer the backend's record; fall back to patching the session copy.
	next := req.Apply(middlewareCreator(r))
	if c, err := h.app.Queries.Creator(r.Context(), id); err != nil {
		h.app.Logger.Warn("refresh session creator", "creator_id", id, "error", err)
	} else {
		next = &c
	}
	if err := h.app.Sessions.SetCreator(r.Context(), next); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteCreator removes the session creator and ends the session.
func (h *Handler) DeleteCreator(w http.ResponseWriter, r *http.Request) {
	id, ok := h.selfOnly(w, r)
	if !ok {
		return
	}
	res, err := h.app.Queries.DeleteCreator(r.Context(), id)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if err := h.app.Sessions.Clear(r.Context()); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) UsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	ok, err := h.app.Queries.UsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Availability{Available: ok})
}

func middlewareCreator(r *http.Request) *models.Creator {
	c, _ := middleware.Creator(r.Context())
	return c
}
