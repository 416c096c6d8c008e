package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/media"
)

// SignupState returns the onboarding view. A step query parameter resumes
// the flow at that marker first.
func (h *Handler) SignupState(w http.ResponseWriter, r *http.Request) {
	if marker := r.URL.Query().Get("step"); marker != "" {
		h.app.Signup.Resume(marker)
	}
	writeJSON(w, http.StatusOK, h.app.Signup.View())
}

func (h *Handler) SubmitEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if err := h.app.Signup.SubmitEmail(req.Email); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Signup.View())
}

func codeIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, api.Invalid("index", "must be an integer")
	}
	return i, nil
}

// EnterDigit sets one code position and reports where focus moved.
func (h *Handler) EnterDigit(w http.ResponseWriter, r *http.Request) {
	i, err := codeIndex(r)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	var req struct {
		Digit string `json:"digit"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	focus, err := h.app.Signup.EnterDigit(i, req.Digit)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"focus": focus})
}

func (h *Handler) Backspace(w http.ResponseWriter, r *http.Request) {
	i, err := codeIndex(r)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"focus": h.app.Signup.Backspace(i)})
}

func (h *Handler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Signup.SubmitCode(); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Signup.View())
}

func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	h.app.Signup.Skip()
	writeJSON(w, http.StatusOK, h.app.Signup.View())
}

func (h *Handler) SkipWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Signup.SkipWallet(); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Signup.View())
}

// AttachAvatar takes the raw image as the request body.
func (h *Handler) AttachAvatar(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, media.MaxAvatarBytes+1)
	preview, err := h.app.Signup.AttachAvatar(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar_preview": preview})
}

// SubmitProfile completes onboarding and returns the new session creator.
func (h *Handler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if err := h.app.Signup.SubmitProfile(r.Context(), req.Username); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"step":    h.app.Signup.View(),
		"creator": h.app.Sessions.Current(),
	})
}
