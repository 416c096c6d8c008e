package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/tipfinity/internal/api"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	var remote *api.RemoteError
	switch {
	case api.IsValidation(err):
		return http.StatusBadRequest
	case api.IsProtocol(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &remote):
		if remote.Status >= 400 && remote.Status < 600 {
			return remote.Status
		}
		return http.StatusBadGateway
	case api.IsTransport(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError reports err to the caller. Transport failures suggest a retry;
// anything unclassified is logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "backend unreachable, please try again: " + msg
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeMessage(w, status, msg)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &api.ValidationError{Field: "body", Message: "invalid request body", Err: err}
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, api.Invalid(name, "must be a positive integer")
	}
	return id, nil
}
