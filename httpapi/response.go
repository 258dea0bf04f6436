package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"aviator/models"

	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 16

func decode[T any](r *http.Request) (T, error) {
	var payload T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, fmt.Errorf("invalid request body: %w", err)
	}
	return payload, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write HTTP response")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// statusFor maps game errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidStake),
		errors.Is(err, models.ErrInvalidMultiplier),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrBetNotFound),
		errors.Is(err, models.ErrRoundNotFound),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrUnknownReference):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrRoundNotAcceptingBets),
		errors.Is(err, models.ErrBetNotActive),
		errors.Is(err, models.ErrRoundAlreadyCrashed),
		errors.Is(err, models.ErrRoundNotFlying),
		errors.Is(err, models.ErrDuplicateReference),
		errors.Is(err, models.ErrNotConfirmed),
		errors.Is(err, models.ErrAlreadyCredited):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err,
		}).Error("HTTP request failed")
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// limitParam reads ?limit=; zero lets the service apply its default
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}
