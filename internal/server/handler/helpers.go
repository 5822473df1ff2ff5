// Package handler implements the HTTP endpoints of the desk API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

const maxBodyBytes = 1 << 20

// writeJSON marshals v with status; a marshal failure becomes a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrUnknownUser),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadyClosed),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrPaymentResolved),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrInvalidAccount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrOracleUnavailable),
		errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, publicMessage(err))
}

// publicMessage is the innermost sentinel text plus any detail the service
// appended after it.
func publicMessage(err error) string {
	for _, s := range []error{
		domain.ErrInsufficientBalance, domain.ErrUnknownUser, domain.ErrPositionNotFound,
		domain.ErrNotOwner, domain.ErrAlreadyClosed, domain.ErrOracleUnavailable,
		domain.ErrInvalidAmount, domain.ErrInvalidPosition, domain.ErrInvalidSettings,
		domain.ErrInvalidAccount, domain.ErrPaymentResolved, domain.ErrNotFound,
		domain.ErrAlreadyExists, domain.ErrLockHeld, domain.ErrRateLimited,
		domain.ErrShuttingDown,
	} {
		if errors.Is(err, s) {
			msg := err.Error()
			if i := strings.Index(msg, s.Error()); i >= 0 {
				return msg[i:]
			}
			return s.Error()
		}
	}
	return err.Error()
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

// requireUser reads the user_id query parameter or writes a 400.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("user_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return "", false
	}
	return id, true
}
