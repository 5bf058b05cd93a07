package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/tradesim/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v. Unknown fields and
// a missing or wrong Content-Type are rejected.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}
	return nil
}

// domainErrors maps sentinel errors to status codes and messages. The
// error code is the sentinel's own text.
var domainErrors = []struct {
	err     error
	status  int
	message string
}{
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "Insufficient funds for this order"},
	{domain.ErrInsufficientShares, http.StatusUnprocessableEntity, "Insufficient shares for this order"},
	{domain.ErrAmountOverflow, http.StatusUnprocessableEntity, "Order amount is too large"},
	{domain.ErrNotEnoughData, http.StatusUnprocessableEntity, "At least two prices are needed for a backtest"},
	{domain.ErrUnknownInstrument, http.StatusNotFound, "Instrument is not traded on this market"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "Session not found"},
	{domain.ErrArchiveDisabled, http.StatusNotFound, "Transaction journal is not enabled"},
	{domain.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	{domain.ErrNoActiveSession, http.StatusUnauthorized, "Log in first"},
	{domain.ErrDuplicateUsername, http.StatusConflict, "Username already exists"},
}

// writeDomainError translates a service error into an error response.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}
	for _, de := range domainErrors {
		if errors.Is(err, de.err) {
			WriteError(w, de.status, de.err.Error(), de.message)
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
