package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"librarian/internal/app"
	"librarian/pkg/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "SYSTEM_METHOD_NOT_ALLOWED", "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "SYSTEM_NOT_FOUND", "not found")
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
}

// respondError maps domain errors onto HTTP statuses and stable error codes.
// Conflicts cover every state-machine violation so clients can retry or
// surface them distinctly from bad input.
func respondError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "SYSTEM_INTERNAL_ERROR"
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		status, code = http.StatusNotFound, "BOOK_NOT_FOUND"
	case errors.Is(err, domain.ErrMemberNotFound):
		status, code = http.StatusNotFound, "MEMBER_NOT_FOUND"
	case errors.Is(err, domain.ErrLoanNotFound):
		status, code = http.StatusNotFound, "LOAN_NOT_FOUND"
	case errors.Is(err, domain.ErrFineNotFound):
		status, code = http.StatusNotFound, "FINE_NOT_FOUND"
	case errors.Is(err, app.ErrNoCover):
		status, code = http.StatusNotFound, "BOOK_COVER_NOT_FOUND"
	case errors.Is(err, domain.ErrBookUnavailable):
		status, code = http.StatusConflict, "BOOK_UNAVAILABLE"
	case errors.Is(err, domain.ErrAlreadyReturned):
		status, code = http.StatusConflict, "LOAN_ALREADY_CLOSED"
	case errors.Is(err, domain.ErrLoanExists):
		status, code = http.StatusConflict, "LOAN_ALREADY_OPEN"
	case errors.Is(err, domain.ErrMemberInactive):
		status, code = http.StatusConflict, "MEMBER_INACTIVE"
	case errors.Is(err, domain.ErrMemberAtCapacity):
		status, code = http.StatusConflict, "MEMBER_AT_CAPACITY"
	case errors.Is(err, domain.ErrActiveLoans):
		status, code = http.StatusConflict, "OPEN_LOANS_EXIST"
	case errors.Is(err, domain.ErrDuplicateISBN):
		status, code = http.StatusConflict, "BOOK_DUPLICATE_ISBN"
	case errors.Is(err, domain.ErrDuplicateMembership):
		status, code = http.StatusConflict, "MEMBER_DUPLICATE_NUMBER"
	case errors.Is(err, domain.ErrDuplicateUsername):
		status, code = http.StatusConflict, "STAFF_DUPLICATE_USERNAME"
	case errors.Is(err, domain.ErrOverpayment):
		status, code = http.StatusConflict, "FINE_OVERPAYMENT"
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "REQUEST_INVALID"
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "AUTH_INVALID_CREDENTIALS"
	case errors.Is(err, app.ErrCoversNotConfigured):
		status, code = http.StatusNotImplemented, "BOOK_COVERS_DISABLED"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid json body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
