package errors

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	"gitea.jw6.us/james/crmdesk/internal/records"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Write maps err onto a status code and JSON body. Anything it does not
// recognize is treated as an internal error.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	var validation *records.ValidationError
	switch {
	case stderrors.Is(err, auth.ErrMissingFields):
		BadRequestError(w, r, err, "missing_fields", "Name, email and password are required")
	case stderrors.Is(err, auth.ErrDuplicateEmail):
		BadRequestError(w, r, err, "duplicate_email", "User already exists")
	case stderrors.As(err, &validation):
		BadRequestError(w, r, err, "validation_failed", validation.Error())
	case stderrors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(w, r, err, "invalid_credentials", "Invalid credentials")
	case stderrors.Is(err, auth.ErrMissingToken):
		Unauthorized(w, r, err, "missing_token", "No token provided")
	case stderrors.Is(err, auth.ErrMalformedToken), stderrors.Is(err, auth.ErrUnauthenticated):
		Unauthorized(w, r, err, "invalid_token", "Invalid or expired token")
	case stderrors.Is(err, store.ErrNotFound):
		JSON(w, http.StatusNotFound, Body{Error: "not_found", Message: "Not found"})
	default:
		InternalError(w, r, err, "request failed")
	}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	// Log the actual error; the client only sees a generic message.
	LogError(r, message, err)
	JSON(w, http.StatusInternalServerError, Body{Error: "internal_error", Message: "Internal server error"})
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, code, clientMessage string) {
	logger(r).WarnContext(r.Context(), "bad request", "error", err)
	JSON(w, http.StatusBadRequest, Body{Error: code, Message: clientMessage})
}

func Unauthorized(w http.ResponseWriter, r *http.Request, err error, code, clientMessage string) {
	logger(r).InfoContext(r.Context(), "unauthorized", "error", err)
	JSON(w, http.StatusUnauthorized, Body{Error: code, Message: clientMessage})
}

func TooManyRequests(w http.ResponseWriter, r *http.Request) {
	logger(r).WarnContext(r.Context(), "rate limit exceeded", "remote_addr", r.RemoteAddr)
	JSON(w, http.StatusTooManyRequests, Body{Error: "rate_limited", Message: "Too many requests"})
}

func LogError(r *http.Request, message string, err error) {
	logger(r).ErrorContext(r.Context(), message, "error", err)
}

func LogWarn(r *http.Request, message string, err error) {
	logger(r).WarnContext(r.Context(), message, "error", err)
}

func logger(r *http.Request) *slog.Logger {
	l := slog.Default()
	if requestID := middleware.GetReqID(r.Context()); requestID != "" {
		l = l.With("request_id", requestID)
	}
	return l.With("method", r.Method, "path", r.URL.Path)
}
