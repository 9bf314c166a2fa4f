package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	"gitea.jw6.us/james/crmdesk/internal/records"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

func TestWriteMapsTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing fields", auth.ErrMissingFields, http.StatusBadRequest, "missing_fields"},
		{"duplicate", fmt.Errorf("signup: %w", auth.ErrDuplicateEmail), http.StatusBadRequest, "duplicate_email"},
		{"validation", &records.ValidationError{Field: "status", Message: "bad"}, http.StatusBadRequest, "validation_failed"},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"missing token", auth.ErrMissingToken, http.StatusUnauthorized, "missing_token"},
		{"malformed token", auth.ErrMalformedToken, http.StatusUnauthorized, "invalid_token"},
		{"expired", auth.ErrUnauthenticated, http.StatusUnauthorized, "invalid_token"},
		{"not found", store.ErrNotFound, http.StatusNotFound, "not_found"},
		{"corrupt", &store.CorruptError{Source: "file:db.json", Err: fmt.Errorf("unexpected EOF")}, http.StatusInternalServerError, "internal_error"},
		{"write", &store.WriteError{Source: "file:db.json", Err: fmt.Errorf("disk full")}, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Write(rr, httptest.NewRequest(http.MethodGet, "/api/leads", nil), tc.err)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			var body Body
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.code {
				t.Errorf("code = %q, want %q", body.Error, tc.code)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	InternalError(rr, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("secret path /var/lib/db.json"), "load")

	if got := rr.Body.String(); !json.Valid(rr.Body.Bytes()) || strings.Contains(got, "/var/lib") {
		t.Errorf("body leaked details: %s", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}
