// Package api implements the JSON endpoints mounted under /api.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
	"gitea.jw6.us/james/crmdesk/internal/records"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

const maxBodyBytes = 1 << 20

// API bundles the services behind the REST surface.
type API struct {
	auth  *auth.Service
	guard *auth.Middleware

	contacts  *records.Service[store.Contact, *store.Contact]
	leads     *records.Service[store.Lead, *store.Lead]
	tasks     *records.Service[store.Task, *store.Task]
	events    *records.Service[store.Event, *store.Event]
	documents *records.Service[store.Document, *store.Document]
	emails    *records.Service[store.Email, *store.Email]
}

func New(st *store.Store, authService *auth.Service) *API {
	return &API{
		auth:      authService,
		guard:     auth.NewMiddleware(authService, httperrors.Write),
		contacts:  records.NewService[store.Contact](st, records.Contacts),
		leads:     records.NewService[store.Lead](st, records.Leads),
		tasks:     records.NewService[store.Task](st, records.Tasks),
		events:    records.NewService[store.Event](st, records.Events),
		documents: records.NewService[store.Document](st, records.Documents),
		emails:    records.NewService[store.Email](st, records.Emails),
	}
}

// Register mounts every endpoint on r. authLimit, when non-nil, wraps the
// credential endpoints.
func (a *API) Register(r chi.Router, authLimit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		if authLimit != nil {
			r.Use(authLimit)
		}
		r.Post("/signup", a.signup)
		r.Post("/login", a.login)
		r.Post("/logout", a.logout)
		r.With(a.guard.RequireBearer).Post("/sessions/revoke-others", a.revokeOthers)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.guard.RequireBearer)

		r.Get("/user", a.getUser)
		r.Put("/user", a.updateUser)

		mountCollection(r, a.contacts, func(r chi.Router) {
			r.Get("/export.vcf", a.exportContacts)
		})
		mountCollection(r, a.leads)
		mountCollection(r, a.tasks)
		mountCollection(r, a.events, func(r chi.Router) {
			r.Get("/export.ics", a.exportEvents)
		})
		mountCollection(r, a.documents)
		mountCollection(r, a.emails)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httperrors.JSON(w, status, v)
}

// readBody returns the raw request body, capped at maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &records.ValidationError{Message: fmt.Sprintf("could not read request body: %v", err)}
	}
	return body, nil
}

// decodeBody decodes a JSON object body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &records.ValidationError{Message: "request body is not valid JSON"}
	}
	return nil
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httperrors.Write(w, r, auth.ErrUnauthenticated)
	}
	return userID, ok
}
