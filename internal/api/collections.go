package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
	"gitea.jw6.us/james/crmdesk/internal/records"
)

type collectionHandler[T any, P records.Record[T]] struct {
	svc *records.Service[T, P]
}

// mountCollection registers list, create, update and delete for one record
// kind under /{collection}. extra adds kind-specific routes to the same
// subrouter.
func mountCollection[T any, P records.Record[T]](r chi.Router, svc *records.Service[T, P], extra ...func(chi.Router)) {
	h := collectionHandler[T, P]{svc: svc}
	r.Route("/"+svc.Name(), func(r chi.Router) {
		for _, fn := range extra {
			fn(r)
		}
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h collectionHandler[T, P]) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	items, err := h.svc.List(r.Context(), userID)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h collectionHandler[T, P]) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	rec, err := h.svc.Create(r.Context(), userID, body)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h collectionHandler[T, P]) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	rec, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), body)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h collectionHandler[T, P]) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
