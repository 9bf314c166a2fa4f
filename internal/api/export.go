package api

import (
	"net/http"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/export"
	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
)

func (a *API) exportEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	events, err := a.events.List(r.Context(), userID)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeAttachment(w, "text/calendar; charset=utf-8", "events.ics", export.Calendar(events, time.Now()))
}

func (a *API) exportContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	contacts, err := a.contacts.List(r.Context(), userID)
	if err != nil {
		httperrors.Write(w, r, err)
		return
	}
	writeAttachment(w, "text/vcard; charset=utf-8", "contacts.vcf", export.VCards(contacts, time.Now()))
}

func writeAttachment(w http.ResponseWriter, contentType, filename, body string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
