package records

import (
	"slices"
	"strings"

	"gitea.jw6.us/james/crmdesk/internal/store"
)

// Kind describes one owner-scoped collection.
type Kind[T any] struct {
	Name     string
	Items    func(d *store.Dataset) *[]T
	Validate func(rec *T) error
}

var (
	ContactStatuses = []string{"Active", "Inactive"}
	LeadStatuses    = []string{"New", "Qualified", "Proposal Sent", "Negotiation", "Closed Won", "Closed Lost"}
	TaskStatuses    = []string{"Not Started", "In Progress", "Completed", "Overdue"}
	EventTypes      = []string{"meeting", "task", "deadline"}
	DocumentTypes   = []string{"PDF", "DOCX", "XLSX", "IMG"}
	EmailFolders    = []string{"inbox", "sent", "trash", "drafts"}
)

var Contacts = Kind[store.Contact]{
	Name:  store.CollectionContacts,
	Items: func(d *store.Dataset) *[]store.Contact { return &d.Contacts },
	Validate: func(c *store.Contact) error {
		return oneOf("status", c.Status, ContactStatuses)
	},
}

var Leads = Kind[store.Lead]{
	Name:  store.CollectionLeads,
	Items: func(d *store.Dataset) *[]store.Lead { return &d.Leads },
	Validate: func(l *store.Lead) error {
		return oneOf("status", l.Status, LeadStatuses)
	},
}

var Tasks = Kind[store.Task]{
	Name:  store.CollectionTasks,
	Items: func(d *store.Dataset) *[]store.Task { return &d.Tasks },
	Validate: func(t *store.Task) error {
		return oneOf("status", t.Status, TaskStatuses)
	},
}

var Events = Kind[store.Event]{
	Name:  store.CollectionEvents,
	Items: func(d *store.Dataset) *[]store.Event { return &d.Events },
	Validate: func(e *store.Event) error {
		return oneOf("type", e.Type, EventTypes)
	},
}

var Documents = Kind[store.Document]{
	Name:  store.CollectionDocuments,
	Items: func(d *store.Dataset) *[]store.Document { return &d.Documents },
	Validate: func(doc *store.Document) error {
		return oneOf("type", doc.Type, DocumentTypes)
	},
}

var Emails = Kind[store.Email]{
	Name:  store.CollectionEmails,
	Items: func(d *store.Dataset) *[]store.Email { return &d.Emails },
	Validate: func(e *store.Email) error {
		return oneOf("folder", e.Folder, EmailFolders)
	},
}

// oneOf accepts an empty value or a member of allowed.
func oneOf(field, value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return invalid(field, "must be one of %s", strings.Join(allowed, ", "))
}
