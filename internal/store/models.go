package store

import "time"

// Collection names as they appear in the persisted document.
const (
	CollectionUsers     = "users"
	CollectionSessions  = "sessions"
	CollectionContacts  = "contacts"
	CollectionLeads     = "leads"
	CollectionTasks     = "tasks"
	CollectionEvents    = "events"
	CollectionDocuments = "documents"
	CollectionEmails    = "emails"
)

// Dataset is the whole persisted document: one ordered slice per collection.
type Dataset struct {
	Users     []User     `json:"users"`
	Sessions  []Session  `json:"sessions"`
	Contacts  []Contact  `json:"contacts"`
	Leads     []Lead     `json:"leads"`
	Tasks     []Task     `json:"tasks"`
	Events    []Event    `json:"events"`
	Documents []Document `json:"documents"`
	Emails    []Email    `json:"emails"`
}

// User is an account that owns records. PasswordHash never leaves the store
// through the API; see auth.PublicUser.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Title        string    `json:"title"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session maps the SHA-256 digest of a bearer token to a user.
type Session struct {
	TokenHash string    `json:"tokenHash"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RecordMeta holds the server-stamped fields shared by every owned record.
type RecordMeta struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Meta gives generic code access to the embedded stamp.
func (m *RecordMeta) Meta() *RecordMeta { return m }

// Contact is a person in the address book.
type Contact struct {
	RecordMeta
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Status  string `json:"status"`
}

// Lead is a deal moving through the sales pipeline.
type Lead struct {
	RecordMeta
	DealName    string  `json:"dealName"`
	CompanyName string  `json:"companyName"`
	ContactName string  `json:"contactName"`
	Value       float64 `json:"value"`
	Status      string  `json:"status"`
	Source      string  `json:"source,omitempty"`
}

// Task is a to-do item with an assignee.
type Task struct {
	RecordMeta
	Title    string `json:"title"`
	DueDate  string `json:"dueDate"`
	Assignee string `json:"assignee"`
	Status   string `json:"status"`
}

// Event is a calendar entry. Date is YYYY-MM-DD.
type Event struct {
	RecordMeta
	Title string `json:"title"`
	Date  string `json:"date"`
	Type  string `json:"type"`
}

// Document is metadata about a stored file. Contents are not kept here.
type Document struct {
	RecordMeta
	Name         string `json:"name"`
	Type         string `json:"type"`
	Size         string `json:"size"`
	DateModified string `json:"dateModified"`
	Owner        string `json:"owner"`
}

// Email is a message in one of the mailbox folders.
type Email struct {
	RecordMeta
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	Folder    string `json:"folder"`
	Read      bool   `json:"read"`
	Avatar    string `json:"avatar,omitempty"`
}

// newDataset returns a dataset with every collection present and empty.
func newDataset() *Dataset {
	d := &Dataset{}
	ensureCollections(d)
	return d
}

// ensureCollections replaces missing collections with empty ones and reports
// whether anything had to be filled in.
func ensureCollections(d *Dataset) bool {
	changed := false
	fill := func(isNil bool, set func()) {
		if isNil {
			set()
			changed = true
		}
	}
	fill(d.Users == nil, func() { d.Users = []User{} })
	fill(d.Sessions == nil, func() { d.Sessions = []Session{} })
	fill(d.Contacts == nil, func() { d.Contacts = []Contact{} })
	fill(d.Leads == nil, func() { d.Leads = []Lead{} })
	fill(d.Tasks == nil, func() { d.Tasks = []Task{} })
	fill(d.Events == nil, func() { d.Events = []Event{} })
	fill(d.Documents == nil, func() { d.Documents = []Document{} })
	fill(d.Emails == nil, func() { d.Emails = []Email{} })
	return changed
}
