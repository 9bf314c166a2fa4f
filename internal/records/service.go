package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/store"
	"github.com/google/uuid"
)

// Record is satisfied by a pointer to any owned record kind.
type Record[T any] interface {
	*T
	Meta() *store.RecordMeta
}

// serverFields are stamped by the service and ignored in client payloads.
var serverFields = []string{"id", "userId", "createdAt"}

// Service is CRUD over one collection, always scoped to the owning user.
type Service[T any, P Record[T]] struct {
	store *store.Store
	kind  Kind[T]

	now   func() time.Time
	newID func() (string, error)
}

func NewService[T any, P Record[T]](st *store.Store, kind Kind[T]) *Service[T, P] {
	return &Service[T, P]{
		store: st,
		kind:  kind,
		now:   time.Now,
		newID: newRecordID,
	}
}

// Name is the collection name, also used as the URL segment.
func (s *Service[T, P]) Name() string { return s.kind.Name }

// List returns the owner's records in insertion order. The result is never
// nil.
func (s *Service[T, P]) List(ctx context.Context, owner string) ([]T, error) {
	out := make([]T, 0)
	err := s.store.View(ctx, func(d *store.Dataset) error {
		items := *s.kind.Items(d)
		for i := range items {
			if P(&items[i]).Meta().UserID == owner {
				out = append(out, items[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create stores a new record built from payload and stamped for owner.
func (s *Service[T, P]) Create(ctx context.Context, owner string, payload json.RawMessage) (T, error) {
	var rec T
	fields, err := clientFields(payload)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(fields, &rec); err != nil {
		return rec, decodeError(err)
	}

	id, err := s.newID()
	if err != nil {
		return rec, err
	}
	*P(&rec).Meta() = store.RecordMeta{
		ID:        id,
		UserID:    owner,
		CreatedAt: s.now().UTC(),
	}
	if err := s.validate(&rec); err != nil {
		return rec, err
	}

	err = s.store.Update(ctx, func(d *store.Dataset) error {
		items := s.kind.Items(d)
		*items = append(*items, rec)
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

// Update merges payload onto the owner's record id. Fields missing from the
// payload keep their stored values.
func (s *Service[T, P]) Update(ctx context.Context, owner, id string, payload json.RawMessage) (T, error) {
	var out T
	fields, err := clientFields(payload)
	if err != nil {
		return out, err
	}

	err = s.store.Update(ctx, func(d *store.Dataset) error {
		items := s.kind.Items(d)
		idx := s.find(*items, owner, id)
		if idx < 0 {
			return store.ErrNotFound
		}

		rec := (*items)[idx]
		meta := *P(&rec).Meta()
		if err := json.Unmarshal(fields, &rec); err != nil {
			return decodeError(err)
		}
		*P(&rec).Meta() = meta
		if err := s.validate(&rec); err != nil {
			return err
		}

		(*items)[idx] = rec
		out = rec
		return nil
	})
	return out, err
}

// Delete removes the owner's record id.
func (s *Service[T, P]) Delete(ctx context.Context, owner, id string) error {
	return s.store.Update(ctx, func(d *store.Dataset) error {
		items := s.kind.Items(d)
		idx := s.find(*items, owner, id)
		if idx < 0 {
			return store.ErrNotFound
		}
		*items = append((*items)[:idx], (*items)[idx+1:]...)
		return nil
	})
}

func (s *Service[T, P]) find(items []T, owner, id string) int {
	for i := range items {
		meta := P(&items[i]).Meta()
		if meta.ID == id && meta.UserID == owner {
			return i
		}
	}
	return -1
}

func (s *Service[T, P]) validate(rec *T) error {
	if s.kind.Validate == nil {
		return nil
	}
	return s.kind.Validate(rec)
}

// clientFields checks that payload is a JSON object and drops the
// server-stamped keys. encoding/json matches keys case-insensitively, so the
// comparison here does too.
func clientFields(payload json.RawMessage) ([]byte, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return []byte("{}"), nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, &ValidationError{Message: "request body must be a JSON object"}
	}
	for key := range fields {
		for _, protected := range serverFields {
			if strings.EqualFold(key, protected) {
				delete(fields, key)
			}
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("re-encode payload: %w", err)
	}
	return out, nil
}

func decodeError(err error) error {
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
		return invalid(typeErr.Field, "expected %s", typeErr.Type)
	}
	return &ValidationError{Message: "request body is not valid JSON"}
}

func newRecordID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}
	return id.String(), nil
}
