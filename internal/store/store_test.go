package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	return New(NewFileBackend(path), nil), path
}

func TestLoadInitializesMissingFile(t *testing.T) {
	s, path := newFileStore(t)

	d, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, d.Users)
	assert.NotNil(t, d.Sessions)
	assert.NotNil(t, d.Emails)
	assert.Empty(t, d.Contacts)

	raw, err := os.ReadFile(path)
	require.NoError(t, err, "initial document should be persisted")

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, name := range []string{
		CollectionUsers, CollectionSessions, CollectionContacts, CollectionLeads,
		CollectionTasks, CollectionEvents, CollectionDocuments, CollectionEmails,
	} {
		assert.JSONEq(t, "[]", string(keys[name]), "collection %s", name)
	}
}

func TestSaveReplacesDocument(t *testing.T) {
	s, path := newFileStore(t)
	ctx := context.Background()

	d, err := s.Load(ctx)
	require.NoError(t, err)
	c := Contact{Name: "Jane", Status: "Active"}
	c.ID, c.UserID = "c1", "u1"
	d.Contacts = append(d.Contacts, c)
	require.NoError(t, s.Save(ctx, d))

	reopened := New(NewFileBackend(path), nil)
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Contacts, 1)
	assert.Equal(t, c, got.Contacts[0])
	assert.Empty(t, got.Users)
}

func TestLoadAddsMissingCollectionsAndPersists(t *testing.T) {
	s, path := newFileStore(t)
	legacy := `{"users":[{"id":"u1","name":"Ann","email":"ann@x.com"}],"contacts":[]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	d, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, d.Users, 1)
	assert.Equal(t, "Ann", d.Users[0].Name)
	assert.NotNil(t, d.Leads)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Contains(t, keys, CollectionLeads)
	assert.Contains(t, keys, CollectionSessions)
}

func TestLoadCorruptDocument(t *testing.T) {
	s, path := newFileStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.Load(context.Background())
	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.True(t, IsStoreFailure(err))

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(raw), "corrupt file must not be overwritten")
}

func TestUpdatePersistsAndNoChangeSkipsWrite(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(d *Dataset) error {
		d.Users = append(d.Users, User{ID: "u1", Email: "ann@x.com"})
		return nil
	})
	require.NoError(t, err)

	backend := &countingBackend{Backend: s.backend}
	s.backend = backend
	err = s.Update(ctx, func(d *Dataset) error {
		d.Users = nil
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Zero(t, backend.writes)

	d, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, d.Users, 1)
}

func TestUpdateCallbackErrorAbortsSave(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(d *Dataset) error {
		d.Users = append(d.Users, User{ID: "u1"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	d, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.Users)
}

func TestUpdateWriteFailure(t *testing.T) {
	s := New(&failingBackend{}, nil)
	err := s.Update(context.Background(), func(d *Dataset) error { return nil })

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "failing", writeErr.Source)
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, func(d *Dataset) error {
				d.Tasks = append(d.Tasks, Task{Title: "t"})
				return nil
			}))
		}()
	}
	wg.Wait()

	d, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Tasks, writers)
}

func TestRecordMetaFlattensInJSON(t *testing.T) {
	lead := Lead{DealName: "Acme Deal", Value: 5000, Status: "New"}
	lead.ID = "l1"
	lead.UserID = "u1"

	raw, err := json.Marshal(lead)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "l1", fields["id"])
	assert.Equal(t, "u1", fields["userId"])
	assert.Equal(t, "Acme Deal", fields["dealName"])
	assert.Equal(t, lead.Meta(), &lead.RecordMeta)
}

func TestFileBackendPing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewFileBackend(filepath.Join(dir, "db.json")).Ping(context.Background()))
	require.Error(t, NewFileBackend(filepath.Join(dir, "missing", "db.json")).Ping(context.Background()))
}

type countingBackend struct {
	Backend
	writes int
}

func (b *countingBackend) Write(ctx context.Context, data []byte) error {
	b.writes++
	return b.Backend.Write(ctx, data)
}

type failingBackend struct{}

func (failingBackend) Read(context.Context) ([]byte, error) { return []byte(`{}`), nil }
func (failingBackend) Write(context.Context, []byte) error  { return errors.New("disk full") }
func (failingBackend) Ping(context.Context) error           { return nil }
func (failingBackend) String() string                       { return "failing" }
