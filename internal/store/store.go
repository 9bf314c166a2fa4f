package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Backend persists the raw dataset bytes. Read returns ErrNoDocument when
// nothing has been written yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	String() string
}

// Store owns the persisted dataset. Every operation re-reads the backend;
// nothing is cached between calls. A single mutex serializes read-modify-write
// cycles so concurrent requests cannot drop each other's changes.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *slog.Logger
}

// New wires a Store on top of a persistence backend.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Load reads the dataset, creating and persisting an empty one when absent and
// filling in collections missing from older documents.
func (s *Store) Load(ctx context.Context) (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save overwrites the persisted dataset in full.
func (s *Store) Save(ctx context.Context, d *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, d)
}

// View loads the dataset and hands it to fn without writing it back.
func (s *Store) View(ctx context.Context, fn func(d *Dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.load(ctx)
	if err != nil {
		return err
	}
	return fn(d)
}

// Update runs one load, mutate, save cycle. If fn fails the dataset is not
// saved and the error is returned, except ErrNoChange which ends the cycle
// successfully without a write.
func (s *Store) Update(ctx context.Context, fn func(d *Dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	return s.save(ctx, d)
}

// HealthCheck verifies that the underlying backend is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "store.ping")()
	return s.backend.Ping(ctx)
}

func (s *Store) load(ctx context.Context) (*Dataset, error) {
	data, err := s.read(ctx)
	if errors.Is(err, ErrNoDocument) {
		d := newDataset()
		if err := s.save(ctx, d); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "initialized empty document", "backend", s.backend.String())
		return d, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "document unreadable", "backend", s.backend.String(), "error", err)
		return nil, &CorruptError{Source: s.backend.String(), Err: err}
	}

	d := &Dataset{}
	if err := json.Unmarshal(data, d); err != nil {
		s.logger.ErrorContext(ctx, "document unparseable", "backend", s.backend.String(), "error", err)
		return nil, &CorruptError{Source: s.backend.String(), Err: err}
	}

	if ensureCollections(d) {
		if err := s.save(ctx, d); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "added missing collections to document", "backend", s.backend.String())
	}
	return d, nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	defer observeDB(ctx, "store.read")()
	return s.backend.Read(ctx)
}

func (s *Store) save(ctx context.Context, d *Dataset) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return &WriteError{Source: s.backend.String(), Err: fmt.Errorf("encode: %w", err)}
	}

	defer observeDB(ctx, "store.write")()
	if err := s.backend.Write(ctx, data); err != nil {
		s.logger.ErrorContext(ctx, "document write failed", "backend", s.backend.String(), "error", err)
		return &WriteError{Source: s.backend.String(), Err: err}
	}
	return nil
}
