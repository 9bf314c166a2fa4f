package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// DefaultDocumentName is the row key used when a deployment keeps a single
// dataset in PostgreSQL.
const DefaultDocumentName = "default"

// PostgresBackend stores the dataset as one JSONB row in crm_documents.
type PostgresBackend struct {
	pool PgxPool
	name string
}

func NewPostgresBackend(pool PgxPool, name string) *PostgresBackend {
	if name == "" {
		name = DefaultDocumentName
	}
	return &PostgresBackend{pool: pool, name: name}
}

func (b *PostgresBackend) String() string { return "postgres:" + b.name }

func (b *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	const q = `SELECT body FROM crm_documents WHERE name=$1`
	var body []byte
	if err := b.pool.QueryRow(ctx, q, b.name).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	return body, nil
}

func (b *PostgresBackend) Write(ctx context.Context, data []byte) error {
	const q = `INSERT INTO crm_documents (name, body, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`
	_, err := b.pool.Exec(ctx, q, b.name, string(data))
	return err
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
