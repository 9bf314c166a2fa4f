package migrations

import "embed"

// Files holds the SQL migrations for the PostgreSQL document backend, named
// NNN_description.sql and applied in lexical order.
//
//go:embed *.sql
var Files embed.FS
