package sqldriver

import (
	"strconv"
	"strings"
)

// Dialect carries the per-database differences the shared driver needs.
type Dialect struct {
	// Name is the database/sql driver name the dialect is opened with.
	Name string

	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool

	// Schema is run in order on open. Statements must be idempotent.
	Schema []string
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			vdb_id TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			factory_id TEXT NOT NULL DEFAULT '',
			custom_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			has_embeddings BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			content_id TEXT NOT NULL,
			label TEXT NOT NULL,
			weight REAL NOT NULL,
			embedding BLOB,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS signals_session_idx ON signals(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			content_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS history_session_idx ON history(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS vector_stores (
			id TEXT PRIMARY KEY,
			quantizer TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			payload TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	},
}

// Postgres is the dialect for the pgx stdlib driver.
var Postgres = Dialect{
	Name:     "pgx",
	Numbered: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			vdb_id TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			factory_id TEXT NOT NULL DEFAULT '',
			custom_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			has_embeddings BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			content_id TEXT NOT NULL,
			label TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL,
			embedding BYTEA,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS signals_session_idx ON signals(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS history (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			content_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS history_session_idx ON history(session_id, id)`,
		`CREATE TABLE IF NOT EXISTS vector_stores (
			id TEXT PRIMARY KEY,
			quantizer TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			payload TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	},
}

// Rebind rewrites ? placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
