// Package sqldriver implements session.Store over database/sql. The sqlite
// and postgres packages open a connection and embed this driver.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/session"
)

// Driver is a session.Store over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

// New wraps db and runs the dialect's schema migration.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Driver{DB: db, Dialect: dialect}, nil
}

func (d *Driver) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.Dialect.Rebind(query), args...)
}

func (d *Driver) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, d.Dialect.Rebind(query), args...)
}

func (d *Driver) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, d.Dialect.Rebind(query), args...)
}

// Create inserts a new session.
func (d *Driver) Create(ctx context.Context, s *session.Session) error {
	if s == nil {
		return errors.New("cannot store nil session")
	}

	exists, err := d.exists(ctx, s.ID)
	if err != nil {
		return err
	}
	if exists {
		return session.ErrAlreadyExists
	}

	_, err = d.exec(ctx,
		`INSERT INTO sessions (id, vdb_id, algorithm, factory_id, custom_id, state, has_embeddings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VectorStoreID, string(s.Algorithm), s.FactoryID, s.CustomID,
		s.State, s.HasEmbeddings, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get returns the session or a session.NotFoundError.
func (d *Driver) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		s         session.Session
		algorithm string
	)
	err := d.queryRow(ctx,
		`SELECT id, vdb_id, algorithm, factory_id, custom_id, state, has_embeddings, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.VectorStoreID, &algorithm, &s.FactoryID, &s.CustomID,
		&s.State, &s.HasEmbeddings, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.Algorithm = blueprint.Kind(algorithm)
	return &s, nil
}

// UpdateState moves the session to state.
func (d *Driver) UpdateState(ctx context.Context, id, state string) error {
	res, err := d.exec(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
		state, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	return notFoundIfUntouched(res, id)
}

// AppendSignal inserts rec and moves its session in one transaction.
func (d *Driver) AppendSignal(ctx context.Context, rec session.SignalRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	embedding := encodeEmbedding(rec.Embedding)

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, d.Dialect.Rebind(
		`UPDATE sessions SET state = ?, updated_at = ?,
		 has_embeddings = CASE WHEN ? THEN TRUE ELSE has_embeddings END
		 WHERE id = ?`),
		rec.State, rec.CreatedAt.UTC(), embedding != nil, rec.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := notFoundIfUntouched(res, rec.SessionID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, d.Dialect.Rebind(
		`INSERT INTO signals (session_id, content_id, label, weight, embedding, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.SessionID, rec.ContentID, rec.Label, rec.Weight, embedding, rec.State, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	return tx.Commit()
}

// Signals returns the last n signals of the session, oldest first.
func (d *Driver) Signals(ctx context.Context, id string, n int) ([]session.SignalRecord, error) {
	if err := d.mustExist(ctx, id); err != nil {
		return nil, err
	}

	q := `SELECT session_id, content_id, label, weight, embedding, state, created_at
		  FROM signals WHERE session_id = ? ORDER BY id DESC`
	args := []any{id}
	if n > 0 {
		q += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var recs []session.SignalRecord
	for rows.Next() {
		var (
			rec       session.SignalRecord
			embedding []byte
		)
		if err := rows.Scan(&rec.SessionID, &rec.ContentID, &rec.Label, &rec.Weight,
			&embedding, &rec.State, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if rec.Embedding, err = decodeEmbedding(embedding); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest first from the query
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// AppendHistory adds content ids to the session history.
func (d *Driver) AppendHistory(ctx context.Context, id string, contentIDs []string) error {
	if err := d.mustExist(ctx, id); err != nil {
		return err
	}
	if len(contentIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(contentIDs))
	args := make([]any, 0, 2*len(contentIDs))
	for i, cid := range contentIDs {
		placeholders[i] = "(?, ?)"
		args = append(args, id, cid)
	}

	_, err := d.exec(ctx,
		`INSERT INTO history (session_id, content_id) VALUES `+strings.Join(placeholders, ", "),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// History returns the served content ids in serving order.
func (d *Driver) History(ctx context.Context, id string) ([]string, error) {
	if err := d.mustExist(ctx, id); err != nil {
		return nil, err
	}

	rows, err := d.query(ctx, `SELECT content_id FROM history WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

// PutVectorStore registers or replaces a vector store.
func (d *Driver) PutVectorStore(ctx context.Context, vs session.VectorStore) error {
	if vs.ID == "" {
		return errors.New("vector store id is required")
	}
	if vs.CreatedAt.IsZero() {
		vs.CreatedAt = time.Now().UTC()
	}

	_, err := d.exec(ctx,
		`INSERT INTO vector_stores (id, quantizer, dimensions, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET quantizer = excluded.quantizer,
		 dimensions = excluded.dimensions, payload = excluded.payload`,
		vs.ID, vs.Quantizer, vs.Dimensions, string(vs.Payload), vs.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector store: %w", err)
	}
	return nil
}

// HasVectorStore reports whether id is registered.
func (d *Driver) HasVectorStore(ctx context.Context, id string) (bool, error) {
	var n int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM vector_stores WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query vector store: %w", err)
	}
	return n > 0, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

func (d *Driver) exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := d.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query session: %w", err)
	}
	return n > 0, nil
}

func (d *Driver) mustExist(ctx context.Context, id string) error {
	ok, err := d.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return session.NotFoundError{ID: id}
	}
	return nil
}

func notFoundIfUntouched(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return session.NotFoundError{ID: id}
	}
	return nil
}
