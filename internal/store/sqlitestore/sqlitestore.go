// Package sqlitestore implements the JobStore port on SQLite via sqlx.
// Artifact payloads are lz4-compressed at rest; write-once is enforced by
// the primary key. Suited to single-node deployments that need durable
// status and artifacts without an external service.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pierrec/lz4/v4"

	"github.com/stemforge/stemforge/pkg/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_status (
	job_id TEXT PRIMARY KEY,
	blob   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_artifacts (
	job_id       TEXT NOT NULL,
	name         TEXT NOT NULL,
	data         BLOB NOT NULL,
	raw_size     INTEGER NOT NULL,
	PRIMARY KEY (job_id, name)
);

CREATE TABLE IF NOT EXISTS job_inputs (
	job_id TEXT NOT NULL,
	name   TEXT NOT NULL,
	data   BLOB NOT NULL,
	PRIMARY KEY (job_id, name)
);
`

// Store is a SQLite-backed JobStore.
type Store struct {
	db *sqlx.DB
}

// Open opens (and creates if needed) the store at the given DSN. Use
// ":memory:" for an ephemeral store.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", dsn, err)
	}

	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite store: %w", err)
	}

	return nil
}

// SetStatus implements ports.JobStore. Last writer wins.
func (s *Store) SetStatus(ctx context.Context, jobID string, blob ports.StatusBlob) error {
	payload, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode status %s: %w", jobID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_status (job_id, blob) VALUES (?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET blob = excluded.blob`,
		jobID, string(payload))
	if err != nil {
		return fmt.Errorf("set status %s: %w", jobID, err)
	}

	return nil
}

// GetStatus implements ports.JobStore.
func (s *Store) GetStatus(ctx context.Context, jobID string) (ports.StatusBlob, error) {
	var payload string

	err := s.db.GetContext(ctx, &payload,
		`SELECT blob FROM job_status WHERE job_id = ?`, jobID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ports.StatusBlob{}, fmt.Errorf("status %s: %w", jobID, ports.ErrNotFound)
	case err != nil:
		return ports.StatusBlob{}, fmt.Errorf("get status %s: %w", jobID, err)
	}

	var blob ports.StatusBlob
	if err := json.Unmarshal([]byte(payload), &blob); err != nil {
		return ports.StatusBlob{}, fmt.Errorf("decode status %s: %w", jobID, err)
	}

	return blob, nil
}

// PutArtifact implements ports.JobStore. The primary key enforces
// write-once; payloads are lz4-compressed.
func (s *Store) PutArtifact(ctx context.Context, jobID, name string, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return fmt.Errorf("compress artifact %s/%s: %w", jobID, name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_artifacts (job_id, name, data, raw_size) VALUES (?, ?, ?, ?)`,
		jobID, name, compressed, len(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrArtifactExists)
		}

		return fmt.Errorf("put artifact %s/%s: %w", jobID, name, err)
	}

	return nil
}

// GetArtifact implements ports.JobStore.
func (s *Store) GetArtifact(ctx context.Context, jobID, name string) ([]byte, error) {
	var row struct {
		Data    []byte `db:"data"`
		RawSize int64  `db:"raw_size"`
	}

	err := s.db.GetContext(ctx, &row,
		`SELECT data, raw_size FROM job_artifacts WHERE job_id = ? AND name = ?`,
		jobID, name)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("artifact %s/%s: %w", jobID, name, ports.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("get artifact %s/%s: %w", jobID, name, err)
	}

	data, err := decompress(row.Data, row.RawSize)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact %s/%s: %w", jobID, name, err)
	}

	return data, nil
}

// PutInput implements ports.JobStore. Inputs are overwritable.
func (s *Store) PutInput(ctx context.Context, jobID, name string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_inputs (job_id, name, data) VALUES (?, ?, ?)
		 ON CONFLICT(job_id, name) DO UPDATE SET data = excluded.data`,
		jobID, name, data)
	if err != nil {
		return fmt.Errorf("put input %s/%s: %w", jobID, name, err)
	}

	return nil
}

// GetInputs implements ports.JobStore.
func (s *Store) GetInputs(ctx context.Context, jobID string) (map[string][]byte, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT name, data FROM job_inputs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get inputs %s: %w", jobID, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)

	for rows.Next() {
		var (
			name string
			data []byte
		)

		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan input %s: %w", jobID, err)
		}

		out[name] = data
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs %s: %w", jobID, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("inputs %s: %w", jobID, ports.ErrNotFound)
	}

	return out, nil
}

// compress lz4-block-compresses a payload. Empty payloads pass through.
func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	buf := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// Incompressible input: store raw, signalled by n == 0.
	if n == 0 {
		return data, nil
	}

	return buf[:n], nil
}

// decompress reverses compress using the stored raw size.
func decompress(data []byte, rawSize int64) ([]byte, error) {
	if rawSize == 0 {
		return nil, nil
	}

	// Raw fallback for incompressible payloads.
	if int64(len(data)) == rawSize {
		return data, nil
	}

	out := make([]byte, rawSize)

	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	return out[:n], nil
}

// isUniqueViolation reports whether the error is a primary-key conflict.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrConstraint
}
