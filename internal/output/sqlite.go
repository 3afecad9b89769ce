package output

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/maxvaer/zrprobe/internal/classify"
)

const createTablesQuery = `
CREATE TABLE IF NOT EXISTS scan (
	uuid          TEXT PRIMARY KEY,
	scan_id       TEXT,
	profile       TEXT,
	state         TEXT NOT NULL,
	total         INTEGER NOT NULL DEFAULT 0,
	scanned       INTEGER NOT NULL DEFAULT 0,
	accessible    INTEGER NOT NULL DEFAULT 0,
	bytes_used    INTEGER NOT NULL DEFAULT 0,
	requests_made INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS host_result (
	uuid        TEXT PRIMARY KEY,
	scan_uuid   TEXT NOT NULL REFERENCES scan(uuid),
	host        TEXT NOT NULL,
	category    TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	body_size   INTEGER NOT NULL,
	scheme      TEXT,
	outcome     TEXT,
	reason      TEXT,
	attempt     INTEGER NOT NULL,
	bytes_used  INTEGER NOT NULL,
	latency_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_host_result_scan ON host_result(scan_uuid, category);
`

// SQLiteWriter appends each scan and its host results to a SQLite
// database, so repeated runs build up a history.
type SQLiteWriter struct {
	db       *sql.DB
	scanUUID uuid.UUID
}

// NewSQLiteWriter opens (or creates) the database at path and registers a
// new scan row.
func NewSQLiteWriter(path, profile string) (*SQLiteWriter, error) {
	if path == "" {
		return nil, errors.New("sqlite output requires a file path")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("Failed to start DB connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(createTablesQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to create tables: %w", err)
	}

	w := &SQLiteWriter{db: db, scanUUID: uuid.New()}
	if _, err := db.Exec(
		`INSERT INTO scan (uuid, profile, state, started_at) VALUES (?, ?, ?, ?)`,
		w.scanUUID.String(), profile, "running", time.Now().UTC(),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to insert scan: %w", err)
	}
	return w, nil
}

// ScanUUID identifies this run's rows.
func (s *SQLiteWriter) ScanUUID() uuid.UUID {
	return s.scanUUID
}

func (s *SQLiteWriter) WriteHeader() error { return nil }

func (s *SQLiteWriter) WriteRecord(rec *classify.Record) error {
	if _, err := s.db.Exec(
		`INSERT INTO host_result (uuid, scan_uuid, host, category, status_code, body_size, scheme, outcome, reason, attempt, bytes_used, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), s.scanUUID.String(),
		rec.Host, string(rec.Category), rec.StatusCode, rec.BodySize,
		rec.Scheme, string(rec.Outcome), rec.Reason, rec.Attempt,
		rec.BytesUsed, rec.Latency.Milliseconds(),
	); err != nil {
		return fmt.Errorf("Failed to insert host result: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) WriteFooter(stats Stats) error {
	if _, err := s.db.Exec(
		`UPDATE scan SET scan_id = ?, state = ?, total = ?, scanned = ?, accessible = ?, bytes_used = ?, requests_made = ?, finished_at = ?
		WHERE uuid = ?`,
		stats.ScanID, stats.State, stats.Total, stats.Scanned, stats.Accessible,
		stats.Budget.BytesUsed, stats.Budget.RequestsMade, time.Now().UTC(),
		s.scanUUID.String(),
	); err != nil {
		return fmt.Errorf("Failed to update scan: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) Close() error {
	return s.db.Close()
}
