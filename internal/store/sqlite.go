package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteSink persists records to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (and if needed initializes) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteSink{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS records(
	  key        TEXT PRIMARY KEY,
	  category   TEXT NOT NULL,
	  session_id TEXT NOT NULL,
	  ts         INTEGER NOT NULL,
	  value_json TEXT NOT NULL CHECK (json_valid(value_json))
	);
	CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id);
	CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);
	CREATE INDEX IF NOT EXISTS idx_records_ts ON records(ts);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Put stores one record. The category, session id, and timestamp are
// recovered from the key so they stay queryable columns.
func (s *SQLiteSink) Put(ctx context.Context, key string, value []byte) error {
	cat, sessionID, ts, err := splitKey(key)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records(key, category, session_id, ts, value_json)
		 VALUES(?,?,?,?,json(?))`,
		key, cat, sessionID, ts, string(value))
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// SessionRecords returns the stored values for one session and category,
// ordered by timestamp.
func (s *SQLiteSink) SessionRecords(ctx context.Context, cat Category, sessionID string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value_json FROM records WHERE category = ? AND session_id = ? ORDER BY ts`,
		string(cat), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, []byte(value))
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// splitKey parses <category>_<sessionId>_<timestamp>. Session ids may
// themselves contain underscores, so it splits at the first and last.
func splitKey(key string) (string, string, int64, error) {
	first := strings.IndexByte(key, '_')
	last := strings.LastIndexByte(key, '_')
	if first < 0 || last <= first {
		return "", "", 0, fmt.Errorf("malformed record key %q", key)
	}

	var ts int64
	if _, err := fmt.Sscanf(key[last+1:], "%d", &ts); err != nil {
		return "", "", 0, fmt.Errorf("malformed timestamp in key %q", key)
	}

	return key[:first], key[first+1 : last], ts, nil
}
