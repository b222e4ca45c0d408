// Package eventlog persists an append-only audit trail of daemon events in
// SQLite. The log is write-mostly and read only for history queries; daemon
// state is never reconstructed from it.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gsd-build/gsd-relay/internal/identity"
	"github.com/gsd-build/gsd-relay/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	sequence   INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL UNIQUE,
	type       TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	event_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`

// Log is a SQLite-backed event log.
type Log struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the event log database at the given path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	// Single writer; the daemon is the only process touching this file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize event log schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append records one event.
func (l *Log) Append(event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.Exec(
		`INSERT INTO events (event_id, type, timestamp, event_json) VALUES (?, ?, ?, ?)`,
		identity.GenerateEventID(),
		event.EventType(),
		time.Now().UTC().Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Emit implements types.Sink. Append failures must not disturb request
// handling, so they are reported to stderr and dropped.
func (l *Log) Emit(event types.Event) {
	if err := l.Append(event); err != nil {
		fmt.Fprintf(os.Stderr, "event log append failed: %v\n", err)
	}
}

// Entry is one stored event.
type Entry struct {
	Sequence  int64           `json:"sequence"`
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	EventJSON json.RawMessage `json:"event_json"`
}

// Recent returns the latest events in chronological order, up to limit.
func (l *Log) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT sequence, event_id, type, timestamp, event_json
		 FROM events ORDER BY sequence DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventJSON string
		if err := rows.Scan(&e.Sequence, &e.EventID, &e.Type, &e.Timestamp, &eventJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventJSON = json.RawMessage(eventJSON)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	// Query is newest-first for the LIMIT; flip to chronological
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
