package eventlog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/msto63/hive/pkg/core/apperr"
)

// Event is one recorded block
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	EventID   string    `json:"event_id"`
	State     uint8     `json:"state"`
	Exception Exception `json:"exception"`
	Body      string    `json:"body"`
}

// Filter selects events. Zero fields do not filter.
type Filter struct {
	Kind  Kind
	Since time.Time
	Limit int
}

// Store persists events
type Store interface {
	Append(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter Filter) ([]*Event, error)
	Count(ctx context.Context, kind Kind) (int64, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepare fills ID and Timestamp when unset
func prepare(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}

// SQLiteStore implements Store on a SQLite database in WAL mode
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLite opens or creates the event database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, apperr.Wrap(err, "failed to create event log directory").WithCode(apperr.CodeDatabase)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperr.Wrap(err, "failed to open event log").WithCode(apperr.CodeDatabase)
	}
	// One connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperr.Wrap(err, "failed to initialize event log schema").WithCode(apperr.CodeDatabase)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		event_id TEXT NOT NULL,
		state INTEGER NOT NULL,
		exception INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores an event
func (s *SQLiteStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(event)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, kind, event_id, state, exception, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp.UTC(), string(event.Kind), event.EventID, event.State, event.Exception, event.Body)
	if err != nil {
		return apperr.Wrap(err, "failed to insert event").WithCode(apperr.CodeDatabase)
	}
	return nil
}

// Query returns matching events, newest first
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, timestamp, kind, event_id, state, exception, body FROM events WHERE 1=1`
	var args []interface{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to query events").WithCode(apperr.CodeDatabase)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.Timestamp, &kind, &e.EventID, &e.State, &e.Exception, &e.Body); err != nil {
			return nil, apperr.Wrap(err, "failed to scan event").WithCode(apperr.CodeDatabase)
		}
		e.Kind = Kind(kind)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, "failed to read events").WithCode(apperr.CodeDatabase)
	}
	return events, nil
}

// Count returns the number of events of kind, or of all kinds for ""
func (s *SQLiteStore) Count(ctx context.Context, kind Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE kind = ?`, string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, apperr.Wrap(err, "failed to count events").WithCode(apperr.CodeDatabase)
	}
	return n, nil
}

// Prune removes events older than olderThan
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, apperr.Wrap(err, "failed to prune events").WithCode(apperr.CodeDatabase)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Wrap(err, "event log unreachable").WithCode(apperr.CodeDatabase)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-memory Store for tests and for running without a
// writable data directory
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of event
func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(event)
	e := *event
	s.events = append(s.events, &e)
	return nil
}

// Query returns matching events, newest first
func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Event
	for _, e := range s.events {
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		c := *e
		results = append(results, &c)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Count returns the number of events of kind, or of all kinds for ""
func (s *MemoryStore) Count(ctx context.Context, kind Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.events {
		if kind == "" || e.Kind == kind {
			n++
		}
	}
	return n, nil
}

// Prune removes events older than olderThan
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
