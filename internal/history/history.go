// Package history keeps a local SQLite record of CLI decompositions so
// past runs can be listed and re-inspected without a running service.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

// Entry is one stored invocation. Envelope carries the full success
// envelope; the other columns exist so list queries never deserialize it.
type Entry struct {
	DecompositionID string
	Objective       string
	NodeCount       int
	Depth           int
	Confidence      float64
	CreatedAt       time.Time
	Envelope        json.RawMessage
}

// Store wraps the SQLite history file.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the history database location: XDG data dir when
// set, otherwise ~/.local/share/polya/history.db.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "polya", "history.db")
}

// Open opens (and if needed creates) the history database at path. WAL
// mode keeps concurrent list/show invocations from blocking each other.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decompositions (
			decomposition_id TEXT PRIMARY KEY,
			objective        TEXT NOT NULL,
			node_count       INTEGER NOT NULL,
			depth            INTEGER NOT NULL,
			confidence       REAL NOT NULL,
			created_at       DATETIME NOT NULL,
			envelope         TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Save records one finished invocation. A repeated decomposition id
// (cache hits replay the same envelope) overwrites the previous row.
func (s *Store) Save(env contracts.SuccessEnvelope) error {
	var res decompose.Result
	if err := json.Unmarshal(env.Event.Outputs, &res); err != nil {
		return fmt.Errorf("decode envelope outputs: %w", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO decompositions
			(decomposition_id, objective, node_count, depth, confidence, created_at, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, res.DecompositionID, res.OriginalObjective,
		res.Analysis.TotalSubObjectives, res.Analysis.MaxDepthReached,
		env.Event.Confidence, env.Event.Timestamp.UTC(), string(raw))
	if err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first, without envelopes.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT decomposition_id, objective, node_count, depth, confidence, created_at
		FROM decompositions
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DecompositionID, &e.Objective, &e.NodeCount,
			&e.Depth, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry with its full envelope. A unique id prefix is
// accepted so callers can paste the short form from list output.
func (s *Store) Get(id string) (*Entry, error) {
	rows, err := s.db.Query(`
		SELECT decomposition_id, objective, node_count, depth, confidence, created_at, envelope
		FROM decompositions
		WHERE decomposition_id = ? OR decomposition_id LIKE ?
		LIMIT 2
	`, id, id+"%")
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var matches []Entry
	for rows.Next() {
		var e Entry
		var raw string
		if err := rows.Scan(&e.DecompositionID, &e.Objective, &e.NodeCount,
			&e.Depth, &e.Confidence, &e.CreatedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Envelope = json.RawMessage(raw)
		matches = append(matches, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no decomposition matches %q", id)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("prefix %q is ambiguous", id)
	}
}
