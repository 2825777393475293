// Package sessions persists workflow run contexts in SQLite so a caller
// session can pick a run up again by id, across tool calls and restarts.
//
// The tracker never touches this package: contexts are plain values and the
// MCP tool layer decides when to save and load them.
package sessions

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/substrate/internal/execution"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed-width so updated_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ─── Types ───────────────────────────────────────────────────────────────────

// Config holds session store configuration.
type Config struct {
	// Path is the database file. Its directory is created if needed.
	Path string
}

// DefaultConfig returns the default configuration for the session store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{Path: filepath.Join(home, ".substrate", "sessions.db")}
}

// Summary is the listing form of a stored run.
type Summary struct {
	ID          string           `json:"id"`
	Workflow    string           `json:"workflow"`
	Status      execution.Status `json:"status"`
	CurrentStep string           `json:"current_step,omitempty"`
	Steps       int              `json:"steps_completed"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed run store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at cfg.Path with WAL mode and runs
// migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("sessions: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sessions: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sessions: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			workflow     TEXT NOT NULL,
			status       TEXT NOT NULL,
			current_step TEXT NOT NULL DEFAULT '',
			steps        INTEGER NOT NULL DEFAULT 0,
			data         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow, updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Runs ────────────────────────────────────────────────────────────────────

// Save inserts or replaces the stored copy of c.
func (s *Store) Save(c execution.Context) error {
	if c.ID == "" {
		return errors.New("sessions: run has no id")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("sessions: encode run %s: %w", c.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, workflow, status, current_step, steps, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			workflow     = excluded.workflow,
			status       = excluded.status,
			current_step = excluded.current_step,
			steps        = excluded.steps,
			data         = excluded.data,
			updated_at   = excluded.updated_at`,
		c.ID, c.Workflow, string(c.Status), c.CurrentStep, len(c.History), string(data),
		c.CreatedAt.UTC().Format(timeLayout), c.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sessions: save run %s: %w", c.ID, err)
	}
	return nil
}

// Load returns the stored run with the given id.
func (s *Store) Load(id string) (execution.Context, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Context{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return execution.Context{}, fmt.Errorf("sessions: load run %s: %w", id, err)
	}

	var c execution.Context
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return execution.Context{}, fmt.Errorf("sessions: decode run %s: %w", id, err)
	}
	if c.Inputs == nil {
		c.Inputs = map[string]any{}
	}
	if c.Outputs == nil {
		c.Outputs = map[string]map[string]any{}
	}
	return c, nil
}

// Delete removes a stored run.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sessions: delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessions: delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns stored runs, most recently updated first, optionally
// filtered by workflow name.
func (s *Store) List(workflow string) ([]Summary, error) {
	query := `SELECT id, workflow, status, current_step, steps, updated_at FROM runs`
	var args []any
	if workflow != "" {
		query += ` WHERE workflow = ?`
		args = append(args, workflow)
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var status, updated string
		if err := rows.Scan(&sum.ID, &sum.Workflow, &status, &sum.CurrentStep, &sum.Steps, &updated); err != nil {
			return nil, fmt.Errorf("sessions: scan run: %w", err)
		}
		sum.Status = execution.Status(status)
		sum.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}
