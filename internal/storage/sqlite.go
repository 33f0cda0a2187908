package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite run journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "paperllm.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: outcomes are written from many pipeline goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Runs ---

func (s *Store) CreateRun(r Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, apply, model, context_size, tag)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.StartedAt), r.Apply, r.Model, r.ContextSize, r.Tag,
	)
	return err
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(id string, finishedAt time.Time, total, failed int) error {
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, total = ?, failed = ? WHERE id = ?`,
		formatTime(finishedAt), total, failed, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, started_at, finished_at, apply, model, context_size, tag, total, failed`

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	if err := sc.Scan(&r.ID, &startedAt, &finishedAt, &r.Apply, &r.Model, &r.ContextSize, &r.Tag, &r.Total, &r.Failed); err != nil {
		return Run{}, err
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	r.StartedAt = t
	if finishedAt.Valid {
		if r.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return Run{}, fmt.Errorf("parsing finished_at: %w", err)
		}
	}
	return r, nil
}

// --- Outcomes ---

// SaveOutcome stores the outcome of one document. A second outcome for the
// same document in the same run replaces the first.
func (s *Store) SaveOutcome(o Outcome) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	oldFields := o.OldCustomFields
	if oldFields == "" {
		oldFields = "[]"
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO outcomes (run_id, doc_id, stage, failed_stage, error, old_title, new_title,
			old_custom_fields, patch_json, applied, truncated, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.DocID, o.Stage, o.FailedStage, o.Error, o.OldTitle, o.NewTitle,
		oldFields, o.PatchJSON, o.Applied, o.Truncated, o.ElapsedMS, formatTime(createdAt),
	)
	return err
}

const outcomeColumns = `run_id, doc_id, stage, failed_stage, error, old_title, new_title,
	old_custom_fields, patch_json, applied, truncated, elapsed_ms, created_at`

// Outcomes returns the outcomes of a run ordered by document id.
func (s *Store) Outcomes(runID string) ([]Outcome, error) {
	return s.queryOutcomes(`SELECT `+outcomeColumns+` FROM outcomes WHERE run_id = ? ORDER BY doc_id ASC`, runID)
}

// DocumentHistory returns every journaled outcome of a document, newest first.
// The old title of the earliest applied outcome is the title before any
// automatic change.
func (s *Store) DocumentHistory(docID int) ([]Outcome, error) {
	return s.queryOutcomes(`SELECT `+outcomeColumns+` FROM outcomes WHERE doc_id = ? ORDER BY created_at DESC, rowid DESC`, docID)
}

func (s *Store) queryOutcomes(query string, args ...any) ([]Outcome, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Outcome
	for rows.Next() {
		var o Outcome
		var createdAt string
		if err := rows.Scan(&o.RunID, &o.DocID, &o.Stage, &o.FailedStage, &o.Error, &o.OldTitle, &o.NewTitle,
			&o.OldCustomFields, &o.PatchJSON, &o.Applied, &o.Truncated, &o.ElapsedMS, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		o.CreatedAt = t
		results = append(results, o)
	}
	return results, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
