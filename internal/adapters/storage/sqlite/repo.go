package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/tikk/internal/app"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// tsLayout is fixed-width UTC so stored timestamps order lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite backed app.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ app.Store = (*Store)(nil)

// Open opens (and migrates) the database file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := "file:" + path + "?" + pragmas(true).Encode()
	return open(dsn, path)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Store, error) {
	q := pragmas(false)
	q.Set("mode", "memory")
	q.Set("cache", "shared")
	return open("file:tikk-"+uuid.NewString()+"?"+q.Encode(), ":memory:")
}

func pragmas(file bool) url.Values {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if file {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	return q
}

func open(dsn, path string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: every transaction is a critical section.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the requested operation.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate handles migrate.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS project_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('active', 'archived')),
			effective_at TEXT NOT NULL,
			UNIQUE(project_id, version),
			FOREIGN KEY(project_id) REFERENCES projects(id)
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS task_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL,
			project_id INTEGER NOT NULL,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('active', 'archived')),
			effective_at TEXT NOT NULL,
			UNIQUE(task_id, version),
			FOREIGN KEY(task_id) REFERENCES tasks(id),
			FOREIGN KEY(project_id) REFERENCES projects(id)
		);`,
		`CREATE TABLE IF NOT EXISTS id_sequences (
			name TEXT PRIMARY KEY,
			next INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO id_sequences(name, next) VALUES ('project', 0), ('task', 0);`,
		// Events are never validated against tasks; the log records what happened.
		`CREATE TABLE IF NOT EXISTS time_entry_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id INTEGER NOT NULL,
			event_type TEXT NOT NULL CHECK (event_type IN ('start', 'stop', 'annotate')),
			at TEXT NOT NULL,
			start_event_id INTEGER,
			payload TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_versions_current ON project_versions(project_id, effective_at DESC, version DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_task_versions_current ON task_versions(task_id, effective_at DESC, version DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_events_start_ref ON time_entry_events(start_event_id, event_type, id);`,
		`CREATE INDEX IF NOT EXISTS idx_events_task ON time_entry_events(task_id, event_type, at);`,
		`CREATE VIEW IF NOT EXISTS project_current_view AS
			SELECT pv.project_id, pv.version, pv.name, pv.status, pv.effective_at
			FROM project_versions pv
			WHERE pv.id = (
				SELECT x.id FROM project_versions x
				WHERE x.project_id = pv.project_id
				ORDER BY x.effective_at DESC, x.version DESC
				LIMIT 1
			);`,
		`CREATE VIEW IF NOT EXISTS task_current_view AS
			SELECT tv.task_id, tv.project_id, tv.version, tv.name, tv.status, tv.effective_at
			FROM task_versions tv
			WHERE tv.id = (
				SELECT x.id FROM task_versions x
				WHERE x.task_id = tv.task_id
				ORDER BY x.effective_at DESC, x.version DESC
				LIMIT 1
			);`,
		// The closing stop of a start is the stop of the same task with the smallest id that references it.
		`DROP VIEW IF EXISTS time_entries_view;`,
		`CREATE VIEW time_entries_view AS
			SELECT
				s.id AS start_event_id,
				s.task_id AS task_id,
				s.at AS start_time,
				(
					SELECT st.at FROM time_entry_events st
					WHERE st.event_type = 'stop' AND st.start_event_id = s.id AND st.task_id = s.task_id
					ORDER BY st.id ASC
					LIMIT 1
				) AS end_time
			FROM time_entry_events s
			WHERE s.event_type = 'start';`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// Repositories returns repositories that run each call on the pool.
func (s *Store) Repositories() app.Repositories {
	return s.repos(conn{db: s.db})
}

// InTx runs fn inside one SQLite transaction.
func (s *Store) InTx(ctx context.Context, fn func(context.Context, app.Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback sqlite tx: %w", rbErr))
			}
		}
	}()

	if err = fn(ctx, s.repos(conn{tx: tx})); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func (s *Store) repos(c conn) app.Repositories {
	return app.Repositories{
		Projects: projectRepo{c: c},
		Tasks:    taskRepo{c: c},
		Entries:  entryRepo{c: c},
	}
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// conn is either the pool or an open transaction.
type conn struct {
	db *sql.DB
	tx *sql.Tx
}

func (c conn) q() dbtx {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// atomic runs fn in the open transaction, or in a fresh one.
func (c conn) atomic(ctx context.Context, fn func(dbtx) error) (err error) {
	if c.tx != nil {
		return fn(c.tx)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// nextSequence increments and returns a named id counter.
func nextSequence(ctx context.Context, q dbtx, name string) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx, `
		UPDATE id_sequences SET next = next + 1 WHERE name = ? RETURNING next
	`, name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", name, err)
	}
	return next, nil
}

// bumpSequence moves a counter past an explicitly saved id.
func bumpSequence(ctx context.Context, q dbtx, name string, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE id_sequences SET next = MAX(next, ?) WHERE name = ?`, id, name)
	return err
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// parseTS parses input into a normalized form.
func parseTS(v string) (time.Time, error) {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp %q: %w", v, err)
		}
	}
	return t.UTC(), nil
}

// namePrefixMatch matches names starting with the literal prefix.
const namePrefixMatch = `substr(name, 1, length(?)) = ?`
