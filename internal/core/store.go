package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pilotrun/pilotrun/pkg/api"
)

// Store is the SQLite-backed launch ledger. Every compile and spawn leaves
// a row; `pilotrun ls` reads them back. This is operational bookkeeping,
// not analytics.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

// LaunchRecord is one ledger row: a compiled launch and, once spawned, its
// lifecycle state and exit code.
type LaunchRecord struct {
	UID      string
	RunID    string
	Method   string
	Command  string
	Wrapper  string
	Sandbox  string
	State    api.TaskState
	ExitCode int
	Created  time.Time
	Updated  time.Time
}

// SaveLaunch inserts a new ledger row.
func (s *Store) SaveLaunch(ctx context.Context, rec LaunchRecord) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_launches (uid, run_id, method, command, wrapper, sandbox, state, exit_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UID, rec.RunID, rec.Method, rec.Command, rec.Wrapper, rec.Sandbox, string(rec.State), rec.ExitCode, now, now)
	if err != nil {
		return fmt.Errorf("save launch: %w", err)
	}
	return nil
}

// UpdateSandbox records where a run's sandbox landed.
func (s *Store) UpdateSandbox(ctx context.Context, runID, dir string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_launches SET sandbox = ?, updated_at = ? WHERE run_id = ?`,
		dir, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("update sandbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run not recorded: %s", runID)
	}
	return nil
}

// UpdateState advances the lifecycle of one run.
func (s *Store) UpdateState(ctx context.Context, runID string, state api.TaskState, exitCode int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_launches SET state = ?, exit_code = ?, updated_at = ? WHERE run_id = ?`,
		string(state), exitCode, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run not recorded: %s", runID)
	}
	return nil
}

// GetTask returns the most recent ledger row for a task uid.
func (s *Store) GetTask(ctx context.Context, uid string) (LaunchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT uid, run_id, method, command, wrapper, sandbox, state, exit_code, created_at, updated_at
		 FROM task_launches WHERE uid = ? ORDER BY id DESC LIMIT 1`, uid)
	rec, err := scanLaunch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LaunchRecord{}, fmt.Errorf("task not recorded: %s", uid)
	}
	return rec, err
}

// ListTasks returns up to limit rows, newest first. limit <= 0 lists all.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]LaunchRecord, error) {
	query := `SELECT uid, run_id, method, command, wrapper, sandbox, state, exit_code, created_at, updated_at
		 FROM task_launches ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []LaunchRecord
	for rows.Next() {
		rec, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLaunch(row rowScanner) (LaunchRecord, error) {
	var rec LaunchRecord
	var state string
	err := row.Scan(&rec.UID, &rec.RunID, &rec.Method, &rec.Command, &rec.Wrapper,
		&rec.Sandbox, &state, &rec.ExitCode, &rec.Created, &rec.Updated)
	if err != nil {
		return LaunchRecord{}, err
	}
	rec.State = api.TaskState(state)
	return rec, nil
}
