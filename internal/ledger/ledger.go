package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Ledger is a SQLite-backed record of batches and job runs.
type Ledger struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

type Batch struct {
	ID         string
	Source     string
	Jobs       int
	Workers    int
	Shell      string
	StartedAt  time.Time
	FinishedAt time.Time
	Failed     int
}

type JobRun struct {
	BatchID    string
	Index      int
	Name       string
	Command    string
	WorkDir    string
	OK         bool
	ExitCode   int
	Error      string
	Elapsed    time.Duration
	PID        int
	FinishedAt time.Time
}

var nowFn = time.Now

func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; workers record through the same handle
	db.SetMaxOpenConns(1)
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	if _, err := l.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := l.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	if l == nil || l.db == nil {
		return errors.New("db not initialized")
	}
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// CommandHash identifies a command line across batches.
func CommandHash(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}

// BeginBatch inserts b and returns its ID, generating one when b.ID is
// empty.
func (l *Ledger) BeginBatch(ctx context.Context, b Batch) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = nowFn()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO batches (id, source, jobs, workers, shell, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Source, b.Jobs, b.Workers, b.Shell, b.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}
	return b.ID, nil
}

func (l *Ledger) RecordJob(ctx context.Context, run JobRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = nowFn()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_runs
		 (batch_id, job_index, name, command, command_hash, workdir, ok, exit_code, error, elapsed_ms, pid, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.BatchID, run.Index, run.Name, run.Command, CommandHash(run.Command), run.WorkDir,
		boolToInt(run.OK), run.ExitCode, run.Error, run.Elapsed.Milliseconds(), run.PID,
		run.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert job run %d: %w", run.Index, err)
	}
	return nil
}

func (l *Ledger) FinishBatch(ctx context.Context, id string, failed int) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE batches SET finished_at = ?, failed = ? WHERE id = ?`,
		nowFn().UTC().Format(time.RFC3339Nano), failed, id)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish batch: unknown batch %q", id)
	}
	return nil
}

// Succeeded returns the subset of commands that have at least one
// successful run on record.
func (l *Ledger) Succeeded(ctx context.Context, commands []string) (map[string]bool, error) {
	done := make(map[string]bool)
	if len(commands) == 0 {
		return done, nil
	}

	byHash := make(map[string]string, len(commands))
	for _, c := range commands {
		byHash[CommandHash(c)] = c
	}

	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT command_hash FROM job_runs WHERE ok = 1`)
	if err != nil {
		return nil, fmt.Errorf("query succeeded: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		if c, ok := byHash[hash]; ok {
			done[c] = true
		}
	}
	return done, rows.Err()
}

// Batch loads a batch by ID.
func (l *Ledger) Batch(ctx context.Context, id string) (Batch, error) {
	var (
		b        Batch
		started  string
		finished sql.NullString
		failed   sql.NullInt64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, source, jobs, workers, shell, started_at, finished_at, failed FROM batches WHERE id = ?`, id).
		Scan(&b.ID, &b.Source, &b.Jobs, &b.Workers, &b.Shell, &started, &finished, &failed)
	if err != nil {
		return Batch{}, fmt.Errorf("load batch %q: %w", id, err)
	}
	b.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		b.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	b.Failed = int(failed.Int64)
	return b, nil
}

// Runs returns the job runs of a batch ordered by index.
func (l *Ledger) Runs(ctx context.Context, batchID string) ([]JobRun, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT job_index, name, command, workdir, ok, exit_code, error, elapsed_ms, pid, finished_at
		 FROM job_runs WHERE batch_id = ? ORDER BY job_index`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		run := JobRun{BatchID: batchID}
		var ok int
		var elapsedMS int64
		var finished string
		if err := rows.Scan(&run.Index, &run.Name, &run.Command, &run.WorkDir, &ok, &run.ExitCode,
			&run.Error, &elapsedMS, &run.PID, &finished); err != nil {
			return nil, err
		}
		run.OK = ok != 0
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
