package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded conversion run.
type Run struct {
	ID               string
	AssetRoot        string
	OutputDir        string
	Workers          int
	StartedAt        time.Time
	FinishedAt       time.Time
	Succeeded        int
	Failed           int
	Skipped          int
	ManifestsWritten int
	ManifestErrors   int
	BytesWritten     int64
}

// Duration returns the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Entry is the recorded outcome of one conversion job.
type Entry struct {
	Source     string
	Output     string
	State      string
	Attempts   int
	ExitCode   int
	Diagnostic string
	Consumers  int
	Duration   time.Duration
}

// RecordRun stores run and its entries in a single transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, entries []Entry) error {
	ctx = ensureContext(ctx)
	if run.ID == "" {
		return errors.New("run id is required")
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (
                id, asset_root, output_dir, workers, started_at, finished_at,
                succeeded, failed, skipped, manifests_written, manifest_errors, bytes_written
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			run.AssetRoot,
			nullableString(run.OutputDir),
			run.Workers,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
			run.Succeeded,
			run.Failed,
			run.Skipped,
			run.ManifestsWritten,
			run.ManifestErrors,
			run.BytesWritten,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO entries (
                run_id, source, output, state, attempts, exit_code, diagnostic, consumers, duration_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare entry insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err := stmt.ExecContext(ctx,
				run.ID,
				entry.Source,
				entry.Output,
				entry.State,
				entry.Attempts,
				entry.ExitCode,
				nullableString(entry.Diagnostic),
				entry.Consumers,
				entry.Duration.Milliseconds(),
			); err != nil {
				return fmt.Errorf("insert entry %s: %w", entry.Source, err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `id, asset_root, output_dir, workers, started_at, finished_at,
    succeeded, failed, skipped, manifests_written, manifest_errors, bytes_written`

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with id, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Entries returns the recorded jobs for runID ordered by source path.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, output, state, attempts, exit_code, diagnostic, consumers, duration_ms
         FROM entries WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			diagnostic sql.NullString
			durationMS int64
		)
		if err := rows.Scan(
			&entry.Source,
			&entry.Output,
			&entry.State,
			&entry.Attempts,
			&entry.ExitCode,
			&diagnostic,
			&entry.Consumers,
			&durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Diagnostic = diagnostic.String
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		outputDir  sql.NullString
		startedAt  string
		finishedAt string
	)
	if err := row.Scan(
		&run.ID,
		&run.AssetRoot,
		&outputDir,
		&run.Workers,
		&startedAt,
		&finishedAt,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.ManifestsWritten,
		&run.ManifestErrors,
		&run.BytesWritten,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.OutputDir = outputDir.String
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
