package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"platewatch/internal/config"
)

// ErrNotFound is returned when a job id does not exist in the registry.
var ErrNotFound = errors.New("job not found")

// ErrNotRetryable is returned when a retry is requested for a job that is not
// in the error state.
var ErrNotRetryable = errors.New("job is not in error state")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "queue.db"))
}

// OpenPath connects to a queue database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob inserts a pending job for a submitted video.
func (s *Store) NewJob(ctx context.Context, sourcePath, title, downloadDir string) (*Job, error) {
	if sourcePath == "" {
		return nil, errors.New("source path required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            source_path, title, download_dir, status, percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sourcePath,
		nullableString(title),
		nullableString(downloadDir),
		StatusPending,
		0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when the id is unknown.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET source_path = ?, title = ?, download_dir = ?, scaled_path = ?, status = ?,
             percent = ?, progress_message = ?, vehicles_detected = ?, vehicles_with_plates = ?,
             shots_saved = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		job.SourcePath,
		nullableString(job.Title),
		nullableString(job.DownloadDir),
		nullableString(job.ScaledPath),
		job.Status,
		job.Percent,
		nullableString(job.ProgressMessage),
		job.VehiclesDetected,
		job.VehiclesWithPlates,
		job.ShotsSaved,
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// NextPending returns the oldest job awaiting processing, or nil when the
// queue is drained.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return job, nil
}

// ClaimNextPending atomically moves the oldest pending job into its first
// processing stage and returns it. Two pollers sharing the database can never
// claim the same row; nil is returned when the queue is drained.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	for {
		job, err := s.NextPending(ctx)
		if err != nil || job == nil {
			return job, err
		}
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusScaling,
			time.Now().UTC().Format(time.RFC3339Nano),
			job.ID,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if affected == 1 {
			job.Status = StatusScaling
			return job, nil
		}
		// Another process claimed the row first; take the next one.
	}
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Retry returns an errored job to pending with its original parameters.
// Unknown ids and jobs in any other state are rejected without mutation.
func (s *Store) Retry(ctx context.Context, id int64) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if job.Status != StatusError {
		return nil, fmt.Errorf("%w: id %d has status %s", ErrNotRetryable, id, job.Status)
	}
	job.ResetForRetry()
	if err := s.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Clear removes terminal jobs; when all is true every job is removed.
func (s *Store) Clear(ctx context.Context, all bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if all {
		res, err = s.db.ExecContext(ctx, `DELETE FROM jobs`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, StatusCompleted, StatusError)
	}
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns jobs stranded mid-stage (after a crash) to pending.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	args := make([]any, 0, len(processingStatuses)+1)
	args = append(args, StatusPending)
	for status := range processingStatuses {
		args = append(args, status)
	}
	placeholders := makePlaceholders(len(processingStatuses))

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, percent = 0, progress_message = NULL WHERE status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Summarize aggregates job counts per lifecycle bucket.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize jobs: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			statusStr string
			count     int
		)
		if err := rows.Scan(&statusStr, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		status := Status(statusStr)
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusCompleted:
			summary.Completed += count
		case status == StatusError:
			summary.Errored += count
		case IsProcessingStatus(status):
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}
