package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediadl/dl-gateway/pkg/types"
)

// PgRepository stores job records in PostgreSQL. Redis enforces retention
// with key TTLs; here a background sweep deletes rows whose last update is
// older than the retention window, so the "expired means not found" contract
// holds for both backings.
type PgRepository struct {
	pool      *pgxpool.Pool
	retention time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewPgRepository creates a PostgreSQL-backed job repository and starts the
// retention sweep.
func NewPgRepository(ctx context.Context, connString string, retention time.Duration) (*PgRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repoCtx, cancel := context.WithCancel(ctx)
	r := &PgRepository{
		pool:      pool,
		retention: retention,
		ctx:       repoCtx,
		cancel:    cancel,
	}

	if err := r.migrate(ctx); err != nil {
		cancel()
		pool.Close()
		return nil, err
	}

	go r.sweepExpired()

	return r, nil
}

func (r *PgRepository) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id                TEXT PRIMARY KEY,
			source_url        TEXT NOT NULL,
			format_id         TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL,
			progress_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
			title             TEXT,
			thumbnail         TEXT,
			output_filename   TEXT,
			output_size_bytes BIGINT,
			error_detail      TEXT,
			dispatch_token    TEXT,
			created_at        TIMESTAMPTZ NOT NULL,
			completed_at      TIMESTAMPTZ,
			updated_at        TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}
	return nil
}

// Create persists a new job record.
func (r *PgRepository) Create(ctx context.Context, job *types.Job) error {
	if !job.Status.Valid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}

	query := `
		INSERT INTO jobs (id, source_url, format_id, status, progress_percent,
		                  title, thumbnail, output_filename, output_size_bytes,
		                  error_detail, dispatch_token, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.SourceURL,
		job.FormatID,
		job.Status,
		job.ProgressPercent,
		nullable(job.Title),
		nullable(job.Thumbnail),
		nullable(job.OutputFilename),
		job.OutputSizeBytes,
		nullable(job.ErrorDetail),
		nullable(job.DispatchToken),
		job.CreatedAt,
		job.CompletedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by id, or ErrNotFound.
func (r *PgRepository) Get(ctx context.Context, id string) (*types.Job, error) {
	query := `
		SELECT id, source_url, format_id, status, progress_percent,
		       title, thumbnail, output_filename, output_size_bytes,
		       error_detail, dispatch_token, created_at, completed_at
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Update replaces the stored record and refreshes its retention window.
func (r *PgRepository) Update(ctx context.Context, job *types.Job) error {
	if !job.Status.Valid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}

	query := `
		UPDATE jobs
		SET status = $2,
		    progress_percent = $3,
		    title = $4,
		    thumbnail = $5,
		    output_filename = $6,
		    output_size_bytes = $7,
		    error_detail = $8,
		    dispatch_token = $9,
		    completed_at = $10,
		    updated_at = $11
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.ProgressPercent,
		nullable(job.Title),
		nullable(job.Thumbnail),
		nullable(job.OutputFilename),
		job.OutputSizeBytes,
		nullable(job.ErrorDetail),
		nullable(job.DispatchToken),
		job.CompletedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns up to limit records, newest first.
func (r *PgRepository) List(ctx context.Context, limit int) ([]*types.Job, error) {
	query := `
		SELECT id, source_url, format_id, status, progress_percent,
		       title, thumbnail, output_filename, output_size_bytes,
		       error_detail, dispatch_token, created_at, completed_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Delete removes a job record.
func (r *PgRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// Close stops the retention sweep and releases the pool.
func (r *PgRepository) Close() error {
	r.cancel()
	r.pool.Close()
	return nil
}

// sweepExpired periodically deletes rows idle past the retention window.
func (r *PgRepository) sweepExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.retention)
			tag, err := r.pool.Exec(r.ctx, `DELETE FROM jobs WHERE updated_at < $1`, cutoff)
			if err != nil {
				slog.Error("Failed to sweep expired jobs", "error", err)
				continue
			}
			if n := tag.RowsAffected(); n > 0 {
				slog.Debug("Swept expired jobs", "count", n)
			}
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job                                       types.Job
		title, thumbnail, outputFilename          *string
		errorDetail, dispatchToken                *string
		outputSize                                *int64
	)

	err := row.Scan(
		&job.ID,
		&job.SourceURL,
		&job.FormatID,
		&job.Status,
		&job.ProgressPercent,
		&title,
		&thumbnail,
		&outputFilename,
		&outputSize,
		&errorDetail,
		&dispatchToken,
		&job.CreatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if title != nil {
		job.Title = *title
	}
	if thumbnail != nil {
		job.Thumbnail = *thumbnail
	}
	if outputFilename != nil {
		job.OutputFilename = *outputFilename
	}
	if outputSize != nil {
		job.OutputSizeBytes = *outputSize
	}
	if errorDetail != nil {
		job.ErrorDetail = *errorDetail
	}
	if dispatchToken != nil {
		job.DispatchToken = *dispatchToken
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
