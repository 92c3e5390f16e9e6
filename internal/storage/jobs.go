package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/you/courier/internal/domain"
)

// InsertJobParams carries everything needed to persist a dispatch job.
type InsertJobParams struct {
	TenantID    string
	To          string
	Message     string
	LogID       string
	MaxAttempts int
}

// InsertJob persists job metadata (source of truth) and returns the job id.
func (s *Store) InsertJob(ctx context.Context, p InsertJobParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `
		insert into dispatch_jobs (id, tenant_id, "to", message, log_id, attempt, max_attempts, status)
		values ($1, $2, $3, $4, $5, 0, $6, $7)`,
		id, p.TenantID, p.To, p.Message, p.LogID, p.MaxAttempts, domain.JobQueued,
	)
	return id, errors.Wrap(err, "insert job")
}

// GetJob fetches a job by id. Returns ErrNotFound if absent (e.g. already
// pruned).
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	err := s.db.QueryRow(ctx, `
		select id, tenant_id, "to", message, log_id, attempt, max_attempts, status, error, created_at, updated_at
		  from dispatch_jobs where id = $1`, id,
	).Scan(&j.ID, &j.TenantID, &j.To, &j.Message, &j.LogID, &j.Attempt,
		&j.MaxAttempts, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return &j, nil
}

// MarkJobSucceeded makes a job terminal after successful transmission.
func (s *Store) MarkJobSucceeded(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		update dispatch_jobs set status = $2, error = null, updated_at = now()
		 where id = $1`, id, domain.JobSucceeded)
	return errors.Wrap(err, "mark job succeeded")
}

// MarkJobFailed makes a job permanently failed after its retry budget is
// exhausted.
func (s *Store) MarkJobFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.Exec(ctx, `
		update dispatch_jobs set status = $2, error = $3, updated_at = now()
		 where id = $1`, id, domain.JobFailedPerm, errMsg)
	return errors.Wrap(err, "mark job failed")
}

// IncrementJobAttempt bumps the attempt counter and returns the new count.
func (s *Store) IncrementJobAttempt(ctx context.Context, id string) (int, error) {
	var attempt int
	err := s.db.QueryRow(ctx, `
		update dispatch_jobs set attempt = attempt + 1, updated_at = now()
		 where id = $1
		 returning attempt`, id,
	).Scan(&attempt)
	return attempt, errors.Wrap(err, "increment attempt")
}

// PruneJobs discards terminal jobs beyond the retention counts, oldest first,
// to bound storage growth.
func (s *Store) PruneJobs(ctx context.Context, keepSucceeded, keepFailed int) error {
	if err := s.pruneStatus(ctx, domain.JobSucceeded, keepSucceeded); err != nil {
		return err
	}
	return s.pruneStatus(ctx, domain.JobFailedPerm, keepFailed)
}

func (s *Store) pruneStatus(ctx context.Context, status domain.JobStatus, keep int) error {
	_, err := s.db.Exec(ctx, `
		delete from dispatch_jobs
		 where id in (
			select id from dispatch_jobs
			 where status = $1
			 order by created_at desc
			offset $2)`,
		status, keep,
	)
	return errors.Wrapf(err, "prune %s jobs", status)
}
