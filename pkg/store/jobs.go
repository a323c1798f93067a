package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ghostcart/ghostcart/pkg/mandate"
)

// CreateJob persists a new monitoring job in the pending state.
func (s *Store) CreateJob(ctx context.Context, j *mandate.MonitoringJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_jobs
			(job_id, intent_mandate_id, user_id, query,
			 max_price_cents, max_delivery_days, currency,
			 interval_seconds, status, active, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.IntentMandateID, j.UserID, j.Query,
		int64(j.Constraints.MaxPriceCents), j.Constraints.MaxDeliveryDays, j.Constraints.Currency,
		int64(j.Interval/time.Second), string(j.Status), boolToInt(j.Active),
		j.CreatedAt.UTC(), j.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert monitoring job: %w", err)
	}
	return nil
}

// GetJob returns a monitoring job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*mandate.MonitoringJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE job_id = ?`, jobID)
	return scanJob(row)
}

// ClaimJob atomically moves a pending, active job to checking. It
// returns false when the job is gone, inactive, or already claimed by
// another evaluator; the caller must then exit without side effects.
func (s *Store) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = ?
		WHERE job_id = ? AND status = ? AND active = 1
	`, string(mandate.JobChecking), jobID, string(mandate.JobPending))
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// ReleaseJob returns an in-flight job to pending, recording the check
// time. Covers both a checking job whose conditions were not met and a
// triggering job whose attempt aborted before reaching the payment
// network.
func (s *Store) ReleaseJob(ctx context.Context, jobID string, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = ?, last_check_at = ?
		WHERE job_id = ? AND status IN (?, ?)
	`, string(mandate.JobPending), checkedAt.UTC(), jobID,
		string(mandate.JobChecking), string(mandate.JobTriggering))
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s not in an in-flight state", jobID)
	}
	return nil
}

// MarkTriggering moves a checking job to triggering just before the
// autonomous purchase attempt.
func (s *Store) MarkTriggering(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = ?
		WHERE job_id = ? AND status = ?
	`, string(mandate.JobTriggering), jobID, string(mandate.JobChecking))
	if err != nil {
		return fmt.Errorf("failed to mark job triggering: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s not in checking state", jobID)
	}
	return nil
}

// FinishJob deactivates a job into a terminal state, optionally
// recording the transaction that completed it.
func (s *Store) FinishJob(ctx context.Context, jobID string, status mandate.JobStatus, transactionID string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = ?, active = 0, transaction_id = ?, last_check_at = ?
		WHERE job_id = ?
	`, string(status), nullString(transactionID), at.UTC(), jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// CancelJob deactivates a pending job on explicit user request. The
// user id must match the job's owner. Returns false when the job is
// not currently cancellable, either because it is mid-evaluation or
// already terminal.
func (s *Store) CancelJob(ctx context.Context, jobID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET status = ?, active = 0
		WHERE job_id = ? AND user_id = ? AND status = ? AND active = 1
	`, string(mandate.JobCancelled), jobID, userID, string(mandate.JobPending))
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// DueJobs returns active pending jobs whose interval has elapsed since
// the last check, oldest first.
func (s *Store) DueJobs(ctx context.Context, now time.Time, limit int) ([]*mandate.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+`
		WHERE active = 1 AND status = ?
		  AND (last_check_at IS NULL OR datetime(last_check_at, '+' || interval_seconds || ' seconds') <= datetime(?))
		ORDER BY last_check_at ASC
		LIMIT ?
	`, string(mandate.JobPending), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsByUser returns all jobs owned by a user, newest first.
func (s *Store) JobsByUser(ctx context.Context, userID string) ([]*mandate.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+`
		WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by user: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ActiveJobs returns every active job.
func (s *Store) ActiveJobs(ctx context.Context) ([]*mandate.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` WHERE active = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

const jobSelect = `
	SELECT job_id, intent_mandate_id, user_id, query,
	       max_price_cents, max_delivery_days, currency,
	       interval_seconds, status, active, last_check_at,
	       transaction_id, created_at, expires_at
	FROM monitoring_jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*mandate.MonitoringJob, error) {
	var (
		j             mandate.MonitoringJob
		maxPrice      int64
		intervalSecs  int64
		status        string
		active        int
		lastCheckAt   sql.NullTime
		transactionID sql.NullString
	)
	err := row.Scan(&j.ID, &j.IntentMandateID, &j.UserID, &j.Query,
		&maxPrice, &j.Constraints.MaxDeliveryDays, &j.Constraints.Currency,
		&intervalSecs, &status, &active, &lastCheckAt,
		&transactionID, &j.CreatedAt, &j.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	j.Constraints.MaxPriceCents = mandate.Cents(maxPrice)
	j.Interval = time.Duration(intervalSecs) * time.Second
	j.Status = mandate.JobStatus(status)
	j.Active = active != 0
	if lastCheckAt.Valid {
		t := lastCheckAt.Time
		j.LastCheckAt = &t
	}
	if transactionID.Valid {
		j.TransactionID = transactionID.String
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*mandate.MonitoringJob, error) {
	var jobs []*mandate.MonitoringJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
