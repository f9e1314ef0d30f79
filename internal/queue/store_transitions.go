package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// claimOrder picks the oldest queued job; equal timestamps prefer video over
// photo, then insertion order.
const claimOrder = `ORDER BY created_at, CASE kind WHEN 'video' THEN 0 ELSE 1 END, rowid`

// ClaimNext atomically moves the oldest queued job of any kind to starting and
// returns it. It returns (nil, nil) when nothing is queued.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = (SELECT id FROM jobs WHERE status = ? `+claimOrder+` LIMIT 1)
               AND status = ?
             RETURNING `+jobColumns,
			StatusStarting, now, now, now,
			StatusQueued,
			StatusQueued,
		)
		var scanErr error
		job, scanErr = scanJob(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusStarting,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// FailInterrupted marks every starting job as failed. It runs at daemon
// start, when no job can legitimately be running.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ?`,
		StatusFailed, InterruptedReason, now, now,
		StatusStarting,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailStale marks starting jobs whose heartbeat is older than cutoff as failed.
func (s *Store) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusFailed, StaleReason, now, now,
		StatusStarting, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}
