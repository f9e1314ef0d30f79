package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lapse/internal/services"
)

// ErrInvalidTransition reports a patch that would move a job backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Create inserts a new job in the queued state. An empty ID is filled with
// NewJobID; timestamps are assigned here.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if _, err := ParseKind(string(job.Kind)); err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = NewJobID()
	}
	now := time.Now().UTC()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	render, err := encodeRender(job)
	if err != nil {
		return fmt.Errorf("marshal render options: %w", err)
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, kind, status, developer_id, project_id, camera_id,
            date_from, date_to, hour_from, hour_to, image_count, frame_rate,
            list_path, render_json, submitted_by, submitter_name, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Kind,
		job.Status,
		job.DeveloperID,
		job.ProjectID,
		job.CameraID,
		job.DateFrom,
		job.DateTo,
		job.HourFrom,
		job.HourTo,
		job.ImageCount,
		job.FrameRate,
		nullableString(job.ListPath),
		render,
		nullableString(job.SubmittedBy),
		nullableString(job.SubmitterName),
		formatTime(now),
		formatTime(now),
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier. A missing job yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching the filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Patch applies partial changes to a job and returns the updated record.
// Unknown ids yield services.ErrNotFound; illegal status moves yield
// ErrInvalidTransition and leave the record untouched.
func (s *Store) Patch(ctx context.Context, id string, patch Patch) (*Job, error) {
	ctx = ensureContext(ctx)
	var updated *Job
	err := retryOnBusy(ctx, func() error {
		var err error
		updated, err = s.patchOnce(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) patchOnce(ctx context.Context, id string, patch Patch) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin patch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "patch", "job "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	now := time.Now().UTC()
	if patch.Status != nil {
		if !CanTransition(job.Status, *patch.Status) {
			return nil, fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, id, job.Status, *patch.Status)
		}
		if *patch.Status != job.Status {
			switch {
			case *patch.Status == StatusStarting:
				job.StartedAt = &now
			case patch.Status.IsTerminal():
				job.FinishedAt = &now
				job.LastHeartbeat = nil
			}
		}
		job.Status = *patch.Status
	}
	applyPatch(job, patch)
	job.UpdatedAt = now

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, image_count = ?, frame_rate = ?, output_path = ?, output_size_bytes = ?,
             output_duration_seconds = ?, elapsed_seconds = ?, error_message = ?, updated_at = ?,
             started_at = ?, finished_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.Status,
		job.ImageCount,
		job.FrameRate,
		nullableString(job.OutputPath),
		job.OutputSizeBytes,
		job.OutputDurationSeconds,
		job.ElapsedSeconds,
		nullableString(job.ErrorMessage),
		formatTime(job.UpdatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit patch: %w", err)
	}
	return job, nil
}

func applyPatch(job *Job, patch Patch) {
	if patch.ImageCount != nil {
		job.ImageCount = *patch.ImageCount
	}
	if patch.FrameRate != nil {
		job.FrameRate = *patch.FrameRate
	}
	if patch.OutputPath != nil {
		job.OutputPath = *patch.OutputPath
	}
	if patch.OutputSizeBytes != nil {
		job.OutputSizeBytes = *patch.OutputSizeBytes
	}
	if patch.OutputDurationSeconds != nil {
		job.OutputDurationSeconds = *patch.OutputDurationSeconds
	}
	if patch.ElapsedSeconds != nil {
		job.ElapsedSeconds = *patch.ElapsedSeconds
	}
	if patch.ErrorMessage != nil {
		job.ErrorMessage = *patch.ErrorMessage
	}
}

// Remove deletes a job record and returns it as it was at deletion, or nil
// when no record matched.
func (s *Store) Remove(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	var removed *Job
	err := retryOnBusy(ctx, func() error {
		var err error
		removed, err = s.removeOnce(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) removeOnce(ctx context.Context, id string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin remove tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("remove job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit remove: %w", err)
	}
	return job, nil
}
