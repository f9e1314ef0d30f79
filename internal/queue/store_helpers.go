package queue

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, kind, status, developer_id, project_id, camera_id, date_from, date_to, hour_from, hour_to, image_count, frame_rate, list_path, render_json, output_path, output_size_bytes, output_duration_seconds, elapsed_seconds, error_message, submitted_by, submitter_name, created_at, updated_at, started_at, finished_at, last_heartbeat"

// timeLayout is fixed width so lexicographic order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// NewJobID returns a 24 character lowercase hex identifier. Uniqueness is
// not checked beyond the primary key constraint.
func NewJobID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:12])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		kind         string
		status       string
		listPath     sql.NullString
		renderJSON   sql.NullString
		outputPath   sql.NullString
		errorMessage sql.NullString
		submittedBy  sql.NullString
		submitter    sql.NullString
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&job.ID,
		&kind,
		&status,
		&job.DeveloperID,
		&job.ProjectID,
		&job.CameraID,
		&job.DateFrom,
		&job.DateTo,
		&job.HourFrom,
		&job.HourTo,
		&job.ImageCount,
		&job.FrameRate,
		&listPath,
		&renderJSON,
		&outputPath,
		&job.OutputSizeBytes,
		&job.OutputDurationSeconds,
		&job.ElapsedSeconds,
		&errorMessage,
		&submittedBy,
		&submitter,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job.Kind = Kind(kind)
	job.Status = Status(status)
	job.ListPath = listPath.String
	job.OutputPath = outputPath.String
	job.ErrorMessage = errorMessage.String
	job.SubmittedBy = submittedBy.String
	job.SubmitterName = submitter.String
	if renderJSON.Valid && renderJSON.String != "" {
		if err := json.Unmarshal([]byte(renderJSON.String), &job.Render); err != nil {
			return nil, err
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	job.LastHeartbeat = parseNullableTime(heartbeatRaw)
	return &job, nil
}

func encodeRender(job *Job) (any, error) {
	if job.Kind != KindVideo {
		return nil, nil
	}
	data, err := json.Marshal(job.Render)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
