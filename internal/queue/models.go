package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// InterruptedReason is recorded on jobs found mid-run when the daemon starts.
const InterruptedReason = "interrupted by daemon restart"

// StaleReason is recorded on jobs whose heartbeat expired.
const StaleReason = "heartbeat expired while running"

var allStatuses = []Status{StatusQueued, StatusStarting, StatusReady, StatusFailed}

// AllStatuses returns every lifecycle status in order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status, case-insensitively.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

var allowedTransitions = map[Status][]Status{
	StatusQueued:   {StatusStarting},
	StatusStarting: {StatusReady, StatusFailed},
}

// CanTransition reports whether moving from one status to another is a legal
// forward step. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kind distinguishes video and photo jobs.
type Kind string

const (
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
)

// ParseKind converts a string into a Kind.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindVideo:
		return KindVideo, nil
	case KindPhoto:
		return KindPhoto, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", value)
	}
}

// RenderOptions carries the video-only rendering parameters.
type RenderOptions struct {
	Resolution      string  `json:"resolution,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	ShowDate        bool    `json:"show_date,omitempty"`
	Caption         string  `json:"caption,omitempty"`
	LogoPath        string  `json:"logo_path,omitempty"`
	WatermarkPath   string  `json:"watermark_path,omitempty"`
	Music           bool    `json:"music,omitempty"`
	MusicTrack      string  `json:"music_track,omitempty"`
	Contrast        float64 `json:"contrast"`
	Brightness      float64 `json:"brightness"`
	Saturation      float64 `json:"saturation"`
}

// DefaultRenderOptions returns neutral color grading at HD.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Resolution: "HD", Contrast: 1, Brightness: 0, Saturation: 1}
}

// Job represents a video or photo job persisted in SQLite.
type Job struct {
	ID     string
	Kind   Kind
	Status Status

	DeveloperID string
	ProjectID   string
	CameraID    string
	DateFrom    string
	DateTo      string
	HourFrom    string
	HourTo      string

	ImageCount int
	FrameRate  int
	ListPath   string
	Render     RenderOptions

	OutputPath            string
	OutputSizeBytes       int64
	OutputDurationSeconds float64
	ElapsedSeconds        float64
	ErrorMessage          string

	SubmittedBy   string
	SubmitterName string

	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Patch lists the fields a caller may change on an existing job. Nil fields
// are left untouched.
type Patch struct {
	Status                *Status
	ImageCount            *int
	FrameRate             *int
	OutputPath            *string
	OutputSizeBytes       *int64
	OutputDurationSeconds *float64
	ElapsedSeconds        *float64
	ErrorMessage          *string
}

// ReadyPatch builds the terminal success patch for a job.
func ReadyPatch(outputPath string, sizeBytes int64, durationSeconds, elapsedSeconds float64) Patch {
	status := StatusReady
	return Patch{
		Status:                &status,
		OutputPath:            &outputPath,
		OutputSizeBytes:       &sizeBytes,
		OutputDurationSeconds: &durationSeconds,
		ElapsedSeconds:        &elapsedSeconds,
	}
}

// FailedPatch builds the terminal failure patch for a job. Failed jobs carry
// no output fields.
func FailedPatch(message string) Patch {
	status := StatusFailed
	return Patch{Status: &status, ErrorMessage: &message}
}

// Filter narrows List results.
type Filter struct {
	Kind     Kind
	Statuses []Status
}
