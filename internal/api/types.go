package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Selection identifies a camera and the inclusive date and hour window to
// take stills from.
type Selection struct {
	DeveloperID string `json:"developerId"`
	ProjectID   string `json:"projectId"`
	CameraID    string `json:"cameraId"`
	DateFrom    string `json:"dateFrom"`
	DateTo      string `json:"dateTo"`
	HourFrom    string `json:"hourFrom"`
	HourTo      string `json:"hourTo"`
}

// Submitter is carried for audit only.
type Submitter struct {
	SubmittedBy   string `json:"submittedBy,omitempty"`
	SubmitterName string `json:"submitterName,omitempty"`
}

// VideoRequest asks for a timelapse video. Nil colour values use neutral
// defaults.
type VideoRequest struct {
	Selection
	Submitter
	DurationSeconds int      `json:"duration,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	ShowDate        bool     `json:"showDate,omitempty"`
	Caption         string   `json:"caption,omitempty"`
	LogoPath        string   `json:"logoPath,omitempty"`
	WatermarkPath   string   `json:"watermarkPath,omitempty"`
	Music           bool     `json:"music,omitempty"`
	MusicTrack      string   `json:"musicTrack,omitempty"`
	Contrast        *float64 `json:"contrast,omitempty"`
	Brightness      *float64 `json:"brightness,omitempty"`
	Saturation      *float64 `json:"saturation,omitempty"`
}

// PhotoRequest asks for a zip archive of the selected stills.
type PhotoRequest struct {
	Selection
	Submitter
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	Message            string `json:"message"`
	FilteredImageCount int    `json:"filteredImageCount"`
	JobID              string `json:"jobId"`
}

// RenderSettings mirrors the stored video options.
type RenderSettings struct {
	Resolution      string  `json:"resolution"`
	DurationSeconds int     `json:"duration,omitempty"`
	ShowDate        bool    `json:"showDate"`
	Caption         string  `json:"caption,omitempty"`
	Music           bool    `json:"music"`
	MusicTrack      string  `json:"musicTrack,omitempty"`
	Contrast        float64 `json:"contrast"`
	Brightness      float64 `json:"brightness"`
	Saturation      float64 `json:"saturation"`
}

// Job describes a job record in transport form.
type Job struct {
	ID                    string          `json:"id"`
	Kind                  string          `json:"kind"`
	Status                string          `json:"status"`
	Selection             Selection       `json:"selection"`
	ImageCount            int             `json:"imageCount"`
	FrameRate             int             `json:"frameRate,omitempty"`
	Render                *RenderSettings `json:"render,omitempty"`
	PublicURL             *string         `json:"publicUrl"`
	OutputSizeBytes       int64           `json:"outputSizeBytes,omitempty"`
	OutputDurationSeconds float64         `json:"outputDurationSeconds,omitempty"`
	ElapsedSeconds        float64         `json:"elapsedSeconds,omitempty"`
	ErrorMessage          string          `json:"errorMessage,omitempty"`
	SubmittedBy           string          `json:"submittedBy,omitempty"`
	SubmitterName         string          `json:"submitterName,omitempty"`
	CreatedAt             string          `json:"createdAt,omitempty"`
	UpdatedAt             string          `json:"updatedAt,omitempty"`
	StartedAt             string          `json:"startedAt,omitempty"`
	FinishedAt            string          `json:"finishedAt,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Items []Job `json:"items"`
}

// EngineHealth mirrors readiness reporting for job engines.
type EngineHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running      bool                      `json:"running"`
	ActiveJob    *Job                      `json:"activeJob,omitempty"`
	QueueStats   map[string]map[string]int `json:"queueStats"`
	LastError    string                    `json:"lastError,omitempty"`
	LastJob      *Job                      `json:"lastJob,omitempty"`
	EngineHealth []EngineHealth            `json:"engineHealth"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is one environment check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Version      string             `json:"version,omitempty"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
