package api

import (
	"sort"
	"time"

	"lapse/internal/deps"
	"lapse/internal/preflight"
	"lapse/internal/queue"
	"lapse/internal/stage"
	"lapse/internal/workflow"
)

// FromJob converts a job record to its API representation. publicURL is
// only exposed for ready jobs.
func FromJob(job *queue.Job, publicURL string) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:     job.ID,
		Kind:   string(job.Kind),
		Status: string(job.Status),
		Selection: Selection{
			DeveloperID: job.DeveloperID,
			ProjectID:   job.ProjectID,
			CameraID:    job.CameraID,
			DateFrom:    job.DateFrom,
			DateTo:      job.DateTo,
			HourFrom:    job.HourFrom,
			HourTo:      job.HourTo,
		},
		ImageCount:            job.ImageCount,
		FrameRate:             job.FrameRate,
		OutputSizeBytes:       job.OutputSizeBytes,
		OutputDurationSeconds: job.OutputDurationSeconds,
		ElapsedSeconds:        job.ElapsedSeconds,
		ErrorMessage:          job.ErrorMessage,
		SubmittedBy:           job.SubmittedBy,
		SubmitterName:         job.SubmitterName,
		CreatedAt:             formatTime(job.CreatedAt),
		UpdatedAt:             formatTime(job.UpdatedAt),
		StartedAt:             formatTimePtr(job.StartedAt),
		FinishedAt:            formatTimePtr(job.FinishedAt),
	}
	if job.Kind == queue.KindVideo {
		r := job.Render
		dto.Render = &RenderSettings{
			Resolution:      r.Resolution,
			DurationSeconds: r.DurationSeconds,
			ShowDate:        r.ShowDate,
			Caption:         r.Caption,
			Music:           r.Music,
			MusicTrack:      r.MusicTrack,
			Contrast:        r.Contrast,
			Brightness:      r.Brightness,
			Saturation:      r.Saturation,
		}
	}
	if job.Status == queue.StatusReady && publicURL != "" {
		url := publicURL
		dto.PublicURL = &url
	}
	return dto
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary, publicURL func(*queue.Job) string) WorkflowStatus {
	status := WorkflowStatus{
		Running:      summary.Running,
		LastError:    summary.LastError,
		QueueStats:   MergeQueueStats(summary.QueueStats),
		EngineHealth: EngineHealthSlice(summary.EngineHealth),
	}
	if summary.Active != nil {
		job := FromJob(summary.Active, "")
		status.ActiveJob = &job
	}
	if summary.LastJob != nil {
		url := ""
		if publicURL != nil {
			url = publicURL(summary.LastJob)
		}
		job := FromJob(summary.LastJob, url)
		status.LastJob = &job
	}
	return status
}

// MergeQueueStats flattens typed stats into string keys, filling every
// status with zero so consumers see a stable shape.
func MergeQueueStats(stats map[queue.Kind]map[queue.Status]int) map[string]map[string]int {
	out := make(map[string]map[string]int, 2)
	for _, kind := range []queue.Kind{queue.KindVideo, queue.KindPhoto} {
		counts := make(map[string]int, len(queue.AllStatuses()))
		for _, status := range queue.AllStatuses() {
			counts[string(status)] = stats[kind][status]
		}
		out[string(kind)] = counts
	}
	return out
}

// EngineHealthSlice orders engine health by name.
func EngineHealthSlice(health map[string]stage.Health) []EngineHealth {
	out := make([]EngineHealth, 0, len(health))
	for _, h := range health {
		out = append(out, EngineHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
