package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"lapse/internal/api"
	"lapse/internal/config"
	"lapse/internal/fileutil"
	"lapse/internal/logging"
	"lapse/internal/metrics"
	"lapse/internal/queue"
	"lapse/internal/render"
	"lapse/internal/selector"
	"lapse/internal/services"
)

// Dispatcher wakes job execution and cancels running jobs.
type Dispatcher interface {
	Notify()
	Cancel(jobID string) bool
}

// Controller implements the submission and query operations exposed over
// HTTP.
type Controller struct {
	cfg        *config.Config
	store      *queue.Store
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewController wires a controller. dispatcher may be nil when jobs are
// drained elsewhere.
func NewController(cfg *config.Config, store *queue.Store, dispatcher Dispatcher, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
}

// SubmitVideo validates a timelapse request, selects its stills and queues
// the job.
func (c *Controller) SubmitVideo(ctx context.Context, req api.VideoRequest) (api.SubmitResponse, error) {
	opts, err := c.renderOptions(req)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	job, err := c.submit(ctx, queue.KindVideo, req.Selection, req.Submitter, func(job *queue.Job, count int) {
		job.Render = opts
		job.FrameRate = render.FrameRate(count, opts.DurationSeconds, c.cfg.Render.DefaultFPS)
	})
	if err != nil {
		return api.SubmitResponse{}, err
	}
	return api.SubmitResponse{
		Message:            "video generation queued",
		FilteredImageCount: job.ImageCount,
		JobID:              job.ID,
	}, nil
}

// SubmitPhoto selects stills for a photo archive and queues the job.
func (c *Controller) SubmitPhoto(ctx context.Context, req api.PhotoRequest) (api.SubmitResponse, error) {
	job, err := c.submit(ctx, queue.KindPhoto, req.Selection, req.Submitter, nil)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	return api.SubmitResponse{
		Message:            "photo archive queued",
		FilteredImageCount: job.ImageCount,
		JobID:              job.ID,
	}, nil
}

func (c *Controller) submit(ctx context.Context, kind queue.Kind, sel api.Selection, who api.Submitter, decorate func(*queue.Job, int)) (*queue.Job, error) {
	if err := validateIdentity(sel); err != nil {
		return nil, err
	}
	rng, err := selector.Range{
		DateFrom: sel.DateFrom,
		DateTo:   sel.DateTo,
		HourFrom: sel.HourFrom,
		HourTo:   sel.HourTo,
	}.Normalize()
	if err != nil {
		return nil, err
	}

	manifest, err := selector.Select(c.cfg.CameraDir(sel.DeveloperID, sel.ProjectID, sel.CameraID), rng)
	if err != nil {
		return nil, err
	}

	job := &queue.Job{
		ID:            queue.NewJobID(),
		Kind:          kind,
		DeveloperID:   sel.DeveloperID,
		ProjectID:     sel.ProjectID,
		CameraID:      sel.CameraID,
		DateFrom:      rng.DateFrom,
		DateTo:        rng.DateTo,
		HourFrom:      rng.HourFrom,
		HourTo:        rng.HourTo,
		ImageCount:    manifest.Len(),
		SubmittedBy:   strings.TrimSpace(who.SubmittedBy),
		SubmitterName: strings.TrimSpace(who.SubmitterName),
	}
	if decorate != nil {
		decorate(job, manifest.Len())
	}
	job.ListPath = filepath.Join(c.cfg.OutputDir(sel.DeveloperID, sel.ProjectID, sel.CameraID), listFileName(job.ID))
	if err := selector.WriteList(job.ListPath, manifest); err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, job); err != nil {
		_ = fileutil.RemoveIfExists(job.ListPath)
		return nil, err
	}

	metrics.JobsSubmittedTotal.WithLabelValues(string(kind)).Inc()
	c.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobKind, string(kind)),
		logging.Int("image_count", job.ImageCount),
		logging.String("submitted_by", job.SubmittedBy),
	)
	if c.dispatcher != nil {
		c.dispatcher.Notify()
	}
	return job, nil
}

// ListJobs returns every job of kind, oldest first, with public URLs for
// ready jobs.
func (c *Controller) ListJobs(ctx context.Context, kind queue.Kind) ([]api.Job, error) {
	jobs, err := c.store.List(ctx, queue.Filter{Kind: kind})
	if err != nil {
		return nil, err
	}
	out := make([]api.Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, api.FromJob(job, c.PublicURL(job)))
	}
	return out, nil
}

// GetJob returns one job or ErrNotFound.
func (c *Controller) GetJob(ctx context.Context, id string) (api.Job, error) {
	job, err := c.store.GetByID(ctx, id)
	if err != nil {
		return api.Job{}, err
	}
	if job == nil {
		return api.Job{}, services.Wrap(services.ErrNotFound, "pipeline", "get job", id, nil)
	}
	return api.FromJob(job, c.PublicURL(job)), nil
}

// DeleteJob removes the record, cancels the job if it is running, then
// deletes its artifact and unconsumed inputs. A running job that publishes
// after removal has its artifact deleted by the workflow manager.
func (c *Controller) DeleteJob(ctx context.Context, id string) error {
	job, err := c.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "delete job", id, nil)
	}

	cancelled := false
	if job.Status == queue.StatusStarting && c.dispatcher != nil {
		cancelled = c.dispatcher.Cancel(job.ID)
	}
	if job.Status == queue.StatusQueued {
		// A queued job never ran, so its inputs were never consumed.
		for _, p := range []string{job.ListPath, job.Render.LogoPath, job.Render.WatermarkPath} {
			if err := fileutil.RemoveIfExists(p); err != nil {
				c.logger.Warn("failed to remove job input", logging.String("path", p), logging.Error(err))
			}
		}
	}
	if err := fileutil.RemoveIfExists(job.OutputPath); err != nil {
		c.logger.Warn("failed to remove job artifact",
			logging.String("path", job.OutputPath),
			logging.Error(err),
			logging.String(logging.FieldEventType, "artifact_remove_failed"),
			logging.String(logging.FieldImpact, "artifact remains on disk"),
		)
	}

	c.logger.Info("job deleted",
		logging.String(logging.FieldJobID, id),
		logging.String("status", string(job.Status)),
		logging.Bool("cancelled", cancelled),
	)
	return nil
}

// PublicURL maps a ready job's artifact under the media root to a URL. It
// returns "" when the job has no artifact.
func (c *Controller) PublicURL(job *queue.Job) string {
	if job == nil || job.Status != queue.StatusReady || job.OutputPath == "" {
		return ""
	}
	rel, err := filepath.Rel(c.cfg.Paths.MediaRoot, job.OutputPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	base := strings.TrimRight(strings.TrimSpace(c.cfg.Paths.PublicBaseURL), "/")
	if base == "" {
		base = "/media"
	}
	return base + "/" + strings.Join(segments, "/")
}

func (c *Controller) renderOptions(req api.VideoRequest) (queue.RenderOptions, error) {
	opts := queue.DefaultRenderOptions()
	if res := strings.TrimSpace(req.Resolution); res != "" {
		opts.Resolution = res
	}
	if req.DurationSeconds < 0 {
		return opts, services.Wrap(services.ErrValidation, "pipeline", "duration", "must not be negative", nil)
	}
	opts.DurationSeconds = req.DurationSeconds
	opts.ShowDate = req.ShowDate
	opts.Caption = strings.TrimSpace(req.Caption)
	if req.Contrast != nil {
		opts.Contrast = *req.Contrast
	}
	if req.Brightness != nil {
		opts.Brightness = *req.Brightness
	}
	if req.Saturation != nil {
		opts.Saturation = *req.Saturation
	}
	if opts.Contrast < -1000 || opts.Contrast > 1000 || opts.Brightness < -1 || opts.Brightness > 1 || opts.Saturation < 0 || opts.Saturation > 3 {
		return opts, services.Wrap(services.ErrValidation, "pipeline", "color grade",
			fmt.Sprintf("contrast=%g brightness=%g saturation=%g out of range", opts.Contrast, opts.Brightness, opts.Saturation), nil)
	}

	if req.Music {
		track := strings.TrimSpace(req.MusicTrack)
		if track == "" || track != filepath.Base(track) {
			return opts, services.Wrap(services.ErrValidation, "pipeline", "music", fmt.Sprintf("invalid track %q", req.MusicTrack), nil)
		}
		if _, err := os.Stat(filepath.Join(c.cfg.Paths.MusicDir, track)); err != nil {
			return opts, services.Wrap(services.ErrValidation, "pipeline", "music", "track not found: "+track, nil)
		}
		opts.Music = true
		opts.MusicTrack = track
	}

	var err error
	if opts.LogoPath, err = c.consumableInput("logo", req.LogoPath); err != nil {
		return opts, err
	}
	if opts.WatermarkPath, err = c.consumableInput("watermark", req.WatermarkPath); err != nil {
		return opts, err
	}
	return opts, nil
}

// consumableInput checks an uploaded overlay image. Overlays are deleted
// after the job, so they must live under the media root.
func (c *Controller) consumableInput(label, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "pipeline", label, path, err)
	}
	rel, err := filepath.Rel(c.cfg.Paths.MediaRoot, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", services.Wrap(services.ErrValidation, "pipeline", label, "must be inside the media root: "+path, nil)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "pipeline", label, "file not found: "+path, nil)
	}
	return abs, nil
}

func validateIdentity(sel api.Selection) error {
	for _, field := range []struct{ name, value string }{
		{"developerId", sel.DeveloperID},
		{"projectId", sel.ProjectID},
		{"cameraId", sel.CameraID},
	} {
		v := strings.TrimSpace(field.value)
		if v == "" {
			return services.Wrap(services.ErrValidation, "pipeline", field.name, "is required", nil)
		}
		if v != field.value || v == "." || v == ".." || strings.ContainsAny(v, `/\`) {
			return services.Wrap(services.ErrValidation, "pipeline", field.name, fmt.Sprintf("invalid value %q", field.value), nil)
		}
	}
	return nil
}

func listFileName(jobID string) string {
	return "list_" + jobID + ".txt"
}
