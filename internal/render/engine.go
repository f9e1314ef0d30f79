package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lapse/internal/config"
	"lapse/internal/ffmpeg"
	"lapse/internal/fileutil"
	"lapse/internal/logging"
	"lapse/internal/media/ffprobe"
	"lapse/internal/metrics"
	"lapse/internal/queue"
	"lapse/internal/selector"
	"lapse/internal/services"
	"lapse/internal/stage"
)

var probeArtifact = ffprobe.Inspect

// Engine renders video jobs.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	runner ffmpeg.Runner
}

// NewEngine builds an engine that invokes ffmpeg through runner. A nil runner
// uses the configured ffmpeg binary with the per-invocation stage timeout.
func NewEngine(cfg *config.Config, logger *slog.Logger, runner ffmpeg.Runner) *Engine {
	logger = logging.NewComponentLogger(logger, "render")
	if runner == nil {
		runner = ffmpeg.NewExecRunner(cfg.FFmpegBinary(), cfg.StageTimeout(), logger)
	}
	return &Engine{cfg: cfg, logger: logger, runner: runner}
}

// Prepare checks the job shape before any file is touched.
func (e *Engine) Prepare(_ context.Context, job *queue.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "render", "prepare", "nil job", nil)
	}
	if job.Kind != queue.KindVideo {
		return services.Wrap(services.ErrValidation, "render", "prepare",
			fmt.Sprintf("job %s is a %s job", job.ID, job.Kind), nil)
	}
	if strings.TrimSpace(job.ListPath) == "" {
		return services.Wrap(services.ErrMissingListFile, "render", "prepare", "job has no selection list", nil)
	}
	return nil
}

// Execute encodes the job's stills and records the artifact on job. Consumed
// inputs and intermediates are removed whether or not it succeeds.
func (e *Engine) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	logger := logging.WithContext(ctx, e.logger)

	scratch := fileutil.NewScratch(logger)
	defer scratch.Cleanup()
	scratch.Track(job.ListPath, job.Render.LogoPath, job.Render.WatermarkPath)

	manifest, err := selector.ReadList(job.ListPath)
	if err != nil {
		return err
	}

	opts := job.Render
	fps := job.FrameRate
	if fps <= 0 {
		fps = FrameRate(manifest.Len(), opts.DurationSeconds, e.cfg.Render.DefaultFPS)
	}
	inputs, err := e.resolveInputs(opts)
	if err != nil {
		return err
	}
	music, err := e.resolveMusic(opts)
	if err != nil {
		return err
	}

	ws := workspace{dir: e.cfg.OutputDir(job.DeveloperID, job.ProjectID, job.CameraID), id: job.ID}
	if err := os.MkdirAll(ws.dir, 0o755); err != nil {
		return services.Wrap(services.ErrTranscode, "render", "prepare output dir", ws.dir, err)
	}

	batches := Plan(manifest, e.cfg.Render.BatchSize)
	logger.Info("render started",
		logging.Int("frames", manifest.Len()),
		logging.Int("batches", len(batches)),
		logging.Int("fps", fps),
		logging.String("resolution", opts.Resolution),
	)

	clips := make([]string, 0, len(batches))
	for i, frames := range batches {
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrTransient, "render", "encode batches", "cancelled", err)
		}
		clip, err := e.encodeBatch(ctx, scratch, ws, i+1, frames, fps, opts, inputs)
		if err != nil {
			return err
		}
		clips = append(clips, clip)
		logger.Debug("batch encoded",
			logging.Int("batch", i+1),
			logging.Int("batch_total", len(batches)),
			logging.Int("frames", len(frames)),
		)
	}

	joined, err := e.concat(ctx, scratch, ws, clips)
	if err != nil {
		return err
	}

	output := ws.output()
	partial := fileutil.PartialPath(output)
	scratch.Track(partial)
	if err := e.finish(ctx, joined, partial, music, opts); err != nil {
		return err
	}
	if err := fileutil.Publish(partial, output); err != nil {
		return services.Wrap(services.ErrTranscode, "render", "publish", output, err)
	}
	scratch.Release(partial)

	duration, size := e.describe(ctx, output, manifest.Len(), fps)
	job.FrameRate = fps
	job.ImageCount = manifest.Len()
	job.OutputPath = output
	job.OutputSizeBytes = size
	job.OutputDurationSeconds = duration
	job.ElapsedSeconds = time.Since(started).Seconds()
	metrics.FramesRenderedTotal.Add(float64(manifest.Len()))

	logger.Info("render completed",
		logging.String("output", output),
		logging.Int64("size_bytes", size),
		logging.Float64("duration_seconds", duration),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// HealthCheck reports whether the ffmpeg binary is resolvable.
func (e *Engine) HealthCheck(context.Context) stage.Health {
	if _, err := exec.LookPath(e.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy("render", fmt.Sprintf("ffmpeg not found: %v", err))
	}
	return stage.Healthy("render")
}

func (e *Engine) resolveInputs(opts queue.RenderOptions) (batchInputs, error) {
	var in batchInputs
	for _, candidate := range []struct {
		label string
		path  string
		dst   *string
	}{
		{"logo", opts.LogoPath, &in.logo},
		{"watermark", opts.WatermarkPath, &in.watermark},
	} {
		path := strings.TrimSpace(candidate.path)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return batchInputs{}, services.Wrap(services.ErrValidation, "render", "resolve "+candidate.label, path, err)
		}
		*candidate.dst = path
	}
	return in, nil
}

func (e *Engine) resolveMusic(opts queue.RenderOptions) (string, error) {
	if !opts.Music {
		return "", nil
	}
	track := strings.TrimSpace(opts.MusicTrack)
	if track == "" {
		return "", services.Wrap(services.ErrValidation, "render", "resolve music", "music requested without a track", nil)
	}
	path := filepath.Join(e.cfg.Paths.MusicDir, filepath.Base(track))
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrValidation, "render", "resolve music", path, err)
	}
	return path, nil
}

func (e *Engine) encodeBatch(ctx context.Context, scratch *fileutil.Scratch, ws workspace, index int, frames []selector.Frame, fps int, opts queue.RenderOptions, in batchInputs) (string, error) {
	listPath := ws.batchList(index)
	filterPath := ws.batchFilter(index)
	clip := ws.batchClip(index)
	scratch.Track(listPath, filterPath, clip)

	if err := os.WriteFile(listPath, []byte(frameList(frames, fps)), 0o644); err != nil {
		return "", services.Wrap(services.ErrTranscode, "render", "write batch list", listPath, err)
	}
	graph := batchFilterGraph(frames, opts, in, e.cfg.Render.FontFile)
	if err := os.WriteFile(filterPath, []byte(graph), 0o644); err != nil {
		return "", services.Wrap(services.ErrTranscode, "render", "write filter script", filterPath, err)
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath}
	args = append(args, in.args()...)
	args = append(args,
		"-filter_complex_script", filterPath,
		"-map", "[out]",
		"-r", strconv.Itoa(fps),
	)
	args = append(args, e.videoCodecArgs()...)
	args = append(args, "-an", clip)

	if err := e.runner.Run(ctx, fmt.Sprintf("batch %d", index), args); err != nil {
		return "", transcodeError("encode batch", err)
	}
	// The frame list and filter script are only needed by the invocation.
	_ = fileutil.RemoveIfExists(listPath)
	_ = fileutil.RemoveIfExists(filterPath)
	return clip, nil
}

func (e *Engine) concat(ctx context.Context, scratch *fileutil.Scratch, ws workspace, clips []string) (string, error) {
	listPath := ws.concatList()
	joined := ws.joined()
	scratch.Track(listPath, joined)

	if err := os.WriteFile(listPath, []byte(clipList(clips)), 0o644); err != nil {
		return "", services.Wrap(services.ErrTranscode, "render", "write concat list", listPath, err)
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", joined}
	if err := e.runner.Run(ctx, "concat", args); err != nil {
		return "", transcodeError("concat", err)
	}
	for _, clip := range clips {
		_ = fileutil.RemoveIfExists(clip)
	}
	_ = fileutil.RemoveIfExists(listPath)
	return joined, nil
}

func (e *Engine) finish(ctx context.Context, joined, output, music string, opts queue.RenderOptions) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", joined}
	if music != "" {
		args = append(args, "-i", music)
	}
	args = append(args, "-vf", gradeFilter(opts))
	args = append(args, e.videoCodecArgs()...)
	if music != "" {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-c:a", "aac", "-b:a", "192k", "-shortest")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4", output)
	if err := e.runner.Run(ctx, "finish", args); err != nil {
		return transcodeError("finish", err)
	}
	_ = fileutil.RemoveIfExists(joined)
	return nil
}

func (e *Engine) videoCodecArgs() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", e.cfg.Render.Preset,
		"-crf", strconv.Itoa(e.cfg.Render.CRF),
		"-pix_fmt", "yuv420p",
	}
}

// describe probes the artifact, falling back to frames/fps and the on-disk
// size when ffprobe is unavailable.
func (e *Engine) describe(ctx context.Context, output string, frames, fps int) (float64, int64) {
	fallbackDuration := float64(frames) / float64(fps)
	result, err := probeArtifact(ctx, e.cfg.FFprobeBinary(), output)
	if err != nil {
		e.logger.Warn("artifact probe failed; using estimates",
			logging.String("output", output),
			logging.Error(err),
			logging.String(logging.FieldEventType, "probe_fallback"),
			logging.String(logging.FieldImpact, "job duration is computed from frame count"),
		)
		return fallbackDuration, fileutil.FileSize(output)
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		duration = fallbackDuration
	}
	size := result.SizeBytes()
	if size <= 0 {
		size = fileutil.FileSize(output)
	}
	return duration, size
}

// transcodeError tags runner failures as transcode errors while keeping
// timeouts and cancellations distinguishable.
func transcodeError(operation string, err error) error {
	if errors.Is(err, services.ErrTimeout) || errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTranscode, "render", operation, "", err)
}
