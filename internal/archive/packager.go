package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"lapse/internal/config"
	"lapse/internal/fileutil"
	"lapse/internal/logging"
	"lapse/internal/queue"
	"lapse/internal/selector"
	"lapse/internal/services"
	"lapse/internal/stage"
)

// ArtifactName is the archive filename for a job.
func ArtifactName(jobID string) string {
	return "photos_" + jobID + ".zip"
}

// Packager writes photo archives.
type Packager struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPackager constructs a packager using the configured compression level.
func NewPackager(cfg *config.Config, logger *slog.Logger) *Packager {
	return &Packager{cfg: cfg, logger: logging.NewComponentLogger(logger, "archive")}
}

// Prepare checks the job shape.
func (p *Packager) Prepare(_ context.Context, job *queue.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "archive", "prepare", "nil job", nil)
	}
	if job.Kind != queue.KindPhoto {
		return services.Wrap(services.ErrValidation, "archive", "prepare",
			fmt.Sprintf("job %s is a %s job", job.ID, job.Kind), nil)
	}
	if strings.TrimSpace(job.ListPath) == "" {
		return services.Wrap(services.ErrMissingListFile, "archive", "prepare", "job has no selection list", nil)
	}
	return nil
}

// Execute streams the selected stills into the job's archive. The selection
// list is consumed on every exit path and a partial archive never survives a
// failure.
func (p *Packager) Execute(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	logger := logging.WithContext(ctx, p.logger)

	scratch := fileutil.NewScratch(logger)
	defer scratch.Cleanup()
	scratch.Track(job.ListPath)

	manifest, err := selector.ReadList(job.ListPath)
	if err != nil {
		return err
	}

	dir := p.cfg.OutputDir(job.DeveloperID, job.ProjectID, job.CameraID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrArchiveWrite, "archive", "prepare output dir", dir, err)
	}
	output := filepath.Join(dir, ArtifactName(job.ID))
	partial := fileutil.PartialPath(output)
	scratch.Track(partial)

	written, skipped, err := p.write(ctx, partial, manifest, logger)
	if err != nil {
		return err
	}
	if err := fileutil.Publish(partial, output); err != nil {
		return services.Wrap(services.ErrArchiveWrite, "archive", "publish", output, err)
	}
	scratch.Release(partial)

	job.ImageCount = written
	job.OutputPath = output
	job.OutputSizeBytes = fileutil.FileSize(output)
	job.OutputDurationSeconds = 0
	job.ElapsedSeconds = time.Since(started).Seconds()

	logger.Info("archive completed",
		logging.String("output", output),
		logging.Int("entries", written),
		logging.Int("skipped", skipped),
		logging.Int64("size_bytes", job.OutputSizeBytes),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// HealthCheck reports whether the media root is reachable.
func (p *Packager) HealthCheck(context.Context) stage.Health {
	if _, err := os.Stat(p.cfg.Paths.MediaRoot); err != nil {
		return stage.Unhealthy("archive", fmt.Sprintf("media root unavailable: %v", err))
	}
	return stage.Healthy("archive")
}

func (p *Packager) write(ctx context.Context, path string, manifest selector.Manifest, logger *slog.Logger) (written, skipped int, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrArchiveWrite, "archive", "create", path, err)
	}
	defer file.Close()

	level := p.cfg.Archive.CompressionLevel
	zw := zip.NewWriter(file)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	for _, frame := range manifest.Frames {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return 0, 0, services.Wrap(services.ErrArchiveWrite, "archive", "write", "cancelled", err)
		}
		ok, err := addFile(zw, frame.Path)
		if err != nil {
			_ = zw.Close()
			return 0, 0, services.Wrap(services.ErrArchiveWrite, "archive", "add "+frame.Name(), "", err)
		}
		if !ok {
			skipped++
			logger.Warn("source still missing; skipping",
				logging.String("path", frame.Path),
				logging.String(logging.FieldEventType, "archive_source_missing"),
				logging.String(logging.FieldImpact, "archive will not contain this still"),
			)
			continue
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return 0, 0, services.Wrap(services.ErrArchiveWrite, "archive", "finalize", path, err)
	}
	if err := file.Close(); err != nil {
		return 0, 0, services.Wrap(services.ErrArchiveWrite, "archive", "close", path, err)
	}
	return written, skipped, nil
}

// addFile copies one still into the archive. It returns false when the
// source no longer exists.
func addFile(zw *zip.Writer, path string) (bool, error) {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return false, err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, err
	}
	header.Name = filepath.Base(path)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(w, src); err != nil {
		return false, err
	}
	return true, nil
}
