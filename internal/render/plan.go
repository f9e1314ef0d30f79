package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"lapse/internal/selector"
)

// DefaultFrameRate applies when a job requests no duration.
const DefaultFrameRate = 25

// FrameRate returns ceil(count/durationSeconds), or fallback when the
// duration is not positive.
func FrameRate(count, durationSeconds, fallback int) int {
	if fallback <= 0 {
		fallback = DefaultFrameRate
	}
	if durationSeconds <= 0 || count <= 0 {
		return fallback
	}
	return (count + durationSeconds - 1) / durationSeconds
}

// Plan splits the manifest into ceil(N/size) ordered batches.
func Plan(m selector.Manifest, size int) [][]selector.Frame {
	return m.Batches(size)
}

// Dimensions is an output frame size.
type Dimensions struct {
	Width  int
	Height int
}

var resolutions = map[string]Dimensions{
	"720":   {1280, 720},
	"720p":  {1280, 720},
	"hd":    {1920, 1080},
	"1080":  {1920, 1080},
	"1080p": {1920, 1080},
	"4k":    {3840, 2160},
	"2160":  {3840, 2160},
	"2160p": {3840, 2160},
}

// ResolutionFor maps a resolution class to frame dimensions. Unknown classes
// fall back to HD.
func ResolutionFor(class string) Dimensions {
	if d, ok := resolutions[strings.ToLower(strings.TrimSpace(class))]; ok {
		return d
	}
	return resolutions["hd"]
}

// workspace names every file a job produces in its output directory.
type workspace struct {
	dir string
	id  string
}

func (w workspace) batchList(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_batch_%03d.txt", w.id, i))
}

func (w workspace) batchFilter(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_batch_%03d.filter", w.id, i))
}

func (w workspace) batchClip(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_batch_%03d.mp4", w.id, i))
}

func (w workspace) concatList() string {
	return filepath.Join(w.dir, w.id+"_concat.txt")
}

func (w workspace) joined() string {
	return filepath.Join(w.dir, w.id+"_joined.mp4")
}

func (w workspace) output() string {
	return filepath.Join(w.dir, ArtifactName(w.id))
}

// ArtifactName is the final video filename for a job.
func ArtifactName(jobID string) string {
	return "video_" + jobID + ".mp4"
}
