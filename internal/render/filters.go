package render

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"lapse/internal/queue"
	"lapse/internal/selector"
)

const (
	dateLayout      = "2006-01-02 15:04"
	overlayMargin   = 20
	watermarkAlpha  = 0.35
	captionFontSize = 48
	dateFontSize    = 36
)

// batchInputs describes the extra ffmpeg inputs a batch filter graph reads.
// Input 0 is always the frame list.
type batchInputs struct {
	logo      string
	watermark string
}

func (in batchInputs) args() []string {
	var args []string
	if in.logo != "" {
		args = append(args, "-i", in.logo)
	}
	if in.watermark != "" {
		args = append(args, "-i", in.watermark)
	}
	return args
}

// frameList renders the concat demuxer script for one batch. Each still is
// shown for exactly one output frame.
func frameList(frames []selector.Frame, fps int) string {
	duration := strconv.FormatFloat(1/float64(fps), 'f', 6, 64)
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, f := range frames {
		fmt.Fprintf(&b, "file %s\nduration %s\n", concatQuote(f.Path), duration)
	}
	return b.String()
}

// clipList renders the concat demuxer script used to join batch clips.
func clipList(clips []string) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, c := range clips {
		fmt.Fprintf(&b, "file %s\n", concatQuote(c))
	}
	return b.String()
}

func concatQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// batchFilterGraph builds the filter_complex script for one batch. The graph
// always ends in the [out] label.
func batchFilterGraph(frames []selector.Frame, opts queue.RenderOptions, in batchInputs, fontFile string) string {
	dim := ResolutionFor(opts.Resolution)
	var chains []string
	current := "base"
	chains = append(chains, fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p[%s]",
		dim.Width, dim.Height, dim.Width, dim.Height, current))

	next := 1
	if in.logo != "" {
		chains = append(chains,
			fmt.Sprintf("[%d:v]scale=-1:%d[logo]", next, dim.Height/8),
			fmt.Sprintf("[%s][logo]overlay=main_w-overlay_w-%d:%d[withlogo]", current, overlayMargin, overlayMargin),
		)
		current = "withlogo"
		next++
	}
	if in.watermark != "" {
		chains = append(chains,
			fmt.Sprintf("[%d:v]scale=%d:-1,format=rgba,colorchannelmixer=aa=%.2f[wm]", next, dim.Width/2, watermarkAlpha),
			fmt.Sprintf("[%s][wm]overlay=(main_w-overlay_w)/2:(main_h-overlay_h)/2[withwm]", current),
		)
		current = "withwm"
	}

	var text []string
	if opts.ShowDate {
		for i, f := range frames {
			text = append(text, drawtext(fontFile, f.Captured.Format(dateLayout), dateFontSize,
				fmt.Sprintf("w-tw-%d", overlayMargin), fmt.Sprintf("h-th-%d", overlayMargin),
				fmt.Sprintf("eq(n,%d)", i)))
		}
	}
	if caption := strings.TrimSpace(norm.NFC.String(opts.Caption)); caption != "" {
		text = append(text, drawtext(fontFile, caption, captionFontSize, "(w-tw)/2", "30", ""))
	}
	if len(text) == 0 {
		chains = append(chains, fmt.Sprintf("[%s]null[out]", current))
	} else {
		chains = append(chains, fmt.Sprintf("[%s]%s[out]", current, strings.Join(text, ",")))
	}
	return strings.Join(chains, ";\n")
}

func drawtext(fontFile, text string, size int, x, y, enable string) string {
	parts := []string{}
	if fontFile != "" {
		parts = append(parts, "fontfile="+quoteFilterValue(fontFile))
	}
	parts = append(parts,
		"text="+quoteFilterValue(escapeDrawtext(text)),
		fmt.Sprintf("fontsize=%d", size),
		"fontcolor=white",
		"box=1",
		"boxcolor=black@0.5",
		"boxborderw=8",
		"x="+x,
		"y="+y,
	)
	if enable != "" {
		parts = append(parts, "enable="+quoteFilterValue(enable))
	}
	return "drawtext=" + strings.Join(parts, ":")
}

// escapeDrawtext protects characters drawtext expands itself.
func escapeDrawtext(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `:`, `\:`)
	return r.Replace(text)
}

// quoteFilterValue wraps a filter option so the graph parser keeps commas,
// colons and semicolons inside it.
func quoteFilterValue(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// gradeFilter is the final colour grade.
func gradeFilter(opts queue.RenderOptions) string {
	return fmt.Sprintf("eq=contrast=%s:brightness=%s:saturation=%s",
		formatGrade(opts.Contrast), formatGrade(opts.Brightness), formatGrade(opts.Saturation))
}

func formatGrade(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
