// Package ffmpeg runs ffmpeg invocations with bounded runtime and captured
// diagnostics.
package ffmpeg
