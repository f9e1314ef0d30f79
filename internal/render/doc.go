// Package render turns a job's selected stills into a timelapse video.
//
// Frames are encoded in fixed-size batches, one ffmpeg invocation per batch,
// so no single process holds an unbounded input list. The batch clips are
// joined with a stream copy and a final pass applies the colour grade and
// optional music. Every intermediate file lives in the camera's videos
// directory, prefixed by the job id, and is removed before Execute returns.
package render
