// Package workflow admits queued jobs one at a time and drives each to a
// terminal state.
//
// The Manager owns a single-permit gate. Drain claims the oldest queued job
// (video before photo on equal timestamps), runs the engine registered for
// its kind, writes ready or failed through the store and repeats until the
// queue is empty. A Drain that finds the gate held returns at once, so
// callers may trigger it freely after every submission.
//
// Every running job is bounded: a per-job timeout cancels its context, a
// heartbeat loop lets the background loop fail jobs whose owner stopped
// reporting, and Start fails any job a previous process left in starting.
// Cancel ends the running job early and is used when a job is deleted.
package workflow
