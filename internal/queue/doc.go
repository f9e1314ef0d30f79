// Package queue persists video and photo jobs in SQLite and owns their
// lifecycle: queued -> starting -> ready | failed.
//
// Only Create makes jobs, only ClaimNext moves a job from queued to
// starting, and Patch refuses any move that is not a forward step. Recovery
// helpers (FailInterrupted, FailStale) close out starting jobs that can no
// longer finish.
package queue
