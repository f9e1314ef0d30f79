// Package daemon coordinates the long-running lapse process.
//
// It wires configuration, the job store, the workflow manager and the
// pipeline controller into a single lifecycle with flock-based locking to
// prevent multiple instances, and serves the HTTP API that submits, lists
// and deletes jobs.
//
// Keep orchestration logic here: job execution lives in workflow and the
// engines, submission rules live in pipeline.
package daemon
