// Package pipeline is the entry point for job submission, listing and
// deletion. Submissions run the selector synchronously, persist the selection
// list and a queued job record, then wake the dispatcher. No record is
// created when the selection is empty or the request is invalid.
package pipeline
