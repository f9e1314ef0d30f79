// Package notifications announces job results over ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the workflow can report every terminal job without checking whether
// delivery is enabled.
package notifications
