// Package daemonctl starts, stops and inspects the lapse daemon process from
// the CLI. Liveness is decided by the daemon's flock instance lock; the PID
// file identifies the process to signal.
package daemonctl
