// Package daemonrun hosts the foreground daemon runtime shared by
// `lapse daemon` and lapsed: logging setup, PID file, environment
// diagnostics and engine registration.
package daemonrun
