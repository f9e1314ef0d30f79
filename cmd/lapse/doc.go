// Package main hosts the lapse CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon: job submission, listing and deletion, status,
// and daemon lifecycle. It centralizes configuration resolution and output
// formatting so subcommands can focus on user experience instead of wiring.
package main
