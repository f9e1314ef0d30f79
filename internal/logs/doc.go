// Package logs reads the daemon's JSON log file for the CLI.
//
// Tail returns the last lines of the current log and Follow streams lines
// appended after an offset. Format turns one JSON record into the compact
// single-line form printed by "lapse logs" and applies job and level filters.
package logs
