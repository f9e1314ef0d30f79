// Package preflight checks the environment the daemon depends on: media,
// state and log directories, the music library, the caption font and the
// external tools. The daemon logs failures at startup and the status command
// prints them.
package preflight
