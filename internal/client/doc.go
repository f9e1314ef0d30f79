// Package client talks to a running lapse daemon over its HTTP API. It is
// used by the lapse CLI.
package client
