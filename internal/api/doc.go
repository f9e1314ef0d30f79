// Package api defines wire-format types and converters for the HTTP API. It
// translates queue and workflow models into transport DTOs so the CLI and
// other consumers never depend on internal types.
//
// DTOs use camelCase JSON tags. Statuses and kinds are lowercase strings and
// timestamps are RFC3339 with milliseconds. A job's publicUrl is null until it
// is ready.
package api
