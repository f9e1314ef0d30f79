// Package config loads, normalizes, and validates lapse configuration.
//
// Values come from built-in defaults, an optional TOML file, and LAPSE_*
// environment overrides, in that order.
package config
