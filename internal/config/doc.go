// Package config loads, validates, and defaults platewatch configuration
// from TOML files.
package config
