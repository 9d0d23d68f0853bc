// Package config loads, validates, and normalizes clipbatch configuration
// from TOML files with sane defaults for every field.
package config
