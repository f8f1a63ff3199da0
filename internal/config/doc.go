// SPDX-License-Identifier: MPL-2.0

// Package config loads the application configuration (viper: defaults, an
// optional YAML/TOML/CUE file, LURE_* environment variables and flags) and the
// service files of the services directory. Both are validated against the
// embedded CUE schema in schema.cue.
package config
