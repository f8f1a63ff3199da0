// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates YAML, TOML and CUE documents against embedded CUE
// schemas and decodes them into Go structs, reporting faults with field paths.
package cueutil
