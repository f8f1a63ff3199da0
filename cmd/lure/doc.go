// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the lure command line interface.
//
// The CLI is a thin layer: it resolves configuration, loads service files and
// hands them to the orchestrator. Configuration faults are returned as
// issue.ActionableError values and rendered with their catalog guidance.
package cmd
