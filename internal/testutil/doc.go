// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by tests: stopping servers in
// cleanups and bounding concurrent container operations.
package testutil
