// SPDX-License-Identifier: MPL-2.0

// Package serverbase provides the lifecycle state machine shared by the
// long-running listeners (honeypot protocol servers and the metrics endpoint).
//
// Base offers atomic state reads, guarded transitions, tracked goroutines and
// context-based cancellation. A server instance is single-use.
package serverbase
