// SPDX-License-Identifier: MPL-2.0

// Package session adapts one accepted connection to a service's rule set.
//
// A Session is driven by transport events (channel open, pty, exec, shell, data,
// close, disconnect) and is independent of the transport that produces them. In
// exec mode it dispatches the single command line and reports an exit status; in
// interactive mode it runs a small line discipline and dispatches one line at a
// time. Inbound lines and outbound responses are mirrored to a record.Recorder.
//
// Sessions never share state with each other; only the rule set behind the
// Dispatcher is shared.
package session
