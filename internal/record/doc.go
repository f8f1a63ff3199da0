// SPDX-License-Identifier: MPL-2.0

// Package record persists session transcripts.
//
// A Recorder receives every inbound line and outbound response of a session,
// tagged with a timestamp and a direction. FileRecorder writes one JSON-lines file
// per session; Async decouples sessions from disk latency. Recording is fire and
// forget from the session's point of view: callers log failures and carry on.
package record
