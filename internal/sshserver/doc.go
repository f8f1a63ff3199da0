// SPDX-License-Identifier: MPL-2.0

// Package sshserver is the ssh protocol adapter of a honeypot service.
//
// A Server listens on the service address with a forged OpenSSH identity,
// logs every authentication attempt and accepts the configured credentials.
// Each session channel is handed to a session.Session, which answers exec and
// shell requests from the service's rule set and records the transcript.
// No command ever reaches a real shell on the host.
package sshserver
