// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes honeypot activity as Prometheus collectors and
// optionally serves them over HTTP.
package metrics
