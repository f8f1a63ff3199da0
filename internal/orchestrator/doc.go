// SPDX-License-Identifier: MPL-2.0

// Package orchestrator turns loaded service definitions into running
// listeners. Build compiles every rule set and constructs every adapter
// without binding; Run starts them all or none and keeps them serving until
// its context ends.
package orchestrator
