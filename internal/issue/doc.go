// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors for operator-facing failures and a
// catalog of markdown guidance rendered in the terminal with glamour.
package issue
