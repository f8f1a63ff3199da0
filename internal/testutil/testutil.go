// SPDX-License-Identifier: MPL-2.0

package testutil

import "testing"

// Stopper is implemented by servers and adapters.
type Stopper interface {
	Stop() error
}

// MustStop stops s and fails the test on error.
func MustStop(t testing.TB, s Stopper) {
	t.Helper()
	if err := s.Stop(); err != nil {
		t.Errorf("failed to stop: %v", err)
	}
}

// DeferStop returns a cleanup function that stops s, for use with t.Cleanup.
func DeferStop(t testing.TB, s Stopper) func() {
	t.Helper()
	return func() {
		MustStop(t, s)
	}
}
