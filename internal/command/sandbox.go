// SPDX-License-Identifier: MPL-2.0

package command

import "context"

type (
	// Sandbox runs a command body inside a named, disposable target.
	// Implementations must be safe for concurrent use.
	Sandbox interface {
		Exec(ctx context.Context, target, body string) (ExecResult, error)
	}

	// ExecResult is the raw outcome of a sandbox call.
	ExecResult struct {
		Stdout   []byte
		Stderr   []byte
		ExitCode int
	}

	// Observer receives engine events. All methods must be cheap and non-blocking.
	Observer interface {
		CacheLookup(hit bool)
	}

	nopObserver struct{}
)

func (nopObserver) CacheLookup(bool) {}
