// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// transientMarkers are engine messages that usually clear up on retry.
var transientMarkers = []string{
	// Rootless Podman races and OCI runtime hiccups.
	"ping_group_range",
	"OCI runtime error",
	// Daemon or socket briefly unreachable.
	"connection timed out",
	"connection refused",
	"Cannot connect to the Docker daemon",
	"i/o timeout",
	// Storage driver races.
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether err is a container engine failure that may
// succeed on retry. Exit code 125 is the engines' generic "the engine itself
// failed" status. Context errors are never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 125 {
		return true
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
