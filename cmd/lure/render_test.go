// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/lureworks/lure/internal/issue"
)

func TestRenderError(t *testing.T) {
	t.Parallel()

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		renderError(&buf, errors.New("boom"), false)
		if !strings.Contains(buf.String(), "boom") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("actionable error with guidance", func(t *testing.T) {
		t.Parallel()

		err := issue.NewErrorContext().
			WithOperation("load services").
			WithResource("services.d").
			WithSuggestion("Add a service file").
			WithIssue(issue.ServicesNotFoundId).
			Wrap(errors.New("no services configured")).
			BuildError()

		var buf bytes.Buffer
		renderError(&buf, err, true)
		out := buf.String()
		for _, want := range []string{"failed to load services", "Add a service file", "Error chain"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		var ae *issue.ActionableError
		if errors.As(err, &ae) && len(out) <= len(ae.Format(true))+len("\n") {
			t.Error("catalog guidance should follow the error")
		}
	})
}

func TestExitError(t *testing.T) {
	t.Parallel()

	if got := (&ExitError{Code: 3}).Error(); got != "exit status 3" {
		t.Errorf("Error() = %q", got)
	}
	cause := errors.New("cause")
	if err := (&ExitError{Code: 1, Err: cause}); !errors.Is(err, cause) || err.Error() != "cause" {
		t.Errorf("ExitError should wrap its cause")
	}
}
