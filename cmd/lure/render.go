// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lureworks/lure/internal/issue"
)

// fail renders err with its guidance and returns an ExitError so that the
// error is not printed a second time.
func fail(cmd *cobra.Command, err error, verbose bool) error {
	renderError(cmd.ErrOrStderr(), err, verbose)
	cmd.SilenceErrors = true
	return &ExitError{Code: 1, Err: err}
}

// renderError prints err. Actionable errors show their suggestions and, when
// linked to the issue catalog, the rendered guidance.
func renderError(w io.Writer, err error, verbose bool) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		fmt.Fprintf(w, "%s %s\n", errorIcon, err)
		return
	}

	fmt.Fprintf(w, "%s %s\n", errorIcon, ae.Format(verbose))
	guidance := ae.Guidance()
	if guidance == nil {
		return
	}
	rendered, renderErr := guidance.Render("dark")
	if renderErr != nil {
		fmt.Fprintf(w, "%s could not render guidance: %v\n", WarningStyle.Render("!"), renderErr)
		return
	}
	fmt.Fprint(w, rendered)
}
