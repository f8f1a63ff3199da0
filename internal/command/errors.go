// SPDX-License-Identifier: MPL-2.0

package command

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule is the sentinel error wrapped by RuleError.
	ErrInvalidRule = errors.New("invalid command rule")
	// ErrExecution is the sentinel error wrapped by ExecError.
	ErrExecution = errors.New("live execution failed")
)

type (
	// RuleError reports a rule that cannot be loaded. It is always a configuration
	// fault and aborts service construction.
	RuleError struct {
		// Index is the position of the rule inside its service (0-based).
		Index int
		// Parser is the offending pattern.
		Parser string
		// Reason describes what is wrong with the rule.
		Reason string
		// Cause is the underlying compile or parse error, if any.
		Cause error
	}

	// ExecError reports a failed live execution for a single dispatch. It never
	// affects other sessions and the failed result is never cached.
	ExecError struct {
		// Target is the sandbox target identifier.
		Target string
		// Command is the command body that was executed.
		Command string
		// ExitCode is the exit status reported by the sandbox (0 if it never ran).
		ExitCode int
		// Output is whatever the sandbox produced before failing, already normalized.
		Output string
		// Cause is the underlying error, if any.
		Cause error
	}
)

// Error implements the error interface.
func (e *RuleError) Error() string {
	msg := fmt.Sprintf("rule #%d (%q): %s", e.Index, e.Parser, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns ErrInvalidRule for errors.Is() compatibility.
func (e *RuleError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidRule, e.Cause}
	}
	return []error{ErrInvalidRule}
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	where := "live execution"
	if e.Target != "" {
		where = "exec in " + e.Target
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", where, e.Cause)
	}
	return fmt.Sprintf("%s: exit status %d", where, e.ExitCode)
}

// Unwrap returns ErrExecution and the underlying cause.
func (e *ExecError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrExecution, e.Cause}
	}
	return []error{ErrExecution}
}

// StatusCode returns the exit status a session should report for this fault.
func (e *ExecError) StatusCode() int {
	if e.ExitCode > 0 {
		return e.ExitCode
	}
	return 1
}
