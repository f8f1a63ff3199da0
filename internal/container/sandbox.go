// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/command"
)

// exitEngineFailure is the status docker and podman use when the engine itself
// failed rather than the command inside the container.
const exitEngineFailure = 125

const (
	// DefaultRetries is the number of extra attempts after a transient failure.
	DefaultRetries = 2
	// DefaultBackoff is the wait before the first retry; it doubles per attempt.
	DefaultBackoff = 200 * time.Millisecond
)

var _ command.Sandbox = (*Sandbox)(nil)

type (
	// SandboxOption configures a Sandbox.
	SandboxOption func(*Sandbox)

	// Sandbox runs live-execution bodies through a container engine as
	// `exec <target> sh -c <body>`. It is safe for concurrent use.
	Sandbox struct {
		engine  Engine
		shell   string
		retries int
		backoff time.Duration
		workDir string
		env     map[string]string
		logger  *log.Logger
	}

	// EngineError is an engine-level failure reported through exit status 125.
	EngineError struct {
		Engine string
		Target string
		Stderr string
	}
)

func (e *EngineError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no diagnostic output"
	}
	return fmt.Sprintf("%s could not exec in %s: %s", e.Engine, e.Target, msg)
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) SandboxOption {
	return func(s *Sandbox) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the initial retry backoff.
func WithBackoff(d time.Duration) SandboxOption {
	return func(s *Sandbox) {
		s.backoff = d
	}
}

// WithShell changes the interpreter used inside the target (default "sh").
func WithShell(shell string) SandboxOption {
	return func(s *Sandbox) {
		if shell != "" {
			s.shell = shell
		}
	}
}

// WithWorkDir sets the directory commands start in inside the target.
func WithWorkDir(dir string) SandboxOption {
	return func(s *Sandbox) {
		s.workDir = dir
	}
}

// WithEnv sets environment variables for every command, e.g. HISTFILE=/dev/null.
func WithEnv(env map[string]string) SandboxOption {
	return func(s *Sandbox) {
		s.env = env
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *log.Logger) SandboxOption {
	return func(s *Sandbox) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSandbox wraps engine as a command.Sandbox.
func NewSandbox(engine Engine, opts ...SandboxOption) *Sandbox {
	s := &Sandbox{
		engine:  engine,
		shell:   "sh",
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		logger:  log.Default().WithPrefix("sandbox"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the wrapped container engine.
func (s *Sandbox) Engine() Engine { return s.engine }

// Exec runs body inside target. A non-zero exit of the command is reported in
// the result, not as an error; errors are reserved for engine failures.
func (s *Sandbox) Exec(ctx context.Context, target, body string) (command.ExecResult, error) {
	var res command.ExecResult

	err := RetryWithBackoff(ctx, s.retries+1, s.backoff, func(attempt int) (bool, error) {
		var stdout, stderr bytes.Buffer
		rr, err := s.engine.Exec(ctx, target, []string{s.shell, "-c", body}, ExecOptions{
			WorkDir: s.workDir,
			Env:     s.env,
			Stdout:  &stdout,
			Stderr:  &stderr,
		})
		if err == nil && rr.Error != nil {
			err = rr.Error
		}

		res = command.ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
		if rr != nil {
			res.ExitCode = rr.ExitCode
		}

		if err == nil && res.ExitCode == exitEngineFailure {
			err = &EngineError{Engine: s.engine.Name(), Target: target, Stderr: stderr.String()}
		}
		if err == nil {
			return false, nil
		}

		// EngineError carries the engine's stderr, so its message is matched too.
		retry := IsTransientError(err)
		if retry && attempt < s.retries {
			s.logger.Debug("transient sandbox failure, retrying", "target", target, "attempt", attempt+1, "err", err)
		}
		return retry, err
	})
	if err != nil {
		if res.ExitCode == 0 {
			res.ExitCode = 1
		}
		return res, err
	}
	return res, nil
}
