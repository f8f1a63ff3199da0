// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/record"
)

const (
	// DefaultPrompt is written before every interactive line.
	DefaultPrompt = "$ "
	// DefaultNotFound is the reply to a line no rule matches; %s is the command name.
	DefaultNotFound = "-bash: %s: command not found"
	// DefaultExecFailed is the reply when live execution fails without output.
	DefaultExecFailed = "-bash: %s: Input/output error"
	// ExitNotFound is the exit status reported for unmatched exec requests.
	ExitNotFound = 127
)

// Mode is the interaction mode of a session.
type Mode int

const (
	// ModeIdle means no exec or shell request has been received yet.
	ModeIdle Mode = iota
	// ModeExec is a single non-interactive command.
	ModeExec
	// ModeInteractive is a line-at-a-time shell.
	ModeInteractive
	// ModeClosed means the session has ended.
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeExec:
		return "exec"
	case ModeInteractive:
		return "interactive"
	case ModeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outcome classifies a dispatch for observers.
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFailed    Outcome = "failed"
)

type (
	// Dispatcher resolves an input line to a response. *command.Set implements it.
	Dispatcher interface {
		Dispatch(ctx context.Context, input string) (command.Result, error)
	}

	// Channel is the transport side of a session.
	Channel interface {
		Write(p []byte) (int, error)
		// Exit reports the exit status to the peer and closes the channel.
		Exit(code int) error
	}

	// Observer receives session lifecycle and dispatch events, typically for metrics.
	Observer interface {
		SessionStarted(service string)
		SessionEnded(service string, lifetime time.Duration)
		Dispatched(service string, outcome Outcome)
	}

	// Info identifies a session.
	Info struct {
		ID         string
		Service    string
		RemoteAddr string
		User       string
	}

	// Option configures a Session.
	Option func(*Session)

	// Session is the per-connection adapter. Its event methods are safe to call
	// from multiple goroutines but are processed one at a time.
	Session struct {
		info     Info
		rules    Dispatcher
		prompt   string
		notFound string
		failed   string
		recorder record.Recorder
		logger   *log.Logger
		observer Observer
		now      func() time.Time

		mu      sync.Mutex
		ch      Channel
		mode    Mode
		pty     bool
		started time.Time
		line    lineBuffer
	}

	nopObserver struct{}
)

func (nopObserver) SessionStarted(string)              {}
func (nopObserver) SessionEnded(string, time.Duration) {}
func (nopObserver) Dispatched(string, Outcome)         {}

// WithPrompt sets the interactive prompt.
func WithPrompt(prompt string) Option {
	return func(s *Session) {
		s.prompt = prompt
	}
}

// WithNotFound sets the unmatched-line reply. The format receives the command name.
func WithNotFound(format string) Option {
	return func(s *Session) {
		if format != "" {
			s.notFound = format
		}
	}
}

// WithExecFailed sets the reply to a failed live execution that produced no
// output. The format receives the command name.
func WithExecFailed(format string) Option {
	return func(s *Session) {
		if format != "" {
			s.failed = format
		}
	}
}

// WithRecorder sets the transcript sink.
func WithRecorder(r record.Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the time source used for transcripts.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a session bound to the rule set of its service.
func New(info Info, rules Dispatcher, opts ...Option) *Session {
	s := &Session{
		info:     info,
		rules:    rules,
		prompt:   DefaultPrompt,
		notFound: DefaultNotFound,
		failed:   DefaultExecFailed,
		recorder: record.Nop{},
		logger:   log.Default(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", info.ID)
	return s
}

// Info returns the session identity.
func (s *Session) Info() Info { return s.info }

// Mode returns the current interaction mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
