// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/record"
)

type fakeChannel struct {
	mu       sync.Mutex
	out      strings.Builder
	exitCode int
	exited   bool
	writeErr error
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.out.Write(p)
}

func (c *fakeChannel) Exit(code int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exited {
		return errors.New("already exited")
	}
	c.exited = true
	c.exitCode = code
	return nil
}

func (c *fakeChannel) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *fakeChannel) Exited() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited, c.exitCode
}

// stubSandbox answers every body from a table; unknown bodies fail with exit 1.
type stubSandbox struct {
	outputs map[string]string
	delay   time.Duration
}

func (s stubSandbox) Exec(ctx context.Context, target, body string) (command.ExecResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return command.ExecResult{}, ctx.Err()
		}
	}
	out, ok := s.outputs[body]
	if !ok {
		return command.ExecResult{Stderr: []byte("sh: " + body + ": not found"), ExitCode: 1}, nil
	}
	return command.ExecResult{Stdout: []byte(out)}, nil
}

// failingSandbox never runs anything.
type failingSandbox struct{ err error }

func (s failingSandbox) Exec(context.Context, string, string) (command.ExecResult, error) {
	return command.ExecResult{}, s.err
}

// stuckRecorder holds every call until release is closed.
type stuckRecorder struct {
	release chan struct{}
}

func (r *stuckRecorder) Record(string, record.Direction, time.Time, []byte) error {
	<-r.release
	return nil
}

func (r *stuckRecorder) Close(string) error {
	<-r.release
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	ended    int
	outcomes map[Outcome]int
}

func (o *countingObserver) SessionStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) SessionEnded(string, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended++
}

func (o *countingObserver) Dispatched(_ string, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[Outcome]int)
	}
	o.outcomes[out]++
}

func testRules(t *testing.T, sb command.Sandbox) *command.Set {
	t.Helper()
	set, err := command.NewSet([]command.Spec{
		{Parser: `^ls( -la)?$`, Handler: "total 0"},
		{Parser: `^echo (.+)$`, Handler: "{{$1}}"},
		{Parser: `^true$`, Handler: ""},
		{Parser: `^cat (\S+)$`, Handler: "@docker box cat {{$1}}"},
		{Parser: `^uname$`, Handler: "Linux\nhost"},
	}, command.WithSandbox(sb), command.WithExecTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func newTestSession(t *testing.T, id string, rules Dispatcher, opts ...Option) (*Session, *fakeChannel) {
	t.Helper()
	base := []Option{WithLogger(log.New(io.Discard))}
	s := New(Info{ID: id, Service: "svc", RemoteAddr: "203.0.113.7:5555", User: "root"}, rules, append(base, opts...)...)
	ch := &fakeChannel{}
	s.OnChannelOpen(ch)
	return s, ch
}

// panicDispatcher fails loudly on every dispatch.
type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, string) (command.Result, error) {
	panic("boom")
}

var _ record.Recorder = (*record.Memory)(nil)
