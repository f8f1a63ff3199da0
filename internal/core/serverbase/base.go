// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Base provides common fields and lifecycle infrastructure for servers.
// Concrete server implementations embed this struct.
//
// A server instance is single-use: once stopped or failed, create a new instance.
type Base struct {
	name string

	// State management (atomic for lock-free reads)
	state atomic.Int32

	// Guards lastErr
	stateMu sync.Mutex

	// Lifecycle management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedCh chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	errCh     chan error
	lastErr   error
}

// NewBase creates a new Base with the given options.
func NewBase(opts ...Option) *Base {
	b := &Base{
		name:      "server",
		startedCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Name returns the server name used in lifecycle errors.
func (b *Base) Name() string {
	return b.name
}

// State returns the current server state (atomic, lock-free read).
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning returns true if the server is in the Running state.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Err returns a channel for receiving async errors.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// Done returns a channel closed once the server reaches a terminal state.
func (b *Base) Done() <-chan struct{} {
	return b.doneCh
}

// LastError returns the error that caused the Failed state, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// --- Lifecycle helpers for concrete implementations ---

// TransitionToStarting attempts to transition from Created to Starting.
// Returns an error if the current state is not Created or if the context
// is already cancelled. The server context keeps ctx's values but not its
// cancellation; use TransitionToStopping to cancel it.
// Must be called at the beginning of Start().
func (b *Base) TransitionToStarting(ctx context.Context) error {
	// Checked before any setup so a serve goroutine can never reach Running
	// with a dead context.
	if err := ctx.Err(); err != nil {
		b.TransitionToFailed(fmt.Errorf("%s: context cancelled before start: %w", b.name, err))
		return b.LastError()
	}

	if !b.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start %s in state %s", b.name, b.State())
	}

	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))

	return nil
}

// TransitionToRunning marks the server as running and signals readiness.
func (b *Base) TransitionToRunning() {
	if b.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(b.startedCh)
	}
}

// TransitionToFailed marks the server as failed with the given error.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	b.lastErr = err
	b.stateMu.Unlock()

	b.state.Store(int32(StateFailed))

	if b.cancel != nil {
		b.cancel()
	}

	b.SendError(err)
	b.markDone()
}

// TransitionToStopping attempts to transition to Stopping state.
// Returns true if transition occurred, false if already stopped/stopping.
// Cancels the server context.
func (b *Base) TransitionToStopping() bool {
	for {
		currentState := b.State()
		switch currentState {
		case StateStopped, StateFailed, StateStopping:
			return false
		case StateCreated:
			if b.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				b.markDone()
				return false
			}
		case StateStarting, StateRunning:
			if !b.state.CompareAndSwap(int32(currentState), int32(StateStopping)) {
				continue
			}
			if b.cancel != nil {
				b.cancel()
			}
			return true
		default:
			return false
		}
	}
}

// TransitionToStopped marks the server as fully stopped.
// Must be called after all goroutines have exited.
func (b *Base) TransitionToStopped() {
	b.state.Store(int32(StateStopped))
	b.markDone()
}

func (b *Base) markDone() {
	b.doneOnce.Do(func() { close(b.doneCh) })
}

// WaitForReady blocks until the server is ready, has terminated, or ctx is done.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.startedCh:
		return nil
	case <-b.doneCh:
		if err := b.LastError(); err != nil {
			return err
		}
		return fmt.Errorf("%s stopped before becoming ready", b.name)
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s ready: %w", b.name, ctx.Err())
	}
}

// WaitForShutdown blocks until every goroutine started with Go has returned.
func (b *Base) WaitForShutdown() {
	b.wg.Wait()
}

// Context returns the server's context for use in goroutines.
// Returns nil if the server hasn't started.
func (b *Base) Context() context.Context {
	return b.ctx
}

// Go runs fn in a tracked goroutine with the server context.
func (b *Base) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// SendError sends an error to the error channel (non-blocking).
// If the channel is full, the error is dropped.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}

// StartedChannel returns the started channel for custom waiting logic.
// The channel is closed when the server transitions to Running.
func (b *Base) StartedChannel() <-chan struct{} {
	return b.startedCh
}
