// SPDX-License-Identifier: MPL-2.0

// Package protocol defines the contract between the orchestrator and the
// listeners that speak a network protocol for one service.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/record"
	"github.com/lureworks/lure/internal/session"
)

// ErrUnknownProtocol is returned by Lookup for a kind nobody registered.
var ErrUnknownProtocol = errors.New("unknown protocol")

type (
	// Adapter is a running listener for one service.
	Adapter interface {
		// Start binds the listener and returns once it accepts connections.
		Start(ctx context.Context) error
		// Stop closes the listener and waits for in-flight connections.
		Stop() error
		// Err delivers faults that happen after Start returned.
		Err() <-chan error
		// Done is closed once the adapter has stopped or failed.
		Done() <-chan struct{}
		// Addr is the bound address, valid after Start.
		Addr() string
	}

	// AuthObserver is told about every authentication attempt.
	AuthObserver interface {
		AuthAttempt(service, method string, accepted bool)
	}

	// Deps are the shared collaborators handed to every adapter.
	Deps struct {
		Rules    *command.Set
		Recorder record.Recorder
		Logger   *log.Logger
		Sessions session.Observer
		Auth     AuthObserver
	}

	// Constructor builds an adapter for svc without binding anything.
	Constructor func(svc config.Service, deps Deps) (Adapter, error)

	// Registry maps protocol kinds to constructors.
	Registry struct {
		mu    sync.RWMutex
		ctors map[string]Constructor
	}
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor for kind. Kinds are case-insensitive and may
// only be registered once.
func (r *Registry) Register(kind string, ctor Constructor) error {
	kind = normalizeKind(kind)
	if kind == "" {
		return errors.New("protocol kind must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("protocol %q: nil constructor", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[kind]; ok {
		return fmt.Errorf("protocol %q already registered", kind)
	}
	r.ctors[kind] = ctor
	return nil
}

// Lookup returns the constructor registered for kind.
func (r *Registry) Lookup(kind string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[normalizeKind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProtocol, kind, strings.Join(r.kindsLocked(), ", "))
	}
	return ctor, nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

// Kinds lists the registered protocol kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kindsLocked()
}

func (r *Registry) kindsLocked() []string {
	kinds := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
