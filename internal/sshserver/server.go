// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/keygen"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"

	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/core/serverbase"
	"github.com/lureworks/lure/internal/issue"
	"github.com/lureworks/lure/internal/protocol"
	"github.com/lureworks/lure/internal/record"
)

// Kind is the protocol kind served by this package.
const Kind = "ssh"

type (
	// Server is the SSH listener of one service. A Server is single-use: once
	// stopped or failed, create a new instance.
	Server struct {
		*serverbase.Base

		// Immutable after New.
		svc      config.Service
		settings Settings
		deps     protocol.Deps
		hostKey  []byte
		logger   *log.Logger

		srvMu    sync.Mutex
		srv      *ssh.Server
		listener net.Listener
	}

	nopAuth struct{}
)

func (nopAuth) AuthAttempt(string, string, bool) {}

// New validates the service settings and loads the host key. Nothing is bound
// until Start.
func New(svc config.Service, deps protocol.Deps) (*Server, error) {
	if deps.Rules == nil {
		return nil, fmt.Errorf("service %s: no rule set", svc.Name)
	}
	if deps.Recorder == nil {
		deps.Recorder = record.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Auth == nil {
		deps.Auth = nopAuth{}
	}

	settings, err := DecodeSettings(svc.Settings)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	if err := settings.Validate(svc.Name); err != nil {
		return nil, err
	}

	hostKey, err := loadHostKey(settings.HostKey)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load ssh host key").
			WithResource(settings.HostKey).
			WithIssue(issue.HostKeyFailedId).
			Wrap(err).
			BuildError()
	}

	return &Server{
		Base:     serverbase.NewBase(serverbase.WithName("ssh service " + svc.Name)),
		svc:      svc,
		settings: settings,
		deps:     deps,
		hostKey:  hostKey,
		logger:   deps.Logger.WithPrefix(Kind + ":" + svc.Name),
	}, nil
}

// NewAdapter is the protocol.Constructor for ssh services.
func NewAdapter(svc config.Service, deps protocol.Deps) (protocol.Adapter, error) {
	s, err := New(svc, deps)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns the decoded service settings.
func (s *Server) Settings() Settings {
	return s.settings
}

// loadHostKey reads the ed25519 key at path, generating and writing it when
// absent. An empty path yields a key that is never written.
func loadHostKey(path string) ([]byte, error) {
	opts := []keygen.Option{keygen.WithKeyType(keygen.Ed25519)}
	if path != "" {
		opts = append(opts, keygen.WithWrite())
	}
	kp, err := keygen.New(path, opts...)
	if err != nil {
		return nil, err
	}
	return kp.RawPrivateKey(), nil
}
