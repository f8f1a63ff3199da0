// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/logging"
	"github.com/charmbracelet/wish/recover"
)

// Start binds the service address and blocks until either:
//   - the server accepts connections (returns nil)
//   - binding or server setup fails (returns error)
//   - ctx is cancelled or the startup timeout is exceeded (returns error)
//
// After Start returns nil, use Err to monitor runtime faults.
func (s *Server) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, s.settings.StartupTimeout)
	defer startupCancel()

	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", s.svc.Address)
	if err != nil {
		s.TransitionToFailed(fmt.Errorf("service %s: listen on %s: %w", s.svc.Name, s.svc.Address, err))
		return s.LastError()
	}

	srv, err := s.newSSHServer()
	if err != nil {
		_ = listener.Close()
		s.TransitionToFailed(fmt.Errorf("service %s: create ssh server: %w", s.svc.Name, err))
		return s.LastError()
	}

	s.srvMu.Lock()
	s.listener = listener
	s.srv = srv
	s.srvMu.Unlock()

	s.Go(func(context.Context) { s.serve(srv, listener) })

	select {
	case <-s.StartedChannel():
		s.logger.Info("listening", "address", listener.Addr().String())
		return nil
	case <-s.Done():
		return s.LastError()
	case <-startupCtx.Done():
		s.TransitionToFailed(fmt.Errorf("service %s: startup: %w", s.svc.Name, startupCtx.Err()))
		_ = srv.Close()
		s.WaitForShutdown()
		return s.LastError()
	}
}

func (s *Server) newSSHServer() (*ssh.Server, error) {
	opts := []ssh.Option{
		wish.WithAddress(s.svc.Address),
		wish.WithHostKeyPEM(s.hostKey),
		wish.WithVersion(s.settings.Version),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithKeyboardInteractiveAuth(s.keyboardInteractiveHandler),
		ssh.EmulatePty(),
		wish.WithMiddleware(
			recover.MiddlewareWithLogger(s.logger, s.sessionMiddleware()),
			logging.StructuredMiddlewareWithLogger(s.logger, log.DebugLevel),
		),
	}
	if s.settings.Banner != "" {
		opts = append(opts, wish.WithBanner(s.settings.Banner))
	}
	if s.settings.IdleTimeout > 0 {
		opts = append(opts, wish.WithIdleTimeout(s.settings.IdleTimeout))
	}
	if s.settings.MaxTimeout > 0 {
		opts = append(opts, wish.WithMaxTimeout(s.settings.MaxTimeout))
	}
	return wish.NewServer(opts...)
}

func (s *Server) serve(srv *ssh.Server, listener net.Listener) {
	s.TransitionToRunning()

	err := srv.Serve(listener)
	if err == nil || errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	err = fmt.Errorf("service %s: serve: %w", s.svc.Name, err)
	s.logger.Error("serve failed", "err", err)
	s.SendError(err)
}

// Stop closes the listener and waits for open connections up to the shutdown
// timeout, then drops the rest. Safe to call multiple times.
func (s *Server) Stop() error {
	if !s.TransitionToStopping() {
		s.WaitForShutdown()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.ShutdownTimeout)
	defer cancel()

	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("graceful shutdown timed out, closing connections")
			err = srv.Close()
		}
		if errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}

	s.WaitForShutdown()
	s.TransitionToStopped()
	s.logger.Info("stopped")
	return err
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.svc.Address
}
