// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/core/serverbase"
)

const shutdownTimeout = 5 * time.Second

// Server serves /metrics on its own listener.
type Server struct {
	*serverbase.Base

	addr     string
	handler  http.Handler
	logger   *log.Logger
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a metrics endpoint bound to addr once started.
func NewServer(addr string, m *Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default().WithPrefix("metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &Server{
		Base:    serverbase.NewBase(serverbase.WithName("metrics")),
		addr:    addr,
		handler: mux,
		logger:  logger,
	}
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		err = fmt.Errorf("listen on %s: %w", s.addr, err)
		s.TransitionToFailed(err)
		return err
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}

	s.Go(func(context.Context) {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "err", err)
			s.SendError(err)
		}
	})

	s.TransitionToRunning()
	s.logger.Info("serving metrics", "address", s.Addr())
	return nil
}

// Stop shuts the endpoint down. It is safe to call more than once.
func (s *Server) Stop() error {
	if !s.TransitionToStopping() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.WaitForShutdown()
	s.TransitionToStopped()
	return err
}
