// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/issue"
	"github.com/lureworks/lure/internal/metrics"
	"github.com/lureworks/lure/internal/protocol"
	"github.com/lureworks/lure/internal/record"
	"github.com/lureworks/lure/internal/sshserver"
)

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("orchestrator already ran")

type (
	// Options are the collaborators shared by every service.
	Options struct {
		// Records is the transcript root. Empty discards transcripts.
		Records string
		// RecordQueue bounds pending transcript writes per service.
		RecordQueue int
		// Sandbox runs live-execution handlers. Nil makes them fail at dispatch.
		Sandbox command.Sandbox
		// ExecTimeout bounds every sandbox call.
		ExecTimeout time.Duration
		// Metrics is optional.
		Metrics *metrics.Metrics
		Logger  *log.Logger
	}

	// Summary describes one built service.
	Summary struct {
		Name     string
		Protocol string
		Address  string
		Source   string
		Rules    int
		Live     int
	}

	// Orchestrator owns the adapters and recorders of every service.
	Orchestrator struct {
		services []*service
		logger   *log.Logger
		ran      atomic.Bool
	}

	service struct {
		cfg     config.Service
		rules   *command.Set
		adapter protocol.Adapter
		async   *record.Async
		files   *record.FileRecorder
	}
)

// DefaultRegistry returns a registry with every built-in protocol.
func DefaultRegistry() *protocol.Registry {
	reg := protocol.NewRegistry()
	if err := reg.Register(sshserver.Kind, sshserver.NewAdapter); err != nil {
		panic(err)
	}
	return reg
}

// Build compiles the rule sets and constructs the adapters of services. Any
// error aborts the whole build and releases what was already created.
func Build(services []config.Service, reg *protocol.Registry, opts Options) (*Orchestrator, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	o := &Orchestrator{logger: opts.Logger.WithPrefix("orchestrator")}

	for _, cfg := range services {
		svc, err := buildService(cfg, reg, opts)
		if err != nil {
			o.release()
			return nil, err
		}
		o.services = append(o.services, svc)
		o.logger.Debug("service built", "service", cfg.Name, "proto", cfg.Protocol, "rules", svc.rules.Len())
	}
	return o, nil
}

// CompileRules builds the rule set of cfg.
func CompileRules(cfg config.Service, opts Options) (*command.Set, error) {
	specs := make([]command.Spec, len(cfg.Commands))
	for i, r := range cfg.Commands {
		specs[i] = command.Spec{Parser: r.Parser, Handler: r.Handler}
	}

	cmdOpts := []command.Option{command.WithExecTimeout(opts.ExecTimeout)}
	if opts.Sandbox != nil {
		sandbox := opts.Sandbox
		if opts.Metrics != nil {
			sandbox = opts.Metrics.InstrumentSandbox(cfg.Name, sandbox)
		}
		cmdOpts = append(cmdOpts, command.WithSandbox(sandbox))
	}
	if opts.Metrics != nil {
		cmdOpts = append(cmdOpts, command.WithObserver(opts.Metrics.CacheObserver(cfg.Name)))
	}

	rules, err := command.NewSet(specs, cmdOpts...)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("compile rules of service "+cfg.Name).
			WithResource(cfg.Source).
			WithIssue(issue.RuleInvalidId).
			Wrap(err).
			BuildError()
	}
	return rules, nil
}

func buildService(cfg config.Service, reg *protocol.Registry, opts Options) (_ *service, err error) {
	rules, err := CompileRules(cfg, opts)
	if err != nil {
		return nil, err
	}

	ctor, err := reg.Lookup(cfg.Protocol)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("build service "+cfg.Name).
			WithResource(cfg.Source).
			WithIssue(issue.UnknownProtocolId).
			Wrap(err).
			BuildError()
	}

	svc := &service{cfg: cfg, rules: rules}
	defer func() {
		if err != nil {
			svc.shutdownRecorder(opts.Logger)
		}
	}()

	var recorder record.Recorder = record.Nop{}
	if opts.Records != "" {
		svc.files, err = record.NewFileRecorder(opts.Records, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", cfg.Name, err)
		}
		svc.async = record.NewAsync(svc.files, opts.RecordQueue, opts.Logger.WithPrefix("record:"+cfg.Name))
		recorder = svc.async
	}

	deps := protocol.Deps{
		Rules:    rules,
		Recorder: recorder,
		Logger:   opts.Logger,
	}
	if opts.Metrics != nil {
		deps.Sessions = opts.Metrics
		deps.Auth = opts.Metrics
	}

	svc.adapter, err = ctor(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", cfg.Name, err)
	}
	return svc, nil
}

// Summaries describes the built services in load order.
func (o *Orchestrator) Summaries() []Summary {
	out := make([]Summary, 0, len(o.services))
	for _, svc := range o.services {
		s := Summary{
			Name:     svc.cfg.Name,
			Protocol: svc.cfg.Protocol,
			Address:  svc.adapter.Addr(),
			Source:   svc.cfg.Source,
			Rules:    svc.rules.Len(),
		}
		for _, r := range svc.rules.Rules() {
			if r.Live() {
				s.Live++
			}
		}
		out = append(out, s)
	}
	return out
}

// Run starts every adapter and blocks until ctx is done, then stops them and
// flushes the transcripts. If any adapter fails to start, the ones already
// listening are stopped and the error is returned. Faults after startup are
// logged and confined to their service.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer o.release()

	if err := o.startAll(ctx); err != nil {
		o.stopAll()
		return err
	}
	o.logger.Info("services listening", "count", len(o.services))

	var wg sync.WaitGroup
	for _, svc := range o.services {
		wg.Go(func() { o.watch(ctx, svc) })
	}

	<-ctx.Done()
	o.logger.Info("shutting down", "reason", context.Cause(ctx))
	o.stopAll()
	wg.Wait()
	return nil
}

func (o *Orchestrator) startAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range o.services {
		g.Go(func() error {
			if err := svc.adapter.Start(gctx); err != nil {
				return issue.NewErrorContext().
					WithOperation("start service "+svc.cfg.Name).
					WithResource(svc.cfg.Address).
					WithIssue(issue.ListenFailedId).
					Wrap(err).
					BuildError()
			}
			o.logger.Info("service started", "service", svc.cfg.Name, "proto", svc.cfg.Protocol, "address", svc.adapter.Addr())
			return nil
		})
	}
	return g.Wait()
}

// watch logs runtime faults of one adapter until it stops or ctx ends.
func (o *Orchestrator) watch(ctx context.Context, svc *service) {
	for {
		select {
		case err := <-svc.adapter.Err():
			o.logger.Error("service fault", "service", svc.cfg.Name, "err", err)
		case <-svc.adapter.Done():
			if ctx.Err() == nil {
				o.logger.Error("service stopped unexpectedly", "service", svc.cfg.Name)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) stopAll() {
	var wg sync.WaitGroup
	for _, svc := range o.services {
		wg.Go(func() {
			if err := svc.adapter.Stop(); err != nil {
				o.logger.Error("stopping service failed", "service", svc.cfg.Name, "err", err)
			}
		})
	}
	wg.Wait()
}

// release flushes and closes every recorder. Adapters must be stopped.
func (o *Orchestrator) release() {
	for _, svc := range o.services {
		svc.shutdownRecorder(o.logger)
	}
}

func (s *service) shutdownRecorder(logger *log.Logger) {
	if s.async != nil {
		s.async.Stop()
		if n := s.async.Dropped(); n > 0 {
			logger.Warn("transcript entries dropped", "service", s.cfg.Name, "count", n)
		}
		if n := s.async.Orphaned(); n > 0 {
			logger.Warn("transcripts left open until shutdown", "service", s.cfg.Name, "count", n)
		}
		s.async = nil
	}
	if s.files != nil {
		if err := s.files.Shutdown(); err != nil {
			logger.Error("closing transcripts failed", "service", s.cfg.Name, "err", err)
		}
		s.files = nil
	}
}
