// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/issue"
	"github.com/lureworks/lure/internal/metrics"
	"github.com/lureworks/lure/internal/orchestrator"
)

func newServeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start every configured service",
		Long: `Load the service files, bind every service and answer sessions until
interrupted. Startup is all-or-nothing: if one service cannot bind, none keeps
running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, app)
		},
	}

	cmd.Flags().String("records", "", "transcript directory (default \"records\")")
	cmd.Flags().String("engine", "", "container engine for live handlers: docker, podman or auto")
	cmd.Flags().Duration("timeout", 0, "time limit of one live handler execution (default 30s)")
	cmd.Flags().String("metrics-address", "", "serve Prometheus metrics on this address")
	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: app.configPath, Flags: cmd.Flags()})
	if err != nil {
		return fail(cmd, err, debug)
	}
	logger := app.newLogger(cfg.Debug)

	if err := config.EnsureDirs(cfg); err != nil {
		return fail(cmd, err, cfg.Debug)
	}
	services, err := config.LoadServices(ctx, cfg.Services)
	if err != nil {
		return fail(cmd, err, cfg.Debug)
	}

	m := metrics.New()
	opts := orchestrator.Options{
		Records:     cfg.Records,
		RecordQueue: cfg.RecordQueue,
		ExecTimeout: cfg.Sandbox.Timeout,
		Metrics:     m,
		Logger:      logger,
	}
	if hasLiveRules(services) {
		sandbox, err := app.NewSandbox(ctx, cfg.Sandbox, logger)
		if err != nil {
			err = issue.NewErrorContext().
				WithOperation("select container engine").
				WithResource(string(cfg.Sandbox.Engine)).
				WithIssue(issue.ContainerEngineNotFoundId).
				Wrap(err).
				BuildError()
			return fail(cmd, err, cfg.Debug)
		}
		opts.Sandbox = sandbox
	}

	o, err := orchestrator.Build(services, app.Protocols(), opts)
	if err != nil {
		return fail(cmd, err, cfg.Debug)
	}

	if cfg.Metrics.Address != "" {
		stop, err := startMetrics(ctx, cfg.Metrics.Address, m, logger)
		if err != nil {
			return fail(cmd, err, cfg.Debug)
		}
		defer stop()
	}

	if err := o.Run(ctx); err != nil {
		return fail(cmd, err, cfg.Debug)
	}
	return nil
}

func startMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *log.Logger) (stop func(), err error) {
	srv := metrics.NewServer(addr, m, logger.WithPrefix("metrics"))
	if err := srv.Start(ctx); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("start metrics listener").
			WithResource(addr).
			WithIssue(issue.ListenFailedId).
			Wrap(err).
			BuildError()
	}
	return func() {
		if err := srv.Stop(); err != nil {
			logger.Error("stopping metrics listener failed", "err", err)
		}
	}, nil
}

func hasLiveRules(services []config.Service) bool {
	return slices.ContainsFunc(services, func(svc config.Service) bool {
		return slices.ContainsFunc(svc.Commands, func(r config.Rule) bool {
			return command.IsDirective(r.Handler)
		})
	})
}

