// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/orchestrator"
	"github.com/lureworks/lure/internal/watch"
)

// newValidateCommand creates the `lure validate` command. It runs the same
// loading and compilation as serve without binding any address or writing
// transcripts, and reports every service it would start.
func newValidateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and every service file",
		Long: `Load the configuration and the service files, compile every rule and
check the protocol settings of every service. Nothing is bound.

With --watch, validation runs again whenever a service file changes.

Examples:
  lure validate
  lure validate --services ./services.d --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, app)
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "validate again whenever a service file changes")
	return cmd
}

func runValidate(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	debug, _ := cmd.Flags().GetBool("debug")
	watching, _ := cmd.Flags().GetBool("watch")

	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: app.configPath, Flags: cmd.Flags()})
	if err != nil {
		return fail(cmd, err, debug)
	}

	err = validateServices(ctx, cmd.OutOrStdout(), app, cfg)
	if !watching {
		if err != nil {
			return fail(cmd, err, cfg.Debug)
		}
		return nil
	}
	if err != nil {
		renderError(cmd.ErrOrStderr(), err, cfg.Debug)
	}

	w, err := watch.New(watch.Config{
		Dir:     cfg.Services,
		Pattern: config.ServicePattern,
		Logger:  app.newLogger(cfg.Debug).WithPrefix("watch"),
		OnChange: func(ctx context.Context, changed []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s changed: %s\n\n", infoIcon, strings.Join(changed, ", "))
			if err := validateServices(ctx, cmd.OutOrStdout(), app, cfg); err != nil {
				renderError(cmd.ErrOrStderr(), err, cfg.Debug)
			}
		},
	})
	if err != nil {
		return fail(cmd, err, cfg.Debug)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s watching %s, press Ctrl-C to stop\n", infoIcon, ValueStyle.Render(cfg.Services))
	if err := w.Run(ctx); err != nil {
		return fail(cmd, err, cfg.Debug)
	}
	return nil
}

// validateServices loads and builds every service and prints a summary.
func validateServices(ctx context.Context, stdout io.Writer, app *App, cfg *config.Config) error {
	fmt.Fprintln(stdout, TitleStyle.Render("Service Validation"))
	fmt.Fprintf(stdout, "%s Services: %s\n", infoIcon, ValueStyle.Render(cfg.Services))
	fmt.Fprintln(stdout)

	services, err := config.LoadServices(ctx, cfg.Services)
	if err != nil {
		return err
	}

	o, err := orchestrator.Build(services, app.Protocols(), orchestrator.Options{
		ExecTimeout: cfg.Sandbox.Timeout,
		Logger:      log.New(io.Discard),
	})
	if err != nil {
		return err
	}

	live := 0
	for _, s := range o.Summaries() {
		fmt.Fprintf(stdout, "%s %s %s %s\n", successIcon,
			ValueStyle.Render(s.Name),
			s.Protocol+" on "+s.Address,
			SubtitleStyle.Render(fmt.Sprintf("(%d rules, %d live, %s)", s.Rules, s.Live, s.Source)),
		)
		live += s.Live
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "%s %d service(s) valid\n", successIcon, len(services))
	if live > 0 {
		fmt.Fprintf(stdout, "%s %d live handler(s) need the %s engine at runtime\n",
			WarningStyle.Render("!"), live, cfg.Sandbox.Engine)
	}
	return nil
}
