// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/lureworks/lure/internal/orchestrator"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	defaultProtocols = orchestrator.DefaultRegistry
)

func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "lure",
		Short: "A scripted SSH honeypot",
		Long: TitleStyle.Render("lure") + SubtitleStyle.Render(" - a scripted SSH honeypot") + `

lure listens as one or more fake services. Every command an intruder types is
matched against the rules of the service and answered with canned text, or with
the output of a command run inside a disposable container. Sessions are
recorded as JSON lines transcripts.

Services are YAML or TOML files (*.yml, *.yaml, *.toml) under the services
directory.

` + SubtitleStyle.Render("Examples:") + `
  lure serve                         Serve every service in ./services.d
  lure serve --services /etc/lure    Serve another services directory
  lure validate                      Check the configuration and rules`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "configuration file (YAML, TOML or CUE)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	root.PersistentFlags().String("services", "", "services directory (default \"services.d\")")

	root.AddCommand(newServeCommand(app))
	root.AddCommand(newValidateCommand(app))
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
