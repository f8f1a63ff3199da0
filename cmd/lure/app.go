// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/config"
	"github.com/lureworks/lure/internal/container"
	"github.com/lureworks/lure/internal/protocol"
)

type (
	// SandboxFactory creates the sandbox behind live-execution handlers.
	SandboxFactory func(ctx context.Context, cfg config.SandboxConfig, logger *log.Logger) (command.Sandbox, error)

	// App wires CLI services and shared dependencies. Every command handler
	// receives an App reference.
	App struct {
		Config     config.Provider
		Protocols  func() *protocol.Registry
		NewSandbox SandboxFactory
		stdout     io.Writer
		stderr     io.Writer

		configPath string
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     config.Provider
		Protocols  func() *protocol.Registry
		NewSandbox SandboxFactory
		Stdout     io.Writer
		Stderr     io.Writer
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		Protocols:  deps.Protocols,
		NewSandbox: deps.NewSandbox,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Protocols == nil {
		app.Protocols = defaultProtocols
	}
	if app.NewSandbox == nil {
		app.NewSandbox = newContainerSandbox
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// newLogger creates the root logger. Components derive theirs with WithPrefix.
func (a *App) newLogger(debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}

// newContainerSandbox resolves the configured container engine, falling back
// to the other one when it is not installed.
func newContainerSandbox(ctx context.Context, cfg config.SandboxConfig, logger *log.Logger) (command.Sandbox, error) {
	engineType, err := container.ParseEngineType(string(cfg.Engine))
	if err != nil {
		return nil, err
	}
	engine, err := container.NewEngine(engineType, engineOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	logger = logger.WithPrefix("sandbox")
	if version, err := engine.Version(ctx); err != nil {
		logger.Warn("engine version unknown", "engine", engine.Name(), "err", err)
	} else {
		logger.Info("container engine ready", "engine", engine.Name(), "version", version)
	}
	return container.NewSandbox(engine,
		container.WithRetries(cfg.Retries),
		container.WithBackoff(cfg.Backoff),
		container.WithWorkDir(cfg.WorkDir),
		container.WithEnv(sandboxEnv(cfg.Env)),
		container.WithLogger(logger),
	), nil
}

// engineOptions points both engine CLIs at cfg.Host when it is set. Each CLI
// reads only its own variable.
func engineOptions(cfg config.SandboxConfig) []container.BaseCLIEngineOption {
	if cfg.Host == "" {
		return nil
	}
	return []container.BaseCLIEngineOption{
		container.WithCmdEnvOverride("DOCKER_HOST", cfg.Host),
		container.WithCmdEnvOverride("CONTAINER_HOST", cfg.Host),
	}
}

func sandboxEnv(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}
