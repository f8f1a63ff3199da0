// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
)

type (
	// Engine defines the container operations a sandbox relies on.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available checks if the engine is available on the system.
		Available() bool
		// Version returns the engine server version.
		Version(ctx context.Context) (string, error)
		// Exec runs a command in a running container.
		Exec(ctx context.Context, containerID string, command []string, opts ExecOptions) (*RunResult, error)
	}

	// ExecOptions contains options for running a command in a container.
	ExecOptions struct {
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env contains environment variables.
		Env map[string]string
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// RunResult contains the result of an exec.
	RunResult struct {
		// ContainerID is the container the command ran in.
		ContainerID string
		// ExitCode is the exit code.
		ExitCode int
		// Error is set for infrastructure failures (binary missing, spawn error),
		// never for a plain non-zero exit.
		Error error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// ErrEngineNotAvailable is returned when a container engine is not available.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

const (
	EngineTypePodman EngineType = "podman"
	EngineTypeDocker EngineType = "docker"
	// EngineTypeAuto picks whichever engine is installed, docker first.
	EngineTypeAuto EngineType = "auto"
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// ParseEngineType validates a configured engine name.
func ParseEngineType(s string) (EngineType, error) {
	switch t := EngineType(s); t {
	case EngineTypeDocker, EngineTypePodman, EngineTypeAuto:
		return t, nil
	default:
		return "", fmt.Errorf("unknown container engine type: %q (expected docker, podman or auto)", s)
	}
}

// NewEngine creates a container engine based on preference, falling back to the
// other engine when the preferred one is not installed.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	var preferred, fallback Engine
	switch preferredType {
	case EngineTypeDocker:
		preferred, fallback = NewDockerEngine(opts...), NewPodmanEngine(opts...)
	case EngineTypePodman:
		preferred, fallback = NewPodmanEngine(opts...), NewDockerEngine(opts...)
	case EngineTypeAuto:
		return AutoDetectEngine(opts...)
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferredType)
	}

	if preferred.Available() {
		return preferred, nil
	}
	if fallback.Available() {
		return fallback, nil
	}
	return nil, &ErrEngineNotAvailable{
		Engine: string(preferredType),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available",
			preferred.Name(), fallback.Name()),
	}
}

// AutoDetectEngine tries to find an available container engine. Docker is tried
// first since honeypot sandboxes are usually provisioned with it.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	docker := NewDockerEngine(opts...)
	if docker.Available() {
		return docker, nil
	}

	podman := NewPodmanEngine(opts...)
	if podman.Available() {
		return podman, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
