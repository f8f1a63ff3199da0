// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ContainerEngineDocker runs live handlers through the docker CLI.
	ContainerEngineDocker ContainerEngine = "docker"
	// ContainerEnginePodman runs live handlers through the podman CLI.
	ContainerEnginePodman ContainerEngine = "podman"
	// ContainerEngineAuto uses whichever engine is installed.
	ContainerEngineAuto ContainerEngine = "auto"
)

var (
	// ErrInvalidContainerEngine is returned when a ContainerEngine value is not recognized.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidSandboxConfig is the sentinel error wrapped by InvalidSandboxConfigError.
	ErrInvalidSandboxConfig = errors.New("invalid sandbox config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidService is the sentinel error wrapped by InvalidServiceError.
	ErrInvalidService = errors.New("invalid service")
	// ErrNoServices is returned when the services directory holds no service file.
	ErrNoServices = errors.New("no services configured")
)

type (
	// ContainerEngine names the container CLI used for live handlers.
	ContainerEngine string

	// InvalidContainerEngineError is returned when a ContainerEngine value is not recognized.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// InvalidSandboxConfigError collects field-level sandbox validation errors.
	InvalidSandboxConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects field-level validation errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InvalidServiceError names the service file that failed to load.
	InvalidServiceError struct {
		Source string
		Cause  error
	}

	// Config holds the application configuration.
	Config struct {
		// Services is the directory scanned for service files.
		Services string `json:"services" mapstructure:"services"`
		// Records is the root directory of session transcripts.
		Records string `json:"records" mapstructure:"records"`
		// RecordQueue bounds the number of transcript entries buffered in memory.
		RecordQueue int `json:"record_queue" mapstructure:"record_queue"`
		// Debug enables debug logging.
		Debug bool `json:"debug" mapstructure:"debug"`
		// Sandbox configures live handler execution.
		Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`
		// Metrics configures the Prometheus listener.
		Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	}

	// SandboxConfig configures the container engine behind @docker handlers.
	SandboxConfig struct {
		Engine  ContainerEngine `json:"engine" mapstructure:"engine"`
		Timeout time.Duration   `json:"timeout" mapstructure:"timeout"`
		Retries int             `json:"retries" mapstructure:"retries"`
		Backoff time.Duration   `json:"backoff" mapstructure:"backoff"`
		// Host points the engine CLI at a remote daemon (DOCKER_HOST, CONTAINER_HOST).
		Host string `json:"host" mapstructure:"host"`
		// WorkDir is the directory live commands start in.
		WorkDir string `json:"workdir" mapstructure:"workdir"`
		// Env holds KEY=VALUE pairs set for every live command. A list keeps
		// the case of the names, which viper folds for map keys.
		Env []string `json:"env" mapstructure:"env"`
	}

	// MetricsConfig configures the optional /metrics listener.
	MetricsConfig struct {
		// Address is the listen address; empty disables the listener.
		Address string `json:"address" mapstructure:"address"`
	}

	// Rule is one command rule of a service file.
	Rule struct {
		Parser  string `json:"parser"`
		Handler string `json:"handler"`
	}

	// Service is one validated service file. It is immutable after loading.
	Service struct {
		// Name is derived from the file path relative to the services directory.
		Name string `json:"-"`
		// Source is the path of the file the service was loaded from.
		Source string `json:"-"`

		Protocol string         `json:"proto"`
		Address  string         `json:"address"`
		Commands []Rule         `json:"commands,omitempty"`
		Settings map[string]any `json:"config,omitempty"`
	}
)

// DefaultConfig returns the configuration used when no source overrides a key.
func DefaultConfig() *Config {
	return &Config{
		Services:    "services.d",
		Records:     "records",
		RecordQueue: 1024,
		Sandbox: SandboxConfig{
			Engine:  ContainerEngineDocker,
			Timeout: 30 * time.Second,
			Retries: 2,
			Backoff: 200 * time.Millisecond,
		},
	}
}

// IsValid returns whether the Config has valid fields.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.Services) == "" {
		errs = append(errs, errors.New("services directory must not be empty"))
	}
	if strings.TrimSpace(c.Records) == "" {
		errs = append(errs, errors.New("records directory must not be empty"))
	}
	if c.RecordQueue <= 0 {
		errs = append(errs, fmt.Errorf("record_queue must be positive, got %d", c.RecordQueue))
	}
	if valid, fieldErrs := c.Sandbox.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// IsValid returns whether the SandboxConfig has valid fields.
func (c SandboxConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.Engine.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be positive, got %s", c.Timeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("sandbox.retries must not be negative, got %d", c.Retries))
	}
	if c.WorkDir != "" && !strings.HasPrefix(c.WorkDir, "/") {
		errs = append(errs, fmt.Errorf("sandbox.workdir must be absolute, got %q", c.WorkDir))
	}
	for _, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			errs = append(errs, fmt.Errorf("sandbox.env entry %q must be KEY=VALUE", kv))
		}
	}
	if c.Backoff < 0 {
		errs = append(errs, fmt.Errorf("sandbox.backoff must not be negative, got %s", c.Backoff))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidSandboxConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSandboxConfigError.
func (e *InvalidSandboxConfigError) Error() string {
	return fmt.Sprintf("invalid sandbox config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidSandboxConfig and the field errors.
func (e *InvalidSandboxConfigError) Unwrap() []error {
	return append([]error{ErrInvalidSandboxConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidContainerEngineError.
func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman, auto)", e.Value)
}

// Unwrap returns ErrInvalidContainerEngine for errors.Is() compatibility.
func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

func (ce ContainerEngine) String() string { return string(ce) }

// IsValid returns whether the ContainerEngine is one of the defined engine types.
func (ce ContainerEngine) IsValid() (bool, []error) {
	switch ce {
	case ContainerEngineDocker, ContainerEnginePodman, ContainerEngineAuto:
		return true, nil
	default:
		return false, []error{&InvalidContainerEngineError{Value: ce}}
	}
}

// Error implements the error interface for InvalidServiceError.
func (e *InvalidServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Cause)
}

// Unwrap returns ErrInvalidService and the cause.
func (e *InvalidServiceError) Unwrap() []error {
	return []error{ErrInvalidService, e.Cause}
}
