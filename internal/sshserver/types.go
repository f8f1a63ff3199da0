// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/lureworks/lure/internal/session"
)

const (
	// DefaultVersion is the identification string sent before the handshake.
	DefaultVersion = "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.10"
	// AnyUser keys credentials that apply to every user name.
	AnyUser = "*"

	defaultStartupTimeout  = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ErrInvalidSettings is the sentinel error wrapped by InvalidSettingsError.
var ErrInvalidSettings = errors.New("invalid ssh settings")

type (
	// Settings is the protocol-specific "config" block of an ssh service.
	Settings struct {
		// HostKey is the path of the private host key. It is generated when
		// missing; an empty path uses a key that lives as long as the process.
		HostKey string `mapstructure:"host_key"`
		// Version replaces the server identification string.
		Version string `mapstructure:"version"`
		// Banner is shown to clients before authentication.
		Banner string `mapstructure:"banner"`
		// Prompt is the interactive shell prompt.
		Prompt string `mapstructure:"prompt"`
		// NotFound formats the reply to unmatched commands; %s is the command name.
		NotFound string `mapstructure:"not_found"`
		// ExecFailed formats the reply to a failed live command that printed
		// nothing; %s is the command name.
		ExecFailed string `mapstructure:"exec_failed"`
		// AcceptAll accepts every password, ignoring Credentials.
		AcceptAll bool `mapstructure:"accept_all"`
		// AcceptKeys accepts public key authentication. Rejected keys make
		// most clients fall back to a password prompt.
		AcceptKeys bool `mapstructure:"accept_keys"`
		// Credentials maps user names (or "*") to accepted passwords.
		Credentials map[string][]string `mapstructure:"credentials"`
		// IdleTimeout closes connections without traffic; zero disables it.
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
		// MaxTimeout bounds the lifetime of a connection; zero disables it.
		MaxTimeout time.Duration `mapstructure:"max_timeout"`

		StartupTimeout  time.Duration `mapstructure:"startup_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	}

	// InvalidSettingsError collects field-level errors of Settings.
	InvalidSettingsError struct {
		Service     string
		FieldErrors []error
	}
)

// DefaultSettings returns the settings applied before the service overrides.
func DefaultSettings() Settings {
	return Settings{
		Version:         DefaultVersion,
		Prompt:          session.DefaultPrompt,
		NotFound:        session.DefaultNotFound,
		ExecFailed:      session.DefaultExecFailed,
		AcceptAll:       true,
		StartupTimeout:  defaultStartupTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// DecodeSettings overlays raw on the defaults. Unknown keys are rejected.
func DecodeSettings(raw map[string]any) (Settings, error) {
	s := DefaultSettings()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return s, nil
}

// Validate checks values mapstructure cannot.
func (s Settings) Validate(service string) error {
	var errs []error
	if !strings.HasPrefix(s.Version, "SSH-2.0-") {
		errs = append(errs, fmt.Errorf("version %q must start with SSH-2.0-", s.Version))
	}
	if strings.Count(s.NotFound, "%s") != 1 || strings.Count(s.NotFound, "%") != 1 {
		errs = append(errs, fmt.Errorf("not_found %q must contain exactly one %%s", s.NotFound))
	}
	if strings.Count(s.ExecFailed, "%s") != 1 || strings.Count(s.ExecFailed, "%") != 1 {
		errs = append(errs, fmt.Errorf("exec_failed %q must contain exactly one %%s", s.ExecFailed))
	}
	if !s.AcceptAll && !s.AcceptKeys && len(s.Credentials) == 0 {
		errs = append(errs, errors.New("accept_all is false but no credentials are configured"))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"idle_timeout", s.IdleTimeout},
		{"max_timeout", s.MaxTimeout},
		{"startup_timeout", s.StartupTimeout},
		{"shutdown_timeout", s.ShutdownTimeout},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", d.name, d.v))
		}
	}
	if len(errs) > 0 {
		return &InvalidSettingsError{Service: service, FieldErrors: errs}
	}
	return nil
}

// Allows reports whether the password is accepted for user.
func (s Settings) Allows(user, password string) bool {
	if s.AcceptAll {
		return true
	}
	return slices.Contains(s.Credentials[user], password) ||
		slices.Contains(s.Credentials[AnyUser], password)
}

// Error implements the error interface for InvalidSettingsError.
func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("service %s: invalid ssh settings: %v", e.Service, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidSettings for errors.Is() compatibility.
func (e *InvalidSettingsError) Unwrap() error { return ErrInvalidSettings }
