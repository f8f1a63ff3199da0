// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"

	"github.com/spf13/pflag"
)

// LoadOptions defines explicit configuration loading inputs.
type LoadOptions struct {
	// ConfigFilePath loads a YAML, TOML or CUE file on top of the defaults when set.
	ConfigFilePath string
	// Flags binds known command line flags (services, records, debug, engine,
	// timeout, metrics-address). Only flags the user changed override other sources.
	Flags *pflag.FlagSet
}

// Provider loads configuration from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type viperProvider struct{}

// NewProvider creates a configuration provider.
func NewProvider() Provider {
	return &viperProvider{}
}

// Load resolves the configuration from defaults, file, environment and flags,
// in increasing order of precedence.
func (p *viperProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return loadWithOptions(ctx, opts)
}
