// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lureworks/lure/internal/cueutil"
	"github.com/lureworks/lure/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "lure"
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "LURE"
)

//go:embed schema.cue
var schema string

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"services":        "services",
	"records":         "records",
	"debug":           "debug",
	"engine":          "sandbox.engine",
	"timeout":         "sandbox.timeout",
	"metrics-address": "metrics.address",
}

// loadWithOptions builds a fresh viper instance for every call, so concurrent
// loads never share state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("services", defaults.Services)
	v.SetDefault("records", defaults.Records)
	v.SetDefault("record_queue", defaults.RecordQueue)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("sandbox.engine", string(defaults.Sandbox.Engine))
	v.SetDefault("sandbox.timeout", defaults.Sandbox.Timeout)
	v.SetDefault("sandbox.retries", defaults.Sandbox.Retries)
	v.SetDefault("sandbox.backoff", defaults.Sandbox.Backoff)
	v.SetDefault("sandbox.host", defaults.Sandbox.Host)
	v.SetDefault("sandbox.workdir", defaults.Sandbox.WorkDir)
	v.SetDefault("metrics.address", defaults.Metrics.Address)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Omit --config to run with defaults").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadFileIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check that the file is valid YAML, TOML or CUE").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse configuration").
			WithSuggestion("Durations take Go syntax, e.g. 30s or 1m30s").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	if valid, errs := cfg.IsValid(); !valid {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	return &cfg, nil
}

// loadFileIntoViper validates a configuration file against #Config and merges
// its contents into v, keeping defaults for absent keys.
func loadFileIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	format, err := cueutil.FormatForPath(path)
	if err != nil {
		return err
	}

	res, err := cueutil.Decode[map[string]any](schema, "#Config", format, data, cueutil.WithFilename(path))
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(*res.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
