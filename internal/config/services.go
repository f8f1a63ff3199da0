// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lureworks/lure/internal/cueutil"
	"github.com/lureworks/lure/internal/issue"
)

// ServicePattern selects service files below the services directory.
const ServicePattern = "**/*.{yml,yaml,toml}"

// EnsureDirs creates the services and records directories if missing.
func EnsureDirs(cfg *Config) error {
	for _, dir := range []string{cfg.Services, cfg.Records} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return issue.NewErrorContext().
				WithOperation("create directory").
				WithResource(dir).
				WithSuggestion("Check permissions of the parent directory").
				Wrap(err).
				BuildError()
		}
	}
	return nil
}

// ServiceName derives a service name from a path relative to the services
// directory: "edge/ssh.yml" becomes "edge-ssh".
func ServiceName(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, "/", "-")
}

// LoadServices reads and validates every service file under dir, ordered by
// name. All invalid files are reported together; any fault fails the load.
func LoadServices(ctx context.Context, dir string) ([]Service, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), ServicePattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("list services").
			WithResource(dir).
			Wrap(err).
			BuildError()
	}
	slices.Sort(matches)

	services := make([]Service, 0, len(matches))
	seen := make(map[string]string, len(matches))
	var errs []error

	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load services canceled: %w", err)
		}

		source := filepath.Join(dir, filepath.FromSlash(rel))
		svc, err := loadService(source)
		if err != nil {
			errs = append(errs, &InvalidServiceError{Source: source, Cause: err})
			continue
		}
		svc.Name = ServiceName(rel)
		if prev, dup := seen[svc.Name]; dup {
			errs = append(errs, &InvalidServiceError{
				Source: source,
				Cause:  fmt.Errorf("service name %q already defined by %s", svc.Name, prev),
			})
			continue
		}
		seen[svc.Name] = source
		services = append(services, *svc)
	}

	if len(errs) > 0 {
		return nil, issue.NewErrorContext().
			WithOperation("load services").
			WithResource(dir).
			WithSuggestion("Fix the fields named above and run 'lure validate' again").
			WithIssue(issue.ServiceInvalidId).
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	if len(services) == 0 {
		return nil, issue.NewErrorContext().
			WithOperation("load services").
			WithResource(dir).
			WithSuggestion("Add a service file such as ssh.yml, or point --services at another directory").
			WithIssue(issue.ServicesNotFoundId).
			Wrap(ErrNoServices).
			BuildError()
	}

	return services, nil
}

func loadService(source string) (*Service, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	format, err := cueutil.FormatForPath(source)
	if err != nil {
		return nil, err
	}
	res, err := cueutil.Decode[Service](schema, "#Service", format, data, cueutil.WithFilename(filepath.Base(source)))
	if err != nil {
		return nil, err
	}
	svc := res.Value
	svc.Source = source
	return svc, nil
}
