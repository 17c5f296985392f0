// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/application"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/resource"
	"github.com/dukex/opflow/pkg/script"
	"github.com/dukex/opflow/pkg/web"
)

// Registry holds the applications compiled from a script directory.
type Registry struct {
	scripts []*script.Script
	apps    []*application.Application
	cache   *resource.Cache
}

// NewRegistry loads every script of scriptsPath and wraps it as an
// application recording into repo. When templatesPath is set the scripts
// preheat their templates from it through a shared cache.
func NewRegistry(
	ctx context.Context,
	logger *slog.Logger,
	execCtx *execution.Context,
	repo persistence.RunRecordRepository,
	scriptsPath string,
	templatesPath string,
) (*Registry, error) {
	docs, err := script.LoadDir(scriptsPath)
	if err != nil {
		return nil, err
	}

	reg := &Registry{}

	var opts []script.CompileOption

	if templatesPath != "" {
		cache, err := resource.NewCache(resource.DirLoader{Root: templatesPath}, resource.DefaultMaxCost, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create template cache: %w", err)
		}

		reg.cache = cache
		opts = append(opts, script.WithWarmer(cache))
	}

	for _, doc := range docs {
		s, err := script.Compile(execCtx, doc, opts...)
		if err != nil {
			reg.Close()

			return nil, fmt.Errorf("failed to compile script %s: %w", doc.ID, err)
		}

		reg.scripts = append(reg.scripts, s)
		reg.apps = append(reg.apps, s.Application(execCtx, repo))
	}

	logger.InfoContext(ctx, "Scripts loaded", "path", scriptsPath, "count", len(reg.apps))

	return reg, nil
}

// Applications returns the applications in script name order.
func (r *Registry) Applications() []*application.Application {
	return r.apps
}

// Scripts returns the compiled scripts.
func (r *Registry) Scripts() []*script.Script {
	return r.scripts
}

// Infos describes the applications for the control API.
func (r *Registry) Infos() []web.AppInfo {
	infos := make([]web.AppInfo, 0, len(r.apps))
	for _, app := range r.apps {
		infos = append(infos, web.AppInfo{ID: app.ID(), Reset: app.Reset()})
	}

	return infos
}

// Close releases the template cache.
func (r *Registry) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
