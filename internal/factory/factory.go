// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package factory builds a Host from configuration.
package factory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/stockclerk/stockclerk/internal/config"
	"github.com/stockclerk/stockclerk/internal/host"
	"github.com/stockclerk/stockclerk/internal/resolver"
)

// Factory builds hosts whose plugins come from a module loader.
type Factory[T any] struct {
	resolver *resolver.Resolver[T]
	logger   *slog.Logger
	hostOpts []host.Option
}

// Option configures a Factory.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	hostOpts []host.Option
}

// WithLogger sets the logger used by the factory and the hosts it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHostOptions adds options applied to every host built.
func WithHostOptions(opts ...host.Option) Option {
	return func(s *settings) {
		s.hostOpts = append(s.hostOpts, opts...)
	}
}

// New creates a factory resolving plugins through loader.
func New[T any](loader resolver.ModuleLoader[T], opts ...Option) *Factory[T] {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	hostOpts := append([]host.Option{host.WithLogger(s.logger)}, s.hostOpts...)
	return &Factory[T]{
		resolver: resolver.New[T](loader, s.logger),
		logger:   s.logger.With("component", "factory"),
		hostOpts: hostOpts,
	}
}

// CreateFromConfig builds a host with cfg's options and loads cfg's
// plugins in order, one at a time. Relative plugin paths resolve against
// workingDir, which defaults to the process working directory.
func (f *Factory[T]) CreateFromConfig(ctx context.Context, cfg *config.Config, workingDir string) (*host.Host[T], error) {
	wd, err := absDir(workingDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	h := host.New[T](cfg.Options, f.hostOpts...)
	for _, name := range cfg.Plugins {
		p, err := f.resolver.Resolve(ctx, name, wd)
		if err != nil {
			return nil, oops.In("factory").With("plugin", name).Wrap(err)
		}
		if err := h.LoadPlugin(ctx, name, p); err != nil {
			return nil, err
		}
		f.logger.DebugContext(ctx, "plugin loaded", "plugin", name)
	}

	f.logger.InfoContext(ctx, "host created", "plugins", len(cfg.Plugins), "working_dir", wd)
	return h, nil
}

// CreateFromConfigFile loads the config file and builds its host. The
// working directory defaults to the file's directory.
func (f *Factory[T]) CreateFromConfigFile(ctx context.Context, filename, workingDir string) (*host.Host[T], error) {
	cfg, err := config.Load(ctx, filename)
	if err != nil {
		return nil, err
	}
	if workingDir == "" {
		workingDir = filepath.Dir(filename)
	}
	return f.CreateFromConfig(ctx, cfg, workingDir)
}

// CreateFromDirectory builds a host from the first conventional config
// file in dir. A directory without one yields a host with no plugins.
func (f *Factory[T]) CreateFromDirectory(ctx context.Context, dir string) (*host.Host[T], error) {
	wd, err := absDir(dir)
	if err != nil {
		return nil, err
	}
	path, found, err := config.Discover(wd)
	if err != nil {
		return nil, err
	}
	if !found {
		f.logger.InfoContext(ctx, "no config file found, starting with an empty pipeline", "dir", wd)
		return host.New[T](nil, f.hostOpts...), nil
	}
	f.logger.DebugContext(ctx, "config file discovered", "path", path)
	return f.CreateFromConfigFile(ctx, path, wd)
}

func absDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", oops.In("factory").Wrapf(err, "get working directory")
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", oops.In("factory").With("dir", dir).Wrapf(err, "resolve directory")
	}
	return abs, nil
}
