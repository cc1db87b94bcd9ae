// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stockclerk/stockclerk/internal/factory"
	"github.com/stockclerk/stockclerk/internal/host"
	"github.com/stockclerk/stockclerk/internal/logging"
	"github.com/stockclerk/stockclerk/internal/observability"
	"github.com/stockclerk/stockclerk/internal/plugin/goplugin"
	pluginlua "github.com/stockclerk/stockclerk/internal/plugin/lua"
	"github.com/stockclerk/stockclerk/internal/plugins"
	"github.com/stockclerk/stockclerk/internal/resolver"
	"github.com/stockclerk/stockclerk/internal/xdg"
	"github.com/stockclerk/stockclerk/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// runWithDeps builds the pipeline, starts it, waits for a shutdown signal
// and stops it. If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cfg *cliConfig, cmd *cobra.Command, deps *Deps) error {
	if deps == nil {
		deps = &Deps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, isReady observability.ReadinessChecker, register ...func(prometheus.Registerer)) ObservabilityServer {
			return observability.NewServer(addr, isReady, register...)
		}
	}
	if deps.Signals == nil {
		deps.Signals = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	if deps.Getwd == nil {
		deps.Getwd = os.Getwd
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.Setup("stockclerk", version, cfg.LogFormat, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if ctx == nil {
		ctx = context.Background()
	}

	loader := deps.Loader
	if loader == nil {
		luaRuntime := pluginlua.NewRuntime(pluginlua.WithLogger(logger))
		defer closeRuntime("lua", luaRuntime.Close)
		binaryRuntime := goplugin.NewRuntime(goplugin.WithLogger(logger))
		defer closeRuntime("binary", binaryRuntime.Close)
		loader = defaultLoader(cfg, logger, luaRuntime, binaryRuntime)
	}

	var ready atomic.Bool
	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load, host.RegisterMetrics)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		defer stopObservability(obsServer)
		go func() {
			if err, ok := <-obsErrChan; ok && err != nil {
				slog.Error("observability server error", "error", err)
			}
		}()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	h, err := buildHost(ctx, cfg, deps, loader, logger)
	if err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to build pipeline", err)
		return err
	}

	sigChan, stopSignals := deps.Signals()
	defer stopSignals()

	if err := h.Start(ctx); err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to start pipeline", err)
		return err
	}
	ready.Store(true)
	slog.Info("pipeline started", "plugins", strings.Join(h.Plugins(), ","))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}
	ready.Store(false)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		errutil.LogErrorContext(ctx, logger, "failed to stop pipeline", err)
		return err
	}
	slog.Info("shutdown complete")
	return nil
}

// defaultLoader resolves bundled plugins first, then filesystem modules
// from the working directory upwards, --plugin-path and the user plugin
// directory.
func defaultLoader(cfg *cliConfig, logger *slog.Logger, lua *pluginlua.Runtime, binary *goplugin.Runtime) resolver.ModuleLoader[any] {
	reg := resolver.NewRegistry[any]()
	plugins.Register(reg, logger)

	extra := append(append([]string(nil), cfg.PluginPath...), xdg.PluginsDir())
	return resolver.Chain[any]{
		reg,
		&resolver.DirLoader[any]{
			Search:      resolver.SearchPaths{Extra: extra},
			Lua:         lua,
			Binary:      binary,
			HostVersion: hostVersion(),
			Logger:      logger,
		},
	}
}

func buildHost(ctx context.Context, cfg *cliConfig, deps *Deps, loader resolver.ModuleLoader[any], logger *slog.Logger) (*host.Host[any], error) {
	f := factory.New[any](loader, factory.WithLogger(logger))
	if cfg.Config != "" {
		return f.CreateFromConfigFile(ctx, cfg.Config, "")
	}
	wd, err := deps.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return f.CreateFromDirectory(ctx, wd)
}

// hostVersion is the version manifests' requires constraints are checked
// against. Development builds satisfy every constraint.
func hostVersion() string {
	return strings.TrimPrefix(version, "v")
}

func closeRuntime(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Warn("error closing plugin runtime", "runtime", name, "error", err)
	}
}

func stopObservability(s ObservabilityServer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}
