// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockclerk/stockclerk/internal/observability"
	"github.com/stockclerk/stockclerk/internal/resolver"
)

// Deps contains injectable dependencies for the root command.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Loader resolves plugin modules.
	// Default: bundled plugins, then filesystem modules.
	Loader resolver.ModuleLoader[any]

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, isReady observability.ReadinessChecker, register ...func(prometheus.Registerer)) ObservabilityServer

	// Signals returns the channel shutdown signals arrive on and a
	// function that stops delivery.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())

	// Getwd returns the directory searched for a config file.
	// Default: os.Getwd
	Getwd func() (string, error)
}

// ObservabilityServer is the part of observability.Server the command uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

var _ ObservabilityServer = (*observability.Server)(nil)
