// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package plugins registers the plugins compiled into stockclerk.
package plugins

import (
	"log/slog"

	"github.com/stockclerk/stockclerk/internal/plugins/console"
	"github.com/stockclerk/stockclerk/internal/plugins/instock"
	"github.com/stockclerk/stockclerk/internal/plugins/postgres"
	"github.com/stockclerk/stockclerk/internal/plugins/redis"
	"github.com/stockclerk/stockclerk/internal/resolver"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Names of the bundled plugins as written in configuration.
const (
	Console  = "console"
	InStock  = "instock"
	Postgres = "postgres"
	Redis    = "redis"
)

// Register adds the bundled plugins to reg under their module identifiers.
// Each load gets a fresh instance with a logger tagged with its name.
func Register[T any](reg *resolver.Registry[T], logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	named := func(name string) *slog.Logger { return logger.With("plugin", name) }

	reg.Register(resolver.ModuleID(Console), func() plugin.Plugin {
		return console.New[T](named(Console))
	})
	reg.Register(resolver.ModuleID(InStock), func() plugin.Plugin {
		return instock.New[T]()
	})
	reg.Register(resolver.ModuleID(Postgres), func() plugin.Plugin {
		return postgres.New[T](postgres.WithLogger(named(Postgres)))
	})
	reg.Register(resolver.ModuleID(Redis), func() plugin.Plugin {
		return redis.New[T](redis.WithLogger(named(Redis)))
	})
}
