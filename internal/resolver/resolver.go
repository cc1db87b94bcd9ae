// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// ModuleLoader loads a plugin by module identifier. It returns an error
// matching ErrModuleNotFound when it does not know the module. T is the
// extension data type of the host the plugin will be loaded into.
type ModuleLoader[T any] interface {
	Load(ctx context.Context, id, workingDir string) (plugin.Plugin, error)
}

// Resolver loads plugins named in configuration.
type Resolver[T any] struct {
	loader ModuleLoader[T]
	logger *slog.Logger
}

// New creates a resolver backed by loader.
func New[T any](loader ModuleLoader[T], logger *slog.Logger) *Resolver[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver[T]{loader: loader, logger: logger}
}

// Resolve derives the module identifier for name and loads it.
func (r *Resolver[T]) Resolve(ctx context.Context, name, workingDir string) (plugin.Plugin, error) {
	id := ModuleID(name)
	p, err := r.loader.Load(ctx, id, workingDir)
	if err != nil {
		if errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
		return nil, LoadFailed(id, err)
	}
	r.logger.DebugContext(ctx, "plugin resolved", "name", name, "module", id)
	return p, nil
}

// Registry holds compiled-in plugins by module identifier. Each Load
// returns a fresh instance.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]func() plugin.Plugin
}

var _ ModuleLoader[any] = (*Registry[any])(nil)

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]func() plugin.Plugin)}
}

// Register adds a plugin factory under a module identifier, replacing any
// earlier one.
func (r *Registry[T]) Register(id string, factory func() plugin.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// IDs lists registered module identifiers, sorted.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Load implements ModuleLoader.
func (r *Registry[T]) Load(_ context.Context, id, _ string) (plugin.Plugin, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, NotFound(id)
	}
	p := factory()
	if p == nil {
		return nil, fmt.Errorf("factory for %s returned nil", id)
	}
	return p, nil
}

// Chain tries loaders in order. The first loader that does not report
// ErrModuleNotFound decides the result.
type Chain[T any] []ModuleLoader[T]

var _ ModuleLoader[any] = Chain[any](nil)

// Load implements ModuleLoader.
func (c Chain[T]) Load(ctx context.Context, id, workingDir string) (plugin.Plugin, error) {
	for _, loader := range c {
		p, err := loader.Load(ctx, id, workingDir)
		if errors.Is(err, ErrModuleNotFound) {
			continue
		}
		return p, err
	}
	return nil, NotFound(id)
}
