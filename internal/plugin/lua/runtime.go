// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/stockclerk/stockclerk/internal/plugin/capability"
)

// Module identifies a script to open.
type Module struct {
	// Name keys capability grants and logs; it must be unique per runtime.
	Name string
	// Path is the entry script.
	Path string
	// Grants are capability patterns (see package capability).
	Grants []string
}

// Runtime opens scripted plugins and owns their interpreter states.
type Runtime struct {
	factory   *StateFactory
	enforcer  *capability.Enforcer
	functions *Functions
	logger    *slog.Logger

	mu      sync.Mutex
	closers []func()
	closed  bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLogger sets the logger used by stockclerk.log and diagnostics.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithEnforcer shares a capability enforcer with the runtime.
func WithEnforcer(enforcer *capability.Enforcer) RuntimeOption {
	return func(rt *Runtime) {
		if enforcer != nil {
			rt.enforcer = enforcer
		}
	}
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		factory:  NewStateFactory(),
		enforcer: capability.NewEnforcer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger = rt.logger.With("runtime", "lua")
	rt.functions = NewFunctions(rt.enforcer, rt.logger)
	return rt
}

// Enforcer returns the runtime's capability enforcer.
func (rt *Runtime) Enforcer() *capability.Enforcer {
	return rt.enforcer
}

// Close closes every plugin opened by the runtime.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	closers := rt.closers
	rt.closers = nil
	rt.closed = true
	rt.mu.Unlock()

	for _, closeFn := range closers {
		closeFn()
	}
	return nil
}

// Open reads and runs the module's script in a new sandboxed state and
// returns it as a plugin. Top-level script code runs once, here.
func Open[T any](ctx context.Context, rt *Runtime, mod Module) (*Plugin[T], error) {
	errb := oops.In("lua").With("plugin", mod.Name).With("path", mod.Path)

	rt.mu.Lock()
	closed := rt.closed
	rt.mu.Unlock()
	if closed {
		return nil, errb.Errorf("lua runtime is closed")
	}

	code, err := os.ReadFile(filepath.Clean(mod.Path))
	if err != nil {
		return nil, errb.Hint("failed to read entry file").Wrap(err)
	}

	if err := rt.enforcer.SetGrants(mod.Name, mod.Grants); err != nil {
		return nil, errb.Wrap(err)
	}

	// The state outlives ctx; each hook call binds its own context.
	L, err := rt.factory.NewState(context.Background())
	if err != nil {
		return nil, errb.Wrap(err)
	}

	p := &Plugin[T]{name: mod.Name, L: L}
	p.mod = rt.functions.Register(L, mod.Name, p)

	if err := p.with(ctx, func(_ context.Context, L *lua.LState) error {
		return L.DoString(string(code))
	}); err != nil {
		L.Close()
		rt.enforcer.RemoveGrants(mod.Name)
		return nil, errb.Code(CodeScriptFailed).Hint("script failed to run").Wrap(err)
	}

	rt.mu.Lock()
	rt.closers = append(rt.closers, p.Close)
	rt.mu.Unlock()

	rt.logger.DebugContext(ctx, "lua plugin opened", "plugin", mod.Name, "path", mod.Path)
	return p, nil
}
