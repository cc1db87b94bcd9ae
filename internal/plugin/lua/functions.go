// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package lua

import (
	"context"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/stockclerk/stockclerk/internal/ids"
	"github.com/stockclerk/stockclerk/internal/plugin/capability"
)

// ModuleName is the global table through which scripts reach the host.
const ModuleName = "stockclerk"

// hostAPI is what the stockclerk module calls back into. Plugin implements it.
type hostAPI interface {
	publish(ctx context.Context, L *lua.LState, msg lua.LValue) (bool, error)
	reportError(ctx context.Context, message string) (bool, error)
	option(key string) (any, bool, error)
}

// Functions builds the stockclerk module for scripted plugins. Calls that
// reach the host are gated by the capability enforcer.
type Functions struct {
	enforcer *capability.Enforcer
	logger   *slog.Logger
}

// NewFunctions creates host functions checked against enforcer.
func NewFunctions(enforcer *capability.Enforcer, logger *slog.Logger) *Functions {
	if enforcer == nil {
		enforcer = capability.NewEnforcer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Functions{enforcer: enforcer, logger: logger}
}

// Register installs the stockclerk module for pluginName into L.
func (f *Functions) Register(L *lua.LState, pluginName string, api hostAPI) *lua.LTable {
	mod := L.NewTable()

	L.SetField(mod, "log", L.NewFunction(f.logFn(pluginName)))
	L.SetField(mod, "new_id", L.NewFunction(newIDFn))

	L.SetField(mod, "publish", L.NewFunction(f.wrap(pluginName, capability.HostPublish, publishFn(api))))
	L.SetField(mod, "report_error", L.NewFunction(f.wrap(pluginName, capability.HostReportError, reportErrorFn(api))))
	L.SetField(mod, "option", L.NewFunction(f.wrap(pluginName, capability.HostOptions, optionFn(api))))

	L.SetGlobal(ModuleName, mod)
	return mod
}

func (f *Functions) wrap(plugin, capName string, fn lua.LGFunction) lua.LGFunction {
	return func(L *lua.LState) int {
		if !f.enforcer.Check(plugin, capName) {
			L.RaiseError("capability denied: %s requires %s", plugin, capName)
			return 0
		}
		return fn(L)
	}
}

func (f *Functions) logFn(pluginName string) lua.LGFunction {
	logger := f.logger.With("plugin", pluginName)
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)
		ctx := stateContext(L)

		switch level {
		case "debug":
			logger.DebugContext(ctx, message)
		case "warn":
			logger.WarnContext(ctx, message)
		case "error":
			logger.ErrorContext(ctx, message)
		default:
			logger.InfoContext(ctx, message)
		}
		return 0
	}
}

func newIDFn(L *lua.LState) int {
	L.Push(lua.LString(ids.NewString()))
	return 1
}

func publishFn(api hostAPI) lua.LGFunction {
	return func(L *lua.LState) int {
		delivered, err := api.publish(stateContext(L), L, L.Get(1))
		if err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LBool(delivered))
	}
}

func reportErrorFn(api hostAPI) lua.LGFunction {
	return func(L *lua.LState) int {
		message := L.CheckString(1)
		delivered, err := api.reportError(stateContext(L), message)
		if err != nil {
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LBool(delivered))
	}
}

func optionFn(api hostAPI) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		value, found, err := api.option(key)
		if err != nil {
			return pushError(L, err.Error())
		}
		if !found {
			return pushSuccess(L, lua.LNil)
		}
		return pushSuccess(L, ToLua(L, value))
	}
}

// pushError pushes nil followed by an error string and returns 2.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes value followed by nil (no error) and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

func stateContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
