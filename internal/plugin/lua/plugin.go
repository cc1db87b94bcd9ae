// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package lua

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Error codes for scripted plugins.
const (
	CodeScriptFailed = "LUA_SCRIPT_FAILED"
	CodeBadValue     = "LUA_BAD_VALUE"
)

var errClosed = errors.New("lua plugin is closed")

// reentryKey marks a context as already holding a plugin's state lock.
type reentryKey struct{ owner any }

// Plugin is a scripted plugin with a persistent interpreter state. Hook
// globals are looked up on every call, so a script may define or replace
// them at runtime; a missing global behaves as an absent hook.
//
// Calls are serialised on the state. A hook that calls back into the host
// (stockclerk.publish) may re-enter this plugin's hooks on the same call
// chain without deadlocking.
type Plugin[T any] struct {
	name string
	mu   sync.Mutex
	L    *lua.LState
	mod  *lua.LTable

	host   plugin.Host[T]
	closed bool
}

var _ plugin.HookProvider[any] = (*Plugin[any])(nil)

// Name returns the plugin name used for capability grants and logs.
func (p *Plugin[T]) Name() string {
	return p.name
}

// Hooks exposes the script's hooks to the host.
func (p *Plugin[T]) Hooks() plugin.Hooks[T] {
	return plugin.Hooks[T]{
		Load:          p.load,
		HandleMessage: p.handleMessage,
		HandleError:   p.handleError,
		Start:         p.start,
		Stop:          p.stop,
	}
}

// Close releases the interpreter. Later hook calls fail.
func (p *Plugin[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}

func (p *Plugin[T]) load(ctx context.Context, host plugin.Host[T]) error {
	return p.with(ctx, func(_ context.Context, L *lua.LState) error {
		p.host = host
		_, _, err := p.callGlobal(L, plugin.HookLoad, p.mod)
		return err
	})
}

func (p *Plugin[T]) handleMessage(ctx context.Context, msg plugin.ProductMessage[T]) (out plugin.ProductMessage[T], err error) {
	err = p.with(ctx, func(_ context.Context, L *lua.LState) error {
		arg, err := messageToLua(L, msg)
		if err != nil {
			return p.valueError(plugin.HookHandleMessage, err)
		}
		ret, found, err := p.callGlobal(L, plugin.HookHandleMessage, arg)
		if err != nil {
			return err
		}
		if !found {
			out = msg
			return nil
		}
		out, err = messageFromLua[T](ret)
		if err != nil {
			return p.valueError(plugin.HookHandleMessage, err)
		}
		return nil
	})
	return out, err
}

func (p *Plugin[T]) handleError(ctx context.Context, in error) error {
	var out error
	err := p.with(ctx, func(_ context.Context, L *lua.LState) error {
		ret, found, err := p.callGlobal(L, plugin.HookHandleError, lua.LString(in.Error()))
		if err != nil {
			return err
		}
		if !found {
			out = in
			return nil
		}
		out = p.errorFromLua(in, ret)
		return nil
	})
	if err != nil {
		return err
	}
	return out
}

func (p *Plugin[T]) start(ctx context.Context) error {
	return p.with(ctx, func(_ context.Context, L *lua.LState) error {
		_, _, err := p.callGlobal(L, plugin.HookStart)
		return err
	})
}

func (p *Plugin[T]) stop(ctx context.Context) error {
	return p.with(ctx, func(_ context.Context, L *lua.LState) error {
		_, _, err := p.callGlobal(L, plugin.HookStop)
		return err
	})
}

// with runs fn against the interpreter, holding the state lock unless ctx
// shows the caller already holds it.
func (p *Plugin[T]) with(ctx context.Context, fn func(context.Context, *lua.LState) error) error {
	key := reentryKey{owner: p}
	if ctx.Value(key) == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		ctx = context.WithValue(ctx, key, struct{}{})
	}
	if p.closed {
		return oops.In("lua").With("plugin", p.name).Wrap(errClosed)
	}

	prev := p.L.Context()
	p.L.SetContext(ctx)
	defer func() {
		if prev != nil {
			p.L.SetContext(prev)
		} else {
			p.L.RemoveContext()
		}
	}()

	return fn(ctx, p.L)
}

// callGlobal calls the global function hook with args and returns its first
// result. found is false when the script does not define hook.
func (p *Plugin[T]) callGlobal(L *lua.LState, hook string, args ...lua.LValue) (ret lua.LValue, found bool, err error) {
	fn := L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, false, nil
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, true, oops.In("lua").
			Code(CodeScriptFailed).
			With("plugin", p.name).
			With("hook", hook).
			Wrap(err)
	}
	ret = L.Get(-1)
	L.Pop(1)
	return ret, true, nil
}

// errorFromLua maps a handle_error result: nil suppresses, the unchanged
// message keeps the original error, anything else replaces it.
func (p *Plugin[T]) errorFromLua(in error, ret lua.LValue) error {
	switch v := ret.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		if string(v) == in.Error() {
			return in
		}
		return oops.In("lua").With("plugin", p.name).Errorf("%s", string(v))
	case *lua.LTable:
		if msg, ok := v.RawGetString("message").(lua.LString); ok {
			return oops.In("lua").With("plugin", p.name).With("details", FromLua(v)).Errorf("%s", string(msg))
		}
		return oops.In("lua").With("plugin", p.name).With("details", FromLua(v)).Errorf("error reported by %s", p.name)
	default:
		return oops.In("lua").With("plugin", p.name).Errorf("%s", ret.String())
	}
}

func (p *Plugin[T]) valueError(hook string, err error) error {
	return oops.In("lua").
		Code(CodeBadValue).
		With("plugin", p.name).
		With("hook", hook).
		Wrap(err)
}

// publish implements hostAPI.
func (p *Plugin[T]) publish(ctx context.Context, _ *lua.LState, v lua.LValue) (bool, error) {
	if p.host == nil {
		return false, errors.New("host not attached: publish called before load")
	}
	msg, err := messageFromLua[T](v)
	if err != nil {
		return false, err
	}
	return p.host.Publish(ctx, msg), nil
}

// reportError implements hostAPI.
func (p *Plugin[T]) reportError(ctx context.Context, message string) (bool, error) {
	if p.host == nil {
		return false, errors.New("host not attached: report_error called before load")
	}
	return p.host.ReportError(ctx, oops.In("lua").With("plugin", p.name).Errorf("%s", message)), nil
}

// option implements hostAPI.
func (p *Plugin[T]) option(key string) (any, bool, error) {
	if p.host == nil {
		return nil, false, errors.New("host not attached: option called before load")
	}
	v, ok := plugin.Option(p.host.Options(), key)
	return v, ok, nil
}

func messageToLua[T any](L *lua.LState, msg plugin.ProductMessage[T]) (lua.LValue, error) {
	if msg == nil {
		return lua.LNil, nil
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return lua.LNil, oops.Wrapf(err, "encode message")
	}
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return lua.LNil, oops.Wrapf(err, "decode message")
	}
	if generic == nil {
		generic = []any{}
	}
	return ToLua(L, generic), nil
}

func messageFromLua[T any](v lua.LValue) (plugin.ProductMessage[T], error) {
	if v == lua.LNil {
		return nil, nil
	}
	list, ok := FromLuaList(v)
	if !ok {
		return nil, oops.Errorf("message must be a list of product statuses, got %s", v.Type().String())
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, oops.Wrapf(err, "encode message")
	}
	msg := plugin.ProductMessage[T]{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, oops.Wrapf(err, "decode message")
	}
	return msg, nil
}
