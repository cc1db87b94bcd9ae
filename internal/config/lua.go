// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	pluginlua "github.com/stockclerk/stockclerk/internal/plugin/lua"
)

// luaProvider is a koanf provider that runs a config script in the plugin
// sandbox. The script returns the config table; stockclerk.env(name)
// reads environment variables.
type luaProvider struct {
	ctx  context.Context
	path string
}

func (p *luaProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("lua config provider does not support ReadBytes")
}

func (p *luaProvider) Read() (map[string]any, error) {
	code, err := os.ReadFile(filepath.Clean(p.path))
	if err != nil {
		return nil, err
	}

	L, err := pluginlua.NewStateFactory().NewState(p.ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	mod := L.NewTable()
	L.SetField(mod, "env", L.NewFunction(luaEnv))
	L.SetGlobal(pluginlua.ModuleName, mod)

	fn, err := L.Load(bytes.NewReader(code), p.path)
	if err != nil {
		return nil, oops.In("config").Wrapf(err, "compile config script")
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, oops.In("config").Wrapf(err, "run config script")
	}
	ret := L.Get(-1)
	L.Pop(1)

	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.In("config").Errorf("config script must return a table, got %s", ret.Type().String())
	}
	raw, ok := pluginlua.FromLua(table).(map[string]any)
	if !ok {
		return nil, oops.In("config").Errorf("config script must return a table with named fields")
	}
	// An empty table converts to a map; plugins is always a list.
	if plugins, ok := raw["plugins"].(map[string]any); ok && len(plugins) == 0 {
		raw["plugins"] = []any{}
	}
	return raw, nil
}

// luaEnv implements stockclerk.env(name): the variable's value, or nil.
func luaEnv(L *lua.LState) int {
	name := L.CheckString(1)
	if v, ok := os.LookupEnv(name); ok {
		L.Push(lua.LString(v))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}
