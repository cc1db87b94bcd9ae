// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package lua

import (
	"encoding/json"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// ToLua converts a JSON-shaped Go value into a Lua value. Values of other
// types are passed through encoding/json first.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case json.Number:
		f, _ := val.Float64()
		return lua.LNumber(f)
	case []any:
		t := L.CreateTable(len(val), 0)
		for _, item := range val {
			t.Append(ToLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			t.RawSetString(k, ToLua(L, item))
		}
		return t
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return lua.LString(fmt.Sprint(val))
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return lua.LString(string(raw))
		}
		return ToLua(L, generic)
	}
}

// FromLua converts a Lua value into a JSON-shaped Go value. Tables whose
// keys are exactly 1..n become slices; other tables become maps. An empty
// table becomes an empty map.
func FromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case *lua.LTable:
		if n, ok := sequenceLength(val); ok {
			out := make([]any, n)
			for i := 1; i <= n; i++ {
				out[i-1] = FromLua(val.RawGetInt(i))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			out[tableKey(k)] = FromLua(item)
		})
		return out
	default:
		return v.String()
	}
}

// FromLuaList is FromLua for values that must be lists: an empty table
// becomes an empty slice.
func FromLuaList(v lua.LValue) ([]any, bool) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, false
	}
	if t.Len() == 0 && isEmpty(t) {
		return []any{}, true
	}
	list, ok := FromLua(t).([]any)
	return list, ok
}

func sequenceLength(t *lua.LTable) (int, bool) {
	count := 0
	sequence := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) || n < 1 {
			sequence = false
		}
	})
	if count == 0 || !sequence {
		return 0, false
	}
	if t.Len() != count {
		return 0, false
	}
	return count, true
}

func isEmpty(t *lua.LTable) bool {
	empty := true
	t.ForEach(func(lua.LValue, lua.LValue) { empty = false })
	return empty
}

func tableKey(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok && float64(n) == math.Trunc(float64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return k.String()
}
