// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package lua_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stockclerk/stockclerk/internal/host"
	"github.com/stockclerk/stockclerk/internal/plugin/capability"
	pluginlua "github.com/stockclerk/stockclerk/internal/plugin/lua"
	"github.com/stockclerk/stockclerk/pkg/errutil"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

type message = plugin.ProductMessage[map[string]any]

func writeScript(t *testing.T, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(code), 0o600))
	return path
}

func openScript(t *testing.T, code string, grants ...string) (*pluginlua.Runtime, *pluginlua.Plugin[map[string]any]) {
	t.Helper()
	rt := pluginlua.NewRuntime()
	t.Cleanup(func() { _ = rt.Close() })

	p, err := pluginlua.Open[map[string]any](context.Background(), rt, pluginlua.Module{
		Name:   "script",
		Path:   writeScript(t, code),
		Grants: grants,
	})
	require.NoError(t, err)
	return rt, p
}

func loadIntoHost(t *testing.T, p plugin.Plugin, options map[string]any) *host.Host[map[string]any] {
	t.Helper()
	h := host.New[map[string]any](options)
	require.NoError(t, h.LoadPlugin(context.Background(), "script", p))
	return h
}

func boolPtr(b bool) *bool { return &b }

func TestPlugin_MissingHooksActAsAbsent(t *testing.T) {
	_, p := openScript(t, `-- no hooks at all`)
	hooks := p.Hooks()
	ctx := context.Background()

	in := message{{ID: "sku"}}
	out, err := hooks.HandleMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	orig := errors.New("original")
	assert.Same(t, orig, hooks.HandleError(ctx, orig))
	assert.NoError(t, hooks.Start(ctx))
	assert.NoError(t, hooks.Stop(ctx))
}

func TestPlugin_HandleMessageFiltersAndDrops(t *testing.T) {
	_, p := openScript(t, `
		function handle_message(msg)
			local kept = {}
			for _, status in ipairs(msg) do
				if status.isInStock then
					status.source = "lua"
					table.insert(kept, status)
				end
			end
			if #kept == 0 then
				return nil
			end
			return kept
		end
	`)
	hooks := p.Hooks()
	ctx := context.Background()

	out, err := hooks.HandleMessage(ctx, message{
		{ID: "a", IsInStock: boolPtr(true), Data: map[string]any{"shelf": "3"}},
		{ID: "b", IsInStock: boolPtr(false)},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "lua", out[0].Source)
	assert.Equal(t, map[string]any{"shelf": "3"}, out[0].Data)

	out, err = hooks.HandleMessage(ctx, message{{ID: "b", IsInStock: boolPtr(false)}})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestPlugin_HandleMessageEmptyStaysPresent(t *testing.T) {
	_, p := openScript(t, `function handle_message(msg) return msg end`)

	out, err := p.Hooks().HandleMessage(context.Background(), message{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestPlugin_HandleMessageBadReturn(t *testing.T) {
	_, p := openScript(t, `function handle_message(msg) return 42 end`)

	_, err := p.Hooks().HandleMessage(context.Background(), message{{ID: "a"}})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginlua.CodeBadValue)
}

func TestPlugin_HandleError(t *testing.T) {
	_, p := openScript(t, `
		function handle_error(err)
			if err == "ignore me" then return nil end
			if err == "keep me" then return err end
			if err == "detail" then return { message = "detailed", status = 503 } end
			return "wrapped: " .. err
		end
	`)
	hooks := p.Hooks()
	ctx := context.Background()

	assert.NoError(t, hooks.HandleError(ctx, errors.New("ignore me")))

	keep := errors.New("keep me")
	assert.Same(t, keep, hooks.HandleError(ctx, keep))

	replaced := hooks.HandleError(ctx, errors.New("boom"))
	require.Error(t, replaced)
	assert.Equal(t, "wrapped: boom", replaced.Error())

	detailed := hooks.HandleError(ctx, errors.New("detail"))
	require.Error(t, detailed)
	assert.Equal(t, "detailed", detailed.Error())
	errutil.AssertErrorContext(t, detailed, "details", map[string]any{"message": "detailed", "status": 503.0})
}

func TestPlugin_RuntimeErrorInHandlerReachesErrorPipeline(t *testing.T) {
	_, p := openScript(t, `function handle_message(msg) error("inventory offline") end`)
	h := loadIntoHost(t, p, nil)

	var got []error
	h.OnError(func(err error) { got = append(got, err) })

	assert.True(t, h.Publish(context.Background(), message{{ID: "a"}}))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "inventory offline")
	errutil.AssertErrorCode(t, got[0], pluginlua.CodeScriptFailed)
	errutil.AssertErrorContext(t, got[0], "hook", "handle_message")
}

func TestPlugin_StartPublishesThroughOwnHandler(t *testing.T) {
	_, p := openScript(t, `
		local host
		function load(h) host = h end
		function start()
			local delivered, err = host.publish({ { id = "from-start" } })
			assert(err == nil, err)
			assert(delivered == true, "not delivered")
		end
		function handle_message(msg)
			msg[1].source = "lua"
			return msg
		end
	`, capability.HostPublish)
	h := loadIntoHost(t, p, nil)

	var got []message
	h.OnMessage(func(m message) { got = append(got, m) })

	require.NoError(t, h.Start(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "from-start", got[0][0].ID)
	assert.Equal(t, "lua", got[0][0].Source)
}

func TestPlugin_ReportErrorFromScript(t *testing.T) {
	_, p := openScript(t, `
		function start()
			stockclerk.report_error("sensor unplugged")
		end
	`, capability.AllHost)
	h := loadIntoHost(t, p, nil)

	var got []error
	h.OnError(func(err error) { got = append(got, err) })

	require.NoError(t, h.Start(context.Background()))
	require.Len(t, got, 1)
	assert.Equal(t, "sensor unplugged", got[0].Error())
}

func TestPlugin_OptionLookup(t *testing.T) {
	_, p := openScript(t, `
		threshold = nil
		missing = "unset"
		function load(h)
			threshold = h.option("pricefloor.threshold")
			missing = h.option("pricefloor.absent")
		end
		function handle_message(msg)
			msg[1].name = tostring(threshold) .. "/" .. tostring(missing)
			return msg
		end
	`, capability.HostOptions)
	h := loadIntoHost(t, p, map[string]any{"pricefloor": map[string]any{"threshold": 5.0}})

	var got []message
	h.OnMessage(func(m message) { got = append(got, m) })

	h.Publish(context.Background(), message{{ID: "a"}})
	require.Len(t, got, 1)
	assert.Equal(t, "5/nil", got[0][0].Name)
}

func TestPlugin_CapabilityDenied(t *testing.T) {
	_, p := openScript(t, `
		function start()
			stockclerk.option("anything")
		end
	`, capability.HostPublish)
	h := loadIntoHost(t, p, nil)

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability denied")
}

func TestPlugin_PublishBeforeLoad(t *testing.T) {
	_, p := openScript(t, `
		result = nil
		function start()
			local ok, err = stockclerk.publish({})
			result = err
		end
	`, capability.AllHost)

	require.NoError(t, p.Hooks().Start(context.Background()))
}

func TestPlugin_NewIDAndLog(t *testing.T) {
	_, p := openScript(t, `
		function handle_message(msg)
			stockclerk.log("debug", "tagging message")
			msg[1].id = stockclerk.new_id()
			return msg
		end
	`)

	out, err := p.Hooks().HandleMessage(context.Background(), message{{ID: "a"}})
	require.NoError(t, err)
	assert.Len(t, out[0].ID, 26)
}

func TestOpen_Failures(t *testing.T) {
	rt := pluginlua.NewRuntime()
	defer func() { _ = rt.Close() }()
	ctx := context.Background()

	_, err := pluginlua.Open[any](ctx, rt, pluginlua.Module{Name: "missing", Path: "/does/not/exist.lua"})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "plugin", "missing")

	_, err = pluginlua.Open[any](ctx, rt, pluginlua.Module{Name: "syntax", Path: writeScript(t, `function (`)})
	require.Error(t, err)
	assert.Nil(t, rt.Enforcer().Grants("syntax"))

	_, err = pluginlua.Open[any](ctx, rt, pluginlua.Module{Name: "sandbox", Path: writeScript(t, `os.exit(1)`)})
	require.Error(t, err)

	_, err = pluginlua.Open[any](ctx, rt, pluginlua.Module{Name: "grants", Path: writeScript(t, ``), Grants: []string{""}})
	require.Error(t, err)
}

func TestRuntime_CloseInvalidatesPlugins(t *testing.T) {
	rt, p := openScript(t, `function start() end`)
	require.NoError(t, rt.Close())

	require.Error(t, p.Hooks().Start(context.Background()))

	_, err := pluginlua.Open[any](context.Background(), rt, pluginlua.Module{Name: "late", Path: writeScript(t, ``)})
	require.Error(t, err)
}

func TestPlugin_ConcurrentPublications(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, p := openScript(t, `
		count = 0
		function handle_message(msg)
			count = count + 1
			msg[1].name = tostring(count)
			return msg
		end
	`)
	h := loadIntoHost(t, p, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	h.OnMessage(func(m message) {
		mu.Lock()
		seen[m[0].Name] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish(context.Background(), message{{ID: "a"}})
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 25, "every call observed a distinct counter value")
}
