// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package plugin_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

type fullPlugin struct{}

func (fullPlugin) Load(context.Context, plugin.Host[string]) error { return nil }

func (fullPlugin) HandleMessage(_ context.Context, msg plugin.ProductMessage[string]) (plugin.ProductMessage[string], error) {
	return msg, nil
}

func (fullPlugin) HandleError(_ context.Context, err error) error { return err }
func (fullPlugin) Start(context.Context) error                  { return nil }
func (fullPlugin) Stop(context.Context) error                   { return nil }

type startOnly struct{}

func (startOnly) Start(context.Context) error { return errors.New("boom") }

type provider struct{ hooks plugin.Hooks[string] }

func (p provider) Hooks() plugin.Hooks[string] { return p.hooks }

// Implements Start too; the provided hooks must win.
func (provider) Start(context.Context) error { return nil }

func TestHooksOf(t *testing.T) {
	tests := []struct {
		name     string
		plugin   plugin.Plugin
		expected []string
	}{
		{"all interfaces", fullPlugin{}, []string{"load", "handle_message", "handle_error", "start", "stop"}},
		{"single hook", startOnly{}, []string{"start"}},
		{"no hooks", struct{}{}, []string{}},
		{"nil plugin", nil, []string{}},
		{
			"hook provider takes precedence",
			provider{hooks: plugin.Hooks[string]{Stop: func(context.Context) error { return nil }}},
			[]string{"stop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, plugin.HooksOf[string](tt.plugin).Names())
		})
	}
}

func TestHooksOf_WrongTypeParameterIgnoresTypedHooks(t *testing.T) {
	hooks := plugin.HooksOf[int](fullPlugin{})

	assert.Nil(t, hooks.Load)
	assert.Nil(t, hooks.HandleMessage)
	assert.NotNil(t, hooks.HandleError)
	assert.NotNil(t, hooks.Start)
	assert.NotNil(t, hooks.Stop)
}

func TestHooksOf_BindsMethod(t *testing.T) {
	hooks := plugin.HooksOf[string](startOnly{})
	require.NotNil(t, hooks.Start)
	assert.EqualError(t, hooks.Start(context.Background()), "boom")
}

func TestProductMessage_PresentAndClone(t *testing.T) {
	var absent plugin.ProductMessage[string]
	assert.False(t, absent.Present())
	assert.Nil(t, absent.Clone())

	empty := plugin.ProductMessage[string]{}
	assert.True(t, empty.Present())
	assert.NotNil(t, empty.Clone())
	assert.Empty(t, empty.Clone())

	msg := plugin.ProductMessage[string]{{ID: "a"}, {ID: "b"}}
	clone := msg.Clone()
	clone[0].ID = "changed"
	assert.Equal(t, "a", msg[0].ID)
}

func TestProductStatus_JSON(t *testing.T) {
	inStock := true
	price := 12.5
	status := plugin.ProductStatus[map[string]any]{
		ID:        "sku-1",
		Source:    "shop",
		IsInStock: &inStock,
		Price:     &price,
		Data:      map[string]any{"warehouse": "north"},
	}

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"sku-1","source":"shop","isInStock":true,"price":12.5,"data":{"warehouse":"north"}}`, string(raw))

	var decoded plugin.ProductStatus[map[string]any]
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","isInStock":false}`), &decoded))
	require.NotNil(t, decoded.IsInStock)
	assert.False(t, decoded.InStock())
	assert.Nil(t, decoded.Price)
}

func TestProductStatus_InStock(t *testing.T) {
	yes, no := true, false
	assert.True(t, plugin.ProductStatus[any]{IsInStock: &yes}.InStock())
	assert.False(t, plugin.ProductStatus[any]{IsInStock: &no}.InStock())
	assert.False(t, plugin.ProductStatus[any]{}.InStock())
}
