// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package instock implements a plugin that filters out products reported
// as out of stock.
package instock

import (
	"context"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// OptionKeepEmpty keeps a message whose statuses were all filtered out.
const OptionKeepEmpty = "instock.keepEmpty"

// Plugin drops statuses whose IsInStock is false. Statuses with unknown
// stock are kept.
type Plugin[T any] struct {
	keepEmpty bool
}

var (
	_ plugin.Loader[any]         = (*Plugin[any])(nil)
	_ plugin.MessageHandler[any] = (*Plugin[any])(nil)
)

// New creates an instock filter.
func New[T any]() *Plugin[T] {
	return &Plugin[T]{}
}

// Load reads instock.keepEmpty from the host options.
func (p *Plugin[T]) Load(_ context.Context, host plugin.Host[T]) error {
	p.keepEmpty = plugin.OptionBool(host.Options(), OptionKeepEmpty, false)
	return nil
}

// HandleMessage filters msg. When nothing is left the message is dropped,
// unless keepEmpty is set.
func (p *Plugin[T]) HandleMessage(_ context.Context, msg plugin.ProductMessage[T]) (plugin.ProductMessage[T], error) {
	out := make(plugin.ProductMessage[T], 0, len(msg))
	for _, s := range msg {
		if s.IsInStock != nil && !*s.IsInStock {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && !p.keepEmpty {
		return nil, nil
	}
	return out, nil
}
