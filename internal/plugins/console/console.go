// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package console implements a plugin that logs every message and error it
// sees and passes them on unchanged.
package console

import (
	"context"
	"log/slog"

	"github.com/stockclerk/stockclerk/pkg/errutil"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Plugin logs pipeline traffic.
type Plugin[T any] struct {
	logger *slog.Logger
}

var (
	_ plugin.MessageHandler[any] = (*Plugin[any])(nil)
	_ plugin.ErrorHandler        = (*Plugin[any])(nil)
)

// New creates a console plugin. A nil logger means slog.Default().
func New[T any](logger *slog.Logger) *Plugin[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin[T]{logger: logger}
}

// HandleMessage logs msg and each of its statuses.
func (p *Plugin[T]) HandleMessage(ctx context.Context, msg plugin.ProductMessage[T]) (plugin.ProductMessage[T], error) {
	inStock := 0
	for _, s := range msg {
		if s.InStock() {
			inStock++
		}
	}
	p.logger.InfoContext(ctx, "product message", "statuses", len(msg), "in_stock", inStock)

	for _, s := range msg {
		attrs := []any{"id", s.ID, "source", s.Source, "name", s.Name}
		if s.IsInStock != nil {
			attrs = append(attrs, "in_stock", *s.IsInStock)
		}
		if s.Price != nil {
			attrs = append(attrs, "price", *s.Price, "currency", s.Currency)
		}
		if s.ProductURL != "" {
			attrs = append(attrs, "url", s.ProductURL)
		}
		p.logger.InfoContext(ctx, "product status", attrs...)
	}
	return msg, nil
}

// HandleError logs err with its oops context.
func (p *Plugin[T]) HandleError(ctx context.Context, err error) error {
	errutil.LogErrorContext(ctx, p.logger, "pipeline error", err)
	return err
}
