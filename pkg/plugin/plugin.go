// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package plugin defines the public API shared by the stockclerk host and
// its plugins: the message types that flow through the pipeline and the
// optional hooks a plugin may implement.
package plugin

import "context"

// ProductStatus is the status of a single product as reported by a plugin.
// Every field is optional. Data is an opaque extension payload whose shape
// is agreed between plugins; the host never inspects it.
type ProductStatus[T any] struct {
	ID           string   `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string   `json:"source,omitempty" yaml:"source,omitempty"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	IsInStock    *bool    `json:"isInStock,omitempty" yaml:"isInStock,omitempty"`
	Price        *float64 `json:"price,omitempty" yaml:"price,omitempty"`
	Currency     string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	ProductURL   string   `json:"productURL,omitempty" yaml:"productURL,omitempty"`
	AddToCartURL string   `json:"addToCartURL,omitempty" yaml:"addToCartURL,omitempty"`
	Data         T        `json:"data,omitempty" yaml:"data,omitempty"`
}

// InStock reports whether the status is known to be in stock.
func (s ProductStatus[T]) InStock() bool {
	return s.IsInStock != nil && *s.IsInStock
}

// ProductMessage is an ordered batch of product statuses.
//
// A nil ProductMessage means "no message" and stops pipeline propagation.
// An empty, non-nil ProductMessage is a present message with no entries.
type ProductMessage[T any] []ProductStatus[T]

// Present reports whether m is a message at all.
func (m ProductMessage[T]) Present() bool {
	return m != nil
}

// Clone returns a shallow copy of m, preserving the nil/empty distinction.
func (m ProductMessage[T]) Clone() ProductMessage[T] {
	if m == nil {
		return nil
	}
	out := make(ProductMessage[T], len(m))
	copy(out, m)
	return out
}

// Plugin is any value registered with a host. The host probes it for the
// hook interfaces below; a plugin implements only the hooks it needs.
type Plugin = any

// Host is the surface a plugin receives in its Load hook.
type Host[T any] interface {
	// Publish runs msg through the message pipeline. It returns false when
	// a plugin dropped the message or suppressed its failure.
	Publish(ctx context.Context, msg ProductMessage[T]) bool

	// ReportError runs err through the error pipeline. It returns false
	// when a plugin suppressed the error.
	ReportError(ctx context.Context, err error) bool

	// Options returns a copy of the host options.
	Options() map[string]any
}

// Loader is implemented by plugins that want a handle on the host.
type Loader[T any] interface {
	Load(ctx context.Context, host Host[T]) error
}

// MessageHandler transforms, replaces, or drops (by returning nil) a message.
type MessageHandler[T any] interface {
	HandleMessage(ctx context.Context, msg ProductMessage[T]) (ProductMessage[T], error)
}

// ErrorHandler transforms or suppresses (by returning nil) an error.
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
}

// Starter is implemented by plugins with work to begin on host start.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by plugins with work to end on host stop.
type Stopper interface {
	Stop(ctx context.Context) error
}
