// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package plugin

import "context"

// Hooks is the function-valued form of the hook interfaces. Runtime adapters
// (Lua, out-of-process) expose their hooks this way because which hooks
// exist is only known after the module is opened. A nil field means the
// hook is absent.
type Hooks[T any] struct {
	Load          func(ctx context.Context, host Host[T]) error
	HandleMessage func(ctx context.Context, msg ProductMessage[T]) (ProductMessage[T], error)
	HandleError   func(ctx context.Context, err error) error
	Start         func(ctx context.Context) error
	Stop          func(ctx context.Context) error
}

// HookProvider is implemented by plugins that describe their hooks as a
// Hooks value rather than by implementing the hook interfaces.
type HookProvider[T any] interface {
	Hooks() Hooks[T]
}

// HooksOf returns the hooks p implements. A HookProvider takes precedence
// over the individual hook interfaces.
func HooksOf[T any](p Plugin) Hooks[T] {
	if hp, ok := p.(HookProvider[T]); ok {
		return hp.Hooks()
	}

	var h Hooks[T]
	if l, ok := p.(Loader[T]); ok {
		h.Load = l.Load
	}
	if mh, ok := p.(MessageHandler[T]); ok {
		h.HandleMessage = mh.HandleMessage
	}
	if eh, ok := p.(ErrorHandler); ok {
		h.HandleError = eh.HandleError
	}
	if s, ok := p.(Starter); ok {
		h.Start = s.Start
	}
	if s, ok := p.(Stopper); ok {
		h.Stop = s.Stop
	}
	return h
}

// Names lists the hooks present in h, in lifecycle order.
func (h Hooks[T]) Names() []string {
	names := make([]string, 0, 5)
	if h.Load != nil {
		names = append(names, HookLoad)
	}
	if h.HandleMessage != nil {
		names = append(names, HookHandleMessage)
	}
	if h.HandleError != nil {
		names = append(names, HookHandleError)
	}
	if h.Start != nil {
		names = append(names, HookStart)
	}
	if h.Stop != nil {
		names = append(names, HookStop)
	}
	return names
}

// Hook names as used by out-of-process and scripted plugins.
const (
	HookLoad          = "load"
	HookHandleMessage = "handle_message"
	HookHandleError   = "handle_error"
	HookStart         = "start"
	HookStop          = "stop"
)
