// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package host runs product-status messages and errors through an ordered
// list of plugins and emits the surviving values to subscribers.
package host

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stockclerk/stockclerk/internal/ids"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

var tracer = otel.Tracer("stockclerk/host")

type entry[T any] struct {
	name  string
	hooks plugin.Hooks[T]
}

// Host holds loaded plugins and options and drives the pipelines.
// All methods are safe for concurrent use; separate publications are not
// serialised against each other.
type Host[T any] struct {
	mu      sync.RWMutex
	plugins []entry[T]
	options map[string]any
	logger  *slog.Logger

	messages *bus[plugin.ProductMessage[T]]
	errs     *bus[error]
}

var _ plugin.Host[any] = (*Host[any])(nil)

type settings struct {
	logger *slog.Logger
}

// Option configures a Host.
type Option func(*settings)

// WithLogger sets the logger used for pipeline diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Host with a private copy of options.
func New[T any](options map[string]any, opts ...Option) *Host[T] {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	logger := s.logger.With("component", "host")

	return &Host[T]{
		options:  cloneOptions(options),
		logger:   logger,
		messages: &bus[plugin.ProductMessage[T]]{kind: "message", logger: logger},
		errs:     &bus[error]{kind: "error", logger: logger},
	}
}

// Options returns a copy of the host options. Mutating the result never
// affects the host.
func (h *Host[T]) Options() map[string]any {
	return cloneOptions(h.options)
}

// Plugins returns the registered plugin names in load order.
func (h *Host[T]) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, len(h.plugins))
	for i, e := range h.plugins {
		names[i] = e.name
	}
	return names
}

// LoadPlugin registers p under name and, if it has a Load hook, calls it
// and waits for it. A failing Load is returned but the plugin stays
// registered.
func (h *Host[T]) LoadPlugin(ctx context.Context, name string, p plugin.Plugin) (err error) {
	hooks := plugin.HooksOf[T](p)

	h.mu.Lock()
	h.plugins = append(h.plugins, entry[T]{name: name, hooks: hooks})
	h.mu.Unlock()

	h.logger.DebugContext(ctx, "plugin registered", "plugin", name, "hooks", hooks.Names())

	if hooks.Load == nil {
		return nil
	}

	ctx, span := tracer.Start(ctx, "plugin.load",
		trace.WithAttributes(attribute.String("plugin.name", name)),
	)
	defer func() {
		endSpan(span, err)
	}()

	if err = h.runLifecycleHook(ctx, name, plugin.HookLoad, func(ctx context.Context) error {
		return hooks.Load(ctx, h)
	}); err != nil {
		h.logger.WarnContext(ctx, "plugin load failed", "plugin", name, "error", err)
	}
	return err
}

// Publish runs msg through every message handler in load order. It returns
// true when a message survives the pipeline and is emitted, whether or not
// anyone subscribed. A handler failure hands the error to the error pipeline
// and Publish returns that pipeline's result instead.
func (h *Host[T]) Publish(ctx context.Context, msg plugin.ProductMessage[T]) bool {
	publicationID := ids.NewString()
	ctx, span := tracer.Start(ctx, "host.publish",
		trace.WithAttributes(
			attribute.String("publication.id", publicationID),
			attribute.Int("message.size", len(msg)),
		),
	)
	defer span.End()

	logger := h.logger.With("publication_id", publicationID)

	if msg == nil {
		logger.DebugContext(ctx, "publish called without a message")
		recordPublication(OutcomeDropped)
		return false
	}

	current := msg
	for _, e := range h.snapshot() {
		if e.hooks.HandleMessage == nil {
			continue
		}

		started := time.Now()
		next, err := h.callMessageHook(ctx, e, current)
		recordStage(e.name, plugin.HookHandleMessage, started)

		if err != nil {
			recordPluginError(e.name, plugin.HookHandleMessage)
			recordPublication(OutcomeFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WarnContext(ctx, "message handler failed", "plugin", e.name, "error", err)
			return h.runErrorPipeline(ctx, err)
		}
		if next == nil {
			logger.DebugContext(ctx, "message dropped", "plugin", e.name)
			span.SetAttributes(attribute.String("publication.dropped_by", e.name))
			recordPublication(OutcomeDropped)
			return false
		}
		current = next
	}

	if h.messages.emit(current) {
		recordPublication(OutcomeDelivered)
	} else {
		recordPublication(OutcomeUnobserved)
		logger.DebugContext(ctx, "unobserved publication", "size", len(current))
	}
	return true
}

// ReportError runs err through the error pipeline. It returns true when an
// error survives the pipeline and is emitted, and false when a handler
// suppressed it. A nil err is treated as no error at all.
func (h *Host[T]) ReportError(ctx context.Context, err error) bool {
	ctx, span := tracer.Start(ctx, "host.report_error")
	defer span.End()

	return h.runErrorPipeline(ctx, err)
}

// runErrorPipeline always starts at the first plugin, including when the
// error came from a later plugin's message handler.
func (h *Host[T]) runErrorPipeline(ctx context.Context, err error) bool {
	if err == nil {
		recordErrorReport(OutcomeSuppressed)
		return false
	}

	current := err
	for _, e := range h.snapshot() {
		if e.hooks.HandleError == nil {
			continue
		}

		started := time.Now()
		current = h.callErrorHook(ctx, e, current)
		recordStage(e.name, plugin.HookHandleError, started)

		if current == nil {
			h.logger.DebugContext(ctx, "error suppressed", "plugin", e.name)
			recordErrorReport(OutcomeSuppressed)
			return false
		}
	}

	if h.errs.emit(current) {
		recordErrorReport(OutcomeDelivered)
	} else {
		recordErrorReport(OutcomeUnobserved)
		h.logger.WarnContext(ctx, "unobserved pipeline error", "error", current)
	}
	return true
}

// Start calls every Start hook in load order, waiting for each. The first
// failure is returned and later plugins are not started.
func (h *Host[T]) Start(ctx context.Context) error {
	return h.runLifecycle(ctx, plugin.HookStart, func(hooks plugin.Hooks[T]) func(context.Context) error {
		return hooks.Start
	})
}

// Stop calls every Stop hook in load order, waiting for each. The first
// failure is returned and later plugins are not stopped.
func (h *Host[T]) Stop(ctx context.Context) error {
	return h.runLifecycle(ctx, plugin.HookStop, func(hooks plugin.Hooks[T]) func(context.Context) error {
		return hooks.Stop
	})
}

func (h *Host[T]) runLifecycle(
	ctx context.Context,
	hook string,
	pick func(plugin.Hooks[T]) func(context.Context) error,
) (err error) {
	ctx, span := tracer.Start(ctx, "host."+hook)
	defer func() {
		endSpan(span, err)
	}()

	for _, e := range h.snapshot() {
		fn := pick(e.hooks)
		if fn == nil {
			continue
		}
		if err = h.runLifecycleHook(ctx, e.name, hook, fn); err != nil {
			h.logger.ErrorContext(ctx, "plugin lifecycle hook failed", "plugin", e.name, "hook", hook, "error", err)
			return err
		}
	}
	return nil
}

// OnMessage subscribes fn to final messages. The returned function cancels
// the subscription.
func (h *Host[T]) OnMessage(fn func(plugin.ProductMessage[T])) func() {
	return h.messages.subscribe(fn)
}

// OnError subscribes fn to final errors. The returned function cancels the
// subscription.
func (h *Host[T]) OnError(fn func(error)) func() {
	return h.errs.subscribe(fn)
}

// EmitMessage hands msg straight to the message subscribers, bypassing the
// pipeline. It reports whether any subscriber was called.
func (h *Host[T]) EmitMessage(msg plugin.ProductMessage[T]) bool {
	return h.messages.emit(msg)
}

// EmitError hands err straight to the error subscribers, bypassing the
// pipeline. It reports whether any subscriber was called.
func (h *Host[T]) EmitError(err error) bool {
	return h.errs.emit(err)
}

// Subscribers returns the number of message and error subscribers.
func (h *Host[T]) Subscribers() (messages, errs int) {
	return h.messages.len(), h.errs.len()
}

func (h *Host[T]) snapshot() []entry[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.plugins)
}

func (h *Host[T]) callMessageHook(
	ctx context.Context,
	e entry[T],
	msg plugin.ProductMessage[T],
) (out plugin.ProductMessage[T], err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out, err = nil, panicError(e.name, plugin.HookHandleMessage, recovered)
		}
	}()
	return e.hooks.HandleMessage(ctx, msg)
}

// callErrorHook returns the hook's replacement for err. A panicking hook
// replaces err with the panic.
func (h *Host[T]) callErrorHook(ctx context.Context, e entry[T], err error) (out error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			recordPluginError(e.name, plugin.HookHandleError)
			h.logger.WarnContext(ctx, "error handler panicked", "plugin", e.name, "panic", recovered)
			out = panicError(e.name, plugin.HookHandleError, recovered)
		}
	}()
	return e.hooks.HandleError(ctx, err)
}

func (h *Host[T]) runLifecycleHook(ctx context.Context, name, hook string, fn func(context.Context) error) (err error) {
	started := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = panicError(name, hook, recovered)
		}
		recordStage(name, hook, started)
		if err != nil {
			recordPluginError(name, hook)
			err = ErrLifecycle(name, hook, err)
		}
	}()
	return fn(ctx)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func cloneOptions(options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneOptions(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
