// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package goplugin

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/samber/oops"

	"github.com/stockclerk/stockclerk/pkg/plugin"
	"github.com/stockclerk/stockclerk/pkg/pluginsdk"
)

// CodeBadMessage marks messages that could not cross the process boundary.
const CodeBadMessage = "PLUGIN_BAD_MESSAGE"

// Plugin is a running binary plugin. Messages cross the process boundary
// as JSON and are decoded back into T.
type Plugin[T any] struct {
	rt    *Runtime
	name  string
	stub  *pluginsdk.Client
	hooks []string
}

var _ plugin.HookProvider[any] = (*Plugin[any])(nil)

func newPlugin[T any](rt *Runtime, name string, stub *pluginsdk.Client, hooks []string) *Plugin[T] {
	return &Plugin[T]{rt: rt, name: name, stub: stub, hooks: hooks}
}

// Name returns the plugin name.
func (p *Plugin[T]) Name() string {
	return p.name
}

// Close kills the plugin process.
func (p *Plugin[T]) Close() {
	p.rt.kill(p.name)
}

// Hooks exposes the hooks the plugin process reported.
func (p *Plugin[T]) Hooks() plugin.Hooks[T] {
	var h plugin.Hooks[T]
	if p.has(plugin.HookLoad) {
		h.Load = p.load
	}
	if p.has(plugin.HookHandleMessage) {
		h.HandleMessage = p.handleMessage
	}
	if p.has(plugin.HookHandleError) {
		h.HandleError = p.handleError
	}
	if p.has(plugin.HookStart) {
		h.Start = p.stub.Start
	}
	if p.has(plugin.HookStop) {
		h.Stop = p.stub.Stop
	}
	return h
}

func (p *Plugin[T]) has(hook string) bool {
	return slices.Contains(p.hooks, hook)
}

func (p *Plugin[T]) load(ctx context.Context, host plugin.Host[T]) error {
	return p.stub.Load(ctx, &jsonHost[T]{name: p.name, host: host, rt: p.rt})
}

func (p *Plugin[T]) handleMessage(ctx context.Context, msg plugin.ProductMessage[T]) (plugin.ProductMessage[T], error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, p.badMessage(err, "encode message")
	}
	out, err := p.stub.HandleMessage(ctx, raw)
	if err != nil {
		return nil, err
	}
	decoded, err := decode[T](out)
	if err != nil {
		return nil, p.badMessage(err, "decode message")
	}
	return decoded, nil
}

// handleError keeps the original error when the plugin returns its text
// unchanged, so identity survives the round trip.
func (p *Plugin[T]) handleError(ctx context.Context, in error) error {
	result, suppressed, err := p.stub.HandleError(ctx, in.Error())
	if err != nil {
		return err
	}
	if suppressed {
		return nil
	}
	if result == in.Error() {
		return in
	}
	return oops.In("goplugin").With("plugin", p.name).Errorf("%s", result)
}

func (p *Plugin[T]) badMessage(err error, msg string) error {
	return oops.In("goplugin").Code(CodeBadMessage).With("plugin", p.name).Wrapf(err, "%s", msg)
}

// decode reads a JSON message into T, keeping null distinct from [].
func decode[T any](raw json.RawMessage) (plugin.ProductMessage[T], error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var msg plugin.ProductMessage[T]
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// jsonHost presents a typed host to the plugin process.
type jsonHost[T any] struct {
	name string
	host plugin.Host[T]
	rt   *Runtime
}

var _ pluginsdk.Host = (*jsonHost[any])(nil)

func (h *jsonHost[T]) Publish(ctx context.Context, msg pluginsdk.Message) bool {
	raw, err := json.Marshal(msg)
	if err != nil {
		h.rt.logger.WarnContext(ctx, "dropping unencodable message from plugin", "plugin", h.name, "error", err)
		return false
	}
	typed, err := decode[T](raw)
	if err != nil {
		h.rt.logger.WarnContext(ctx, "dropping undecodable message from plugin", "plugin", h.name, "error", err)
		return false
	}
	return h.host.Publish(ctx, typed)
}

func (h *jsonHost[T]) ReportError(ctx context.Context, err error) bool {
	return h.host.ReportError(ctx, oops.In("goplugin").With("plugin", h.name).Wrap(err))
}

func (h *jsonHost[T]) Options() map[string]any {
	return h.host.Options()
}
