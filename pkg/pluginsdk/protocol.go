// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package pluginsdk

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content subtype both sides use. Messages carry
// JSON so the extension data reaches plugins unchanged.
const codecName = "json"

const (
	pluginService = "stockclerk.plugin.v1.Plugin"
	hostService   = "stockclerk.plugin.v1.Host"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// Request is the envelope for every call in either direction.
type Request struct {
	// Message is a JSON product message; "null" is an absent message.
	Message json.RawMessage `json:"message,omitempty"`
	// Error is the error text for HandleError and ReportError.
	Error string `json:"error,omitempty"`
	// BrokerID names the broker connection serving host callbacks.
	BrokerID uint32 `json:"brokerId,omitempty"`
}

// Response is the reply envelope for every call in either direction.
type Response struct {
	Message json.RawMessage `json:"message,omitempty"`
	// Failure carries a hook's error. Transport failures use gRPC status.
	Failure string `json:"failure,omitempty"`
	// Error is HandleError's result; Suppressed means it returned nil.
	Error      string         `json:"error,omitempty"`
	Suppressed bool           `json:"suppressed,omitempty"`
	Hooks      []string       `json:"hooks,omitempty"`
	Emitted    bool           `json:"emitted,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// pluginServer is served by the plugin process.
type pluginServer interface {
	Hooks(ctx context.Context, req *Request) (*Response, error)
	Load(ctx context.Context, req *Request) (*Response, error)
	HandleMessage(ctx context.Context, req *Request) (*Response, error)
	HandleError(ctx context.Context, req *Request) (*Response, error)
	Start(ctx context.Context, req *Request) (*Response, error)
	Stop(ctx context.Context, req *Request) (*Response, error)
}

// hostServer is served by the host over the broker for plugin callbacks.
type hostServer interface {
	Publish(ctx context.Context, req *Request) (*Response, error)
	ReportError(ctx context.Context, req *Request) (*Response, error)
	Options(ctx context.Context, req *Request) (*Response, error)
}

var pluginServiceDesc = grpc.ServiceDesc{
	ServiceName: pluginService,
	HandlerType: (*pluginServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(pluginService, "Hooks", pluginServer.Hooks),
		unary(pluginService, "Load", pluginServer.Load),
		unary(pluginService, "HandleMessage", pluginServer.HandleMessage),
		unary(pluginService, "HandleError", pluginServer.HandleError),
		unary(pluginService, "Start", pluginServer.Start),
		unary(pluginService, "Stop", pluginServer.Stop),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockclerk/plugin/v1",
}

var hostServiceDesc = grpc.ServiceDesc{
	ServiceName: hostService,
	HandlerType: (*hostServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(hostService, "Publish", hostServer.Publish),
		unary(hostService, "ReportError", hostServer.ReportError),
		unary(hostService, "Options", hostServer.Options),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockclerk/plugin/v1",
}

// unary builds a method descriptor that decodes a Request and calls fn.
func unary[S any](service, method string, fn func(S, context.Context, *Request) (*Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Request)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(service, method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Request))
			})
		},
	}
}

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

func invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req *Request) (*Response, error) {
	resp := new(Response)
	if err := conn.Invoke(ctx, fullMethod(service, method), req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return resp, nil
}
