// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Dialer opens the broker connection the host serves callbacks on.
// *plugin.GRPCBroker from go-plugin satisfies it.
type Dialer interface {
	Dial(id uint32) (*grpc.ClientConn, error)
}

// RegisterPlugin registers impl's hooks as the plugin service on s.
func RegisterPlugin(s grpc.ServiceRegistrar, impl plugin.Plugin, dialer Dialer) error {
	if impl == nil {
		return errors.New("pluginsdk: plugin implementation is nil")
	}
	s.RegisterService(&pluginServiceDesc, &server{
		hooks:  plugin.HooksOf[json.RawMessage](impl),
		dialer: dialer,
	})
	return nil
}

// server adapts plugin hooks to the plugin service.
type server struct {
	hooks  plugin.Hooks[json.RawMessage]
	dialer Dialer

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func (s *server) Hooks(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Hooks: s.hooks.Names()}, nil
}

func (s *server) Load(ctx context.Context, req *Request) (*Response, error) {
	if s.hooks.Load == nil {
		return &Response{}, nil
	}
	if s.dialer == nil {
		return nil, status.Error(codes.FailedPrecondition, "no broker to reach the host")
	}
	conn, err := s.dialer.Dial(req.BrokerID)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "dial host callbacks: %v", err)
	}
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	return failure(s.hooks.Load(ctx, &hostClient{conn: conn})), nil
}

func (s *server) HandleMessage(ctx context.Context, req *Request) (*Response, error) {
	if s.hooks.HandleMessage == nil {
		return &Response{Message: req.Message}, nil
	}
	msg, err := decodeMessage(req.Message)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode message: %v", err)
	}
	out, err := s.hooks.HandleMessage(ctx, msg)
	if err != nil {
		return failure(err), nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return failure(fmt.Errorf("encode message: %w", err)), nil
	}
	return &Response{Message: raw}, nil
}

func (s *server) HandleError(ctx context.Context, req *Request) (*Response, error) {
	if s.hooks.HandleError == nil {
		return &Response{Error: req.Error}, nil
	}
	out := s.hooks.HandleError(ctx, errors.New(req.Error))
	if out == nil {
		return &Response{Suppressed: true}, nil
	}
	return &Response{Error: out.Error()}, nil
}

func (s *server) Start(ctx context.Context, _ *Request) (*Response, error) {
	if s.hooks.Start == nil {
		return &Response{}, nil
	}
	return failure(s.hooks.Start(ctx)), nil
}

func (s *server) Stop(ctx context.Context, _ *Request) (*Response, error) {
	if s.hooks.Stop == nil {
		return &Response{}, nil
	}
	return failure(s.hooks.Stop(ctx)), nil
}

func failure(err error) *Response {
	if err == nil {
		return &Response{}
	}
	return &Response{Failure: err.Error()}
}

// hostClient is the plugin-side Host. Calls that fail in transport report
// false or no options, as a host with no listeners would.
type hostClient struct {
	conn grpc.ClientConnInterface
}

var _ Host = (*hostClient)(nil)

func (h *hostClient) Publish(ctx context.Context, msg Message) bool {
	raw, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	resp, err := invoke(ctx, h.conn, hostService, "Publish", &Request{Message: raw})
	if err != nil {
		return false
	}
	return resp.Emitted
}

func (h *hostClient) ReportError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	resp, callErr := invoke(ctx, h.conn, hostService, "ReportError", &Request{Error: err.Error()})
	if callErr != nil {
		return false
	}
	return resp.Emitted
}

func (h *hostClient) Options() map[string]any {
	resp, err := invoke(context.Background(), h.conn, hostService, "Options", &Request{})
	if err != nil || resp.Options == nil {
		return map[string]any{}
	}
	return resp.Options
}

// decodeMessage reads a JSON message, keeping null distinct from [].
func decodeMessage(raw json.RawMessage) (Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}
