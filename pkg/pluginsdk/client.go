// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/samber/oops"
	"google.golang.org/grpc"
)

// CodeRPCFailed marks failures to reach a plugin process.
const CodeRPCFailed = "PLUGIN_RPC_FAILED"

// Broker serves host callbacks to the plugin process.
// *plugin.GRPCBroker from go-plugin satisfies it.
type Broker interface {
	NextId() uint32 //nolint:revive // matches go-plugin's broker
	AcceptAndServe(id uint32, newServer func([]grpc.ServerOption) *grpc.Server)
}

// Client is the host-side stub of a plugin process. Messages cross it as
// JSON; typed conversion is left to the caller.
type Client struct {
	conn   grpc.ClientConnInterface
	broker Broker
}

// NewClient wraps a connection to a plugin process.
func NewClient(conn grpc.ClientConnInterface, broker Broker) *Client {
	return &Client{conn: conn, broker: broker}
}

// Hooks lists the hooks the plugin implements.
func (c *Client) Hooks(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, "Hooks", &Request{})
	if err != nil {
		return nil, err
	}
	return resp.Hooks, nil
}

// Load serves host on a broker connection and runs the plugin's Load hook.
func (c *Client) Load(ctx context.Context, host Host) error {
	if c.broker == nil {
		return oops.In("pluginsdk").Code(CodeRPCFailed).Errorf("no broker to serve host callbacks")
	}
	id := c.broker.NextId()
	go c.broker.AcceptAndServe(id, func(opts []grpc.ServerOption) *grpc.Server {
		s := grpc.NewServer(opts...)
		s.RegisterService(&hostServiceDesc, &callbacks{host: host})
		return s
	})

	resp, err := c.call(ctx, "Load", &Request{BrokerID: id})
	if err != nil {
		return err
	}
	return hookFailure(resp)
}

// HandleMessage runs the plugin's message hook on a JSON message.
func (c *Client) HandleMessage(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
	resp, err := c.call(ctx, "HandleMessage", &Request{Message: msg})
	if err != nil {
		return nil, err
	}
	if err := hookFailure(resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// HandleError runs the plugin's error hook. suppressed reports a nil result.
func (c *Client) HandleError(ctx context.Context, message string) (result string, suppressed bool, err error) {
	resp, err := c.call(ctx, "HandleError", &Request{Error: message})
	if err != nil {
		return "", false, err
	}
	return resp.Error, resp.Suppressed, nil
}

// Start runs the plugin's Start hook.
func (c *Client) Start(ctx context.Context) error {
	resp, err := c.call(ctx, "Start", &Request{})
	if err != nil {
		return err
	}
	return hookFailure(resp)
}

// Stop runs the plugin's Stop hook.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.call(ctx, "Stop", &Request{})
	if err != nil {
		return err
	}
	return hookFailure(resp)
}

func (c *Client) call(ctx context.Context, method string, req *Request) (*Response, error) {
	resp, err := invoke(ctx, c.conn, pluginService, method, req)
	if err != nil {
		return nil, oops.In("pluginsdk").
			Code(CodeRPCFailed).
			With("method", method).
			Wrapf(err, "plugin call %s failed", method)
	}
	return resp, nil
}

func hookFailure(resp *Response) error {
	if resp.Failure == "" {
		return nil
	}
	return errors.New(resp.Failure)
}

// callbacks serves a Host to the plugin process.
type callbacks struct {
	host Host
}

func (cb *callbacks) Publish(ctx context.Context, req *Request) (*Response, error) {
	msg, err := decodeMessage(req.Message)
	if err != nil {
		return nil, oops.In("pluginsdk").Wrapf(err, "decode published message")
	}
	return &Response{Emitted: cb.host.Publish(ctx, msg)}, nil
}

func (cb *callbacks) ReportError(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Emitted: cb.host.ReportError(ctx, errors.New(req.Error))}, nil
}

func (cb *callbacks) Options(_ context.Context, _ *Request) (*Response, error) {
	return &Response{Options: cb.host.Options()}, nil
}
