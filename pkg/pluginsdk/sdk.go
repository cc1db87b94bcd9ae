// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package pluginsdk provides the SDK for building stockclerk binary plugins.
//
// Binary plugins run as separate processes and talk to the host over gRPC
// using the HashiCorp go-plugin framework. A plugin implements any of the
// hook interfaces from package plugin with json.RawMessage as the extension
// data type, and hands itself to Serve.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/stockclerk/stockclerk/pkg/pluginsdk"
//	)
//
//	type Echo struct{}
//
//	func (Echo) HandleMessage(_ context.Context, msg pluginsdk.Message) (pluginsdk.Message, error) {
//		return msg, nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Plugin: Echo{}})
//	}
package pluginsdk

import (
	"context"
	"encoding/json"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Message is the message type seen by binary plugins.
type Message = plugin.ProductMessage[json.RawMessage]

// Status is a single product status seen by binary plugins.
type Status = plugin.ProductStatus[json.RawMessage]

// Host is the host surface handed to a binary plugin's Load hook.
type Host = plugin.Host[json.RawMessage]

// PluginName is the name the plugin is dispensed under.
const PluginName = "pipeline"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "STOCKCLERK_PLUGIN",
	MagicCookieValue: "stockclerk-v1",
}

// PluginMap is the plugin set the host dispenses from.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &GRPCPlugin{},
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Plugin is the plugin implementation.
	// Required; Serve will panic if nil.
	Plugin plugin.Plugin
}

// Serve starts the plugin server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Plugin == nil {
		panic("pluginsdk: config.Plugin cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &GRPCPlugin{Impl: config.Plugin},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
	})
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the plugin side only.
	Impl plugin.Plugin
}

// GRPCServer registers the plugin service (called by the plugin process).
func (p *GRPCPlugin) GRPCServer(broker *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("pluginsdk: plugin implementation is nil")
	}
	return RegisterPlugin(s, p.Impl, broker)
}

// GRPCClient returns a plugin client (called by the host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, broker *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewClient(c, broker), nil
}
