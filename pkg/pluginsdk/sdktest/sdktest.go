// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package sdktest runs binary plugin implementations in-process over an
// in-memory gRPC transport, for tests on either side of the protocol.
package sdktest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/stockclerk/stockclerk/pkg/plugin"
	"github.com/stockclerk/stockclerk/pkg/pluginsdk"
)

const bufSize = 1 << 20

// Connect serves impl in-process and returns a host-side client for it.
// Everything is torn down when the test ends.
func Connect(t testing.TB, impl plugin.Plugin) *pluginsdk.Client {
	t.Helper()

	broker := NewBroker()
	t.Cleanup(broker.Close)

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	require.NoError(t, pluginsdk.RegisterPlugin(srv, impl, broker))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := dial(lis)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return pluginsdk.NewClient(conn, broker)
}

// Broker is an in-memory stand-in for go-plugin's GRPCBroker. It serves
// both ends: AcceptAndServe on the host side and Dial on the plugin side.
type Broker struct {
	mu        sync.Mutex
	next      uint32
	listeners map[uint32]*bufconn.Listener
	servers   []*grpc.Server
	conns     []*grpc.ClientConn
}

var (
	_ pluginsdk.Broker = (*Broker)(nil)
	_ pluginsdk.Dialer = (*Broker)(nil)
)

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{listeners: make(map[uint32]*bufconn.Listener)}
}

// NextId reserves a connection id.
func (b *Broker) NextId() uint32 { //nolint:revive // matches go-plugin's broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.listeners[b.next] = bufconn.Listen(bufSize)
	return b.next
}

// AcceptAndServe serves a gRPC server on the connection id. It blocks.
func (b *Broker) AcceptAndServe(id uint32, newServer func([]grpc.ServerOption) *grpc.Server) {
	b.mu.Lock()
	lis, ok := b.listeners[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	srv := newServer(nil)
	b.servers = append(b.servers, srv)
	b.mu.Unlock()

	_ = srv.Serve(lis)
}

// Dial connects to the connection id.
func (b *Broker) Dial(id uint32) (*grpc.ClientConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lis, ok := b.listeners[id]
	if !ok {
		return nil, fmt.Errorf("sdktest: unknown broker id %d", id)
	}
	conn, err := dial(lis)
	if err != nil {
		return nil, err
	}
	b.conns = append(b.conns, conn)
	return conn, nil
}

// Close stops every server and connection the broker created.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		_ = conn.Close()
	}
	for _, srv := range b.servers {
		srv.Stop()
	}
	for _, lis := range b.listeners {
		_ = lis.Close()
	}
	b.conns, b.servers = nil, nil
}

func dial(lis *bufconn.Listener) (*grpc.ClientConn, error) {
	return grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}
