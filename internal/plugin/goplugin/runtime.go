// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package goplugin runs binary plugins as child processes using HashiCorp's
// go-plugin system over gRPC, and adapts them to the host's hook model.
package goplugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/stockclerk/stockclerk/pkg/pluginsdk"
)

// Launch retry defaults.
const (
	DefaultLaunchRetries    = 2
	DefaultLaunchRetryDelay = 250 * time.Millisecond
)

// Sentinel errors for programmatic error checking.
var (
	// ErrRuntimeClosed is returned when launching on a closed runtime.
	ErrRuntimeClosed = errors.New("runtime is closed")
	// ErrPluginAlreadyLaunched is returned when a name is launched twice.
	ErrPluginAlreadyLaunched = errors.New("plugin already launched")
)

// Module identifies an executable to launch.
type Module struct {
	// Name keys the process and appears in logs and errors.
	Name string
	// Path is the executable.
	Path string
	// Args are passed to the executable.
	Args []string
}

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the client protocol, starting the process if needed.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the module's executable.
	NewClient(mod Module) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Level is the minimum level of go-plugin's own diagnostics.
	// Defaults to warn.
	Level hclog.Level
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(mod Module) PluginClient {
	level := f.Level
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pluginsdk.HandshakeConfig,
		Plugins:          pluginsdk.PluginMap,
		Cmd:              exec.Command(mod.Path, mod.Args...), // #nosec G204 -- path resolved from a plugin manifest or search path
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugin." + mod.Name,
			Output: os.Stderr,
			Level:  level,
		}),
	})
}

// Runtime launches binary plugins and owns their processes.
type Runtime struct {
	factory    ClientFactory
	logger     *slog.Logger
	retries    uint64
	retryDelay time.Duration

	mu      sync.Mutex
	clients map[string]PluginClient
	closed  bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClientFactory replaces the process launcher (for testing).
func WithClientFactory(factory ClientFactory) Option {
	return func(rt *Runtime) {
		if factory != nil {
			rt.factory = factory
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithLaunchRetry sets how often a failed handshake is retried and the
// delay between attempts.
func WithLaunchRetry(retries uint64, delay time.Duration) Option {
	return func(rt *Runtime) {
		rt.retries = retries
		if delay > 0 {
			rt.retryDelay = delay
		}
	}
}

// NewRuntime creates a binary plugin runtime.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		factory:    &DefaultClientFactory{},
		logger:     slog.Default(),
		retries:    DefaultLaunchRetries,
		retryDelay: DefaultLaunchRetryDelay,
		clients:    make(map[string]PluginClient),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger = rt.logger.With("runtime", "binary")
	return rt
}

// Launched returns the names of running plugin processes.
func (rt *Runtime) Launched() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	names := make([]string, 0, len(rt.clients))
	for name := range rt.clients {
		names = append(names, name)
	}
	return names
}

// Close kills every plugin process. Later launches fail.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for name, client := range rt.clients {
		client.Kill()
		rt.logger.Debug("plugin process killed", "plugin", name)
	}
	clear(rt.clients)
	rt.closed = true
	return nil
}

// kill stops one plugin's process.
func (rt *Runtime) kill(name string) {
	rt.mu.Lock()
	client, ok := rt.clients[name]
	delete(rt.clients, name)
	rt.mu.Unlock()
	if ok {
		client.Kill()
	}
}

// connect starts the executable and completes the handshake, retrying
// handshake failures.
func (rt *Runtime) connect(ctx context.Context, mod Module) (PluginClient, *pluginsdk.Client, error) {
	var (
		client PluginClient
		stub   *pluginsdk.Client
	)
	backoff := retry.WithMaxRetries(rt.retries, retry.NewConstant(rt.retryDelay))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		c := rt.factory.NewClient(mod)

		protocol, err := c.Client()
		if err != nil {
			c.Kill()
			rt.logger.Warn("plugin handshake failed", "plugin", mod.Name, "error", err)
			return retry.RetryableError(fmt.Errorf("failed to connect to plugin %s: %w", mod.Name, err))
		}

		raw, err := protocol.Dispense(pluginsdk.PluginName)
		if err != nil {
			c.Kill()
			return fmt.Errorf("failed to dispense plugin %s: %w", mod.Name, err)
		}

		s, ok := raw.(*pluginsdk.Client)
		if !ok || s == nil {
			c.Kill()
			return fmt.Errorf("plugin %s does not speak the stockclerk protocol", mod.Name)
		}

		client, stub = c, s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return client, stub, nil
}

// Launch starts the module's executable and returns it as a plugin.
func Launch[T any](ctx context.Context, rt *Runtime, mod Module) (*Plugin[T], error) {
	errb := oops.In("goplugin").With("plugin", mod.Name).With("path", mod.Path)

	rt.mu.Lock()
	closed := rt.closed
	_, dup := rt.clients[mod.Name]
	rt.mu.Unlock()
	if closed {
		return nil, errb.Wrap(ErrRuntimeClosed)
	}
	if dup {
		return nil, errb.Wrap(fmt.Errorf("%w: %s", ErrPluginAlreadyLaunched, mod.Name))
	}

	execPath := filepath.Clean(mod.Path)
	if _, err := os.Stat(execPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errb.Hint("plugin executable not found").Wrap(err)
		}
		return nil, errb.Hint("cannot access plugin executable").Wrap(err)
	}
	mod.Path = execPath

	client, stub, err := rt.connect(ctx, mod)
	if err != nil {
		return nil, errb.Wrap(err)
	}

	hooks, err := stub.Hooks(ctx)
	if err != nil {
		client.Kill()
		return nil, errb.Wrap(err)
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		client.Kill()
		return nil, errb.Wrap(ErrRuntimeClosed)
	}
	rt.clients[mod.Name] = client
	rt.mu.Unlock()

	rt.logger.DebugContext(ctx, "binary plugin launched", "plugin", mod.Name, "hooks", hooks)
	return newPlugin[T](rt, mod.Name, stub, hooks), nil
}
