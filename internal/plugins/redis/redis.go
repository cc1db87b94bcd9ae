// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package redis implements a plugin that publishes every message it sees
// to a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Option keys read from the host options.
const (
	OptionAddr     = "redis.addr"
	OptionChannel  = "redis.channel"
	OptionPassword = "redis.password"
	OptionDB       = "redis.db"
)

// Defaults for unset options.
const (
	DefaultAddr    = "localhost:6379"
	DefaultChannel = "stockclerk:products"
)

// Error codes.
const (
	CodeConnectFailed = "REDIS_CONNECT_FAILED"
	CodePublishFailed = "REDIS_PUBLISH_FAILED"
	CodeNotConnected  = "REDIS_NOT_CONNECTED"
)

// Connection retry defaults.
const (
	DefaultConnectRetries    = 5
	DefaultConnectRetryDelay = 500 * time.Millisecond
)

// Publisher is the part of a go-redis client the plugin uses.
type Publisher interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// Dialer creates a client for the given options.
type Dialer func(opts *goredis.Options) Publisher

// Plugin publishes messages to Redis.
type Plugin[T any] struct {
	dial       Dialer
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger

	mu      sync.RWMutex
	client  Publisher
	channel string
	opts    *clientOptions
}

var (
	_ plugin.Loader[any]         = (*Plugin[any])(nil)
	_ plugin.MessageHandler[any] = (*Plugin[any])(nil)
	_ plugin.Starter             = (*Plugin[any])(nil)
	_ plugin.Stopper             = (*Plugin[any])(nil)
)

type settings struct {
	dial       Dialer
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Plugin.
type Option func(*settings)

// WithDialer replaces the go-redis client constructor.
func WithDialer(dial Dialer) Option {
	return func(s *settings) {
		s.dial = dial
	}
}

// WithConnectRetry sets how often a failed ping is retried and the delay
// between attempts.
func WithConnectRetry(retries uint64, delay time.Duration) Option {
	return func(s *settings) {
		s.retries = retries
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

// WithLogger sets the plugin logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a redis plugin. It connects on Load.
func New[T any](opts ...Option) *Plugin[T] {
	s := settings{
		dial:       func(o *goredis.Options) Publisher { return goredis.NewClient(o) },
		retries:    DefaultConnectRetries,
		retryDelay: DefaultConnectRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Plugin[T]{
		dial:       s.dial,
		retries:    s.retries,
		retryDelay: s.retryDelay,
		logger:     s.logger,
	}
}

type clientOptions struct {
	Addr     string `json:"addr"`
	Channel  string `json:"channel"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func readOptions(opts map[string]any) (clientOptions, error) {
	co := clientOptions{Addr: DefaultAddr, Channel: DefaultChannel}
	if err := plugin.DecodeOptions(opts, "redis", &co); err != nil {
		return co, err
	}
	// Dotted keys override the nested table.
	co.Addr = plugin.OptionString(opts, OptionAddr, co.Addr)
	co.Channel = plugin.OptionString(opts, OptionChannel, co.Channel)
	co.Password = plugin.OptionString(opts, OptionPassword, co.Password)
	if v, ok := plugin.Option(opts, OptionDB); ok {
		if n, ok := v.(float64); ok {
			co.DB = int(n)
		}
		if n, ok := v.(int); ok {
			co.DB = n
		}
	}
	return co, nil
}

// Load connects to redis.addr and waits for a successful ping.
func (p *Plugin[T]) Load(ctx context.Context, host plugin.Host[T]) error {
	co, err := readOptions(host.Options())
	if err != nil {
		return err
	}

	client, err := p.connect(ctx, co)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.client
	p.client, p.channel, p.opts = client, co.Channel, &co
	p.mu.Unlock()
	if old != nil {
		_ = old.Close() //nolint:errcheck // replaced client
	}
	p.logger.InfoContext(ctx, "redis connected", "addr", co.Addr, "channel", co.Channel)
	return nil
}

// Start reconnects a client closed by Stop.
func (p *Plugin[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil || p.opts == nil {
		return nil
	}

	client, err := p.connect(ctx, *p.opts)
	if err != nil {
		return err
	}
	p.client = client
	p.logger.InfoContext(ctx, "redis reconnected", "addr", p.opts.Addr)
	return nil
}

func (p *Plugin[T]) connect(ctx context.Context, co clientOptions) (Publisher, error) {
	client := p.dial(&goredis.Options{Addr: co.Addr, Password: co.Password, DB: co.DB})

	backoff := retry.WithMaxRetries(p.retries, retry.NewConstant(p.retryDelay))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			p.logger.DebugContext(ctx, "redis ping failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.In("redis").
			Code(CodeConnectFailed).
			With("addr", co.Addr).
			With("attempts", attempt).
			Hint("check redis.addr and that the server is reachable").
			Wrapf(err, "ping redis")
	}
	return client, nil
}

// HandleMessage publishes msg as JSON and passes it on.
func (p *Plugin[T]) HandleMessage(ctx context.Context, msg plugin.ProductMessage[T]) (plugin.ProductMessage[T], error) {
	p.mu.RLock()
	client, channel := p.client, p.channel
	p.mu.RUnlock()
	if client == nil {
		return nil, oops.In("redis").Code(CodeNotConnected).Errorf("redis plugin is not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, oops.In("redis").Code(CodePublishFailed).Wrapf(err, "encode message")
	}
	receivers, err := client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return nil, oops.In("redis").Code(CodePublishFailed).With("channel", channel).Wrapf(err, "publish message")
	}
	p.logger.DebugContext(ctx, "message published", "channel", channel, "receivers", receivers, "statuses", len(msg))
	return msg, nil
}

// Stop closes the client. A later Start or Load reconnects.
func (p *Plugin[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return oops.In("redis").Wrapf(err, "close client")
	}
	p.logger.InfoContext(ctx, "redis disconnected")
	return nil
}
