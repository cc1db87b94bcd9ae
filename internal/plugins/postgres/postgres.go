// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

// Package postgres implements a plugin that records every product status
// it sees in a PostgreSQL table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/stockclerk/stockclerk/internal/ids"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

// Option keys read from the host options.
const (
	OptionURL     = "postgres.url"
	OptionMigrate = "postgres.migrate"
)

// Error codes.
const (
	CodeConfigInvalid = "POSTGRES_CONFIG_INVALID"
	CodeConnectFailed = "POSTGRES_CONNECT_FAILED"
	CodeInsertFailed  = "POSTGRES_INSERT_FAILED"
	CodeNotConnected  = "POSTGRES_NOT_CONNECTED"
)

// Connection retry defaults.
const (
	DefaultConnectRetries    = 5
	DefaultConnectRetryDelay = 500 * time.Millisecond
)

const insertStatus = `INSERT INTO product_statuses
	(id, publication_id, position, product_id, source, name, in_stock, price, currency, product_url, add_to_cart_url, data, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Pool is the part of pgxpool.Pool the plugin uses.
type Pool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Connector opens a pool for a database URL.
type Connector func(ctx context.Context, url string) (Pool, error)

// MigrateFunc brings the schema at url up to date.
type MigrateFunc func(url string) error

// Plugin records product statuses.
type Plugin[T any] struct {
	connect    Connector
	migrate    MigrateFunc
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	pool Pool
	url  string
}

var (
	_ plugin.Loader[any]         = (*Plugin[any])(nil)
	_ plugin.MessageHandler[any] = (*Plugin[any])(nil)
	_ plugin.Starter             = (*Plugin[any])(nil)
	_ plugin.Stopper             = (*Plugin[any])(nil)
)

type settings struct {
	connect    Connector
	migrate    MigrateFunc
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Plugin.
type Option func(*settings)

// WithConnector replaces the pgxpool connector.
func WithConnector(connect Connector) Option {
	return func(s *settings) {
		s.connect = connect
	}
}

// WithMigrate replaces the embedded migration runner.
func WithMigrate(migrate MigrateFunc) Option {
	return func(s *settings) {
		s.migrate = migrate
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

// WithClock sets the time source for recorded_at.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// New creates a postgres plugin. It connects on Load.
func New[T any](opts ...Option) *Plugin[T] {
	s := settings{
		connect:    connectPool,
		migrate:    Migrate,
		retries:    DefaultConnectRetries,
		retryDelay: DefaultConnectRetryDelay,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Plugin[T]{
		connect:    s.connect,
		migrate:    s.migrate,
		retries:    s.retries,
		retryDelay: s.retryDelay,
		logger:     s.logger,
		now:        s.now,
	}
}

func connectPool(ctx context.Context, url string) (Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Load connects to postgres.url and, unless postgres.migrate is false,
// applies the embedded migrations.
func (p *Plugin[T]) Load(ctx context.Context, host plugin.Host[T]) error {
	opts := host.Options()
	url := plugin.OptionString(opts, OptionURL, "")
	if url == "" {
		return oops.In("postgres").
			Code(CodeConfigInvalid).
			Hint("set options.postgres.url to a PostgreSQL connection string").
			Errorf("%s is required", OptionURL)
	}

	pool, err := p.dial(ctx, url)
	if err != nil {
		return err
	}
	if plugin.OptionBool(opts, OptionMigrate, true) {
		if err := p.migrate(url); err != nil {
			pool.Close()
			return oops.In("postgres").Wrapf(err, "apply migrations")
		}
	}

	p.mu.Lock()
	old := p.pool
	p.pool = pool
	p.url = url
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}
	p.logger.InfoContext(ctx, "postgres connected")
	return nil
}

// Start reconnects a pool closed by Stop. Migrations already ran on Load.
func (p *Plugin[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil || p.url == "" {
		return nil
	}

	pool, err := p.dial(ctx, p.url)
	if err != nil {
		return err
	}
	p.pool = pool
	p.logger.InfoContext(ctx, "postgres reconnected")
	return nil
}

func (p *Plugin[T]) dial(ctx context.Context, url string) (Pool, error) {
	errb := oops.In("postgres").
		Code(CodeConnectFailed).
		Hint("check postgres.url and that the server is reachable")

	pool, err := p.connect(ctx, url)
	if err != nil {
		return nil, errb.Wrapf(err, "open pool")
	}

	backoff := retry.WithMaxRetries(p.retries, retry.NewConstant(p.retryDelay))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			p.logger.DebugContext(ctx, "postgres ping failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, errb.With("attempts", attempt).Wrapf(err, "ping database")
	}
	return pool, nil
}

// HandleMessage inserts every status of msg in one transaction and passes
// msg on. Statuses of one message share a publication id and keep their
// position.
func (p *Plugin[T]) HandleMessage(ctx context.Context, msg plugin.ProductMessage[T]) (plugin.ProductMessage[T], error) {
	p.mu.RLock()
	pool := p.pool
	p.mu.RUnlock()
	if pool == nil {
		return nil, oops.In("postgres").Code(CodeNotConnected).Errorf("postgres plugin is not connected")
	}
	if len(msg) == 0 {
		return msg, nil
	}

	publication := ids.NewString()
	recordedAt := p.now().UTC()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, insertError(err, publication)
	}
	for i, s := range msg {
		data, err := encodeData(s.Data)
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // encode error takes precedence
			return nil, oops.In("postgres").Code(CodeInsertFailed).With("position", i).Wrapf(err, "encode status data")
		}
		if _, err := tx.Exec(ctx, insertStatus,
			ids.NewString(), publication, i,
			s.ID, s.Source, s.Name, s.IsInStock, s.Price, s.Currency, s.ProductURL, s.AddToCartURL,
			data, recordedAt,
		); err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // insert error takes precedence
			return nil, insertError(err, publication)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, insertError(err, publication)
	}

	p.logger.DebugContext(ctx, "product statuses recorded", "publication", publication, "count", len(msg))
	return msg, nil
}

// Stop closes the pool. A later Start or Load reconnects.
func (p *Plugin[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()
	if pool != nil {
		pool.Close()
		p.logger.InfoContext(ctx, "postgres disconnected")
	}
	return nil
}

// encodeData returns the JSON form of data, or nil for a null payload.
func encodeData(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func insertError(err error, publication string) error {
	errb := oops.In("postgres").Code(CodeInsertFailed).With("publication", publication)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		errb = errb.With("sqlstate", pgErr.Code)
		switch {
		case pgErr.Code == pgerrcode.UndefinedTable:
			errb = errb.Hint("product_statuses is missing; leave postgres.migrate enabled or apply the migrations")
		case pgErr.Code == pgerrcode.UniqueViolation:
			errb = errb.Hint("duplicate status id")
		case pgerrcode.IsConnectionException(pgErr.Code):
			errb = errb.Hint("the database connection was lost")
		}
	}
	return errb.Wrapf(err, "record product statuses")
}
