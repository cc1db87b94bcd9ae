// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stockclerk/stockclerk/internal/host"
	"github.com/stockclerk/stockclerk/internal/plugins/postgres"
	"github.com/stockclerk/stockclerk/pkg/plugin"
)

var _ = Describe("Postgres plugin", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		connStr   string
		db        *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("stockclerk_test"),
			tcpostgres.WithUsername("stockclerk"),
			tcpostgres.WithPassword("stockclerk"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		db, err = pgxpool.New(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if db != nil {
			db.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	newHost := func(p *postgres.Plugin[map[string]any]) *host.Host[map[string]any] {
		h := host.New[map[string]any](map[string]any{"postgres": map[string]any{"url": connStr}})
		Expect(h.LoadPlugin(ctx, "postgres", p)).To(Succeed())
		return h
	}

	It("migrates on load and records every status of a message", func() {
		p := postgres.New[map[string]any]()
		h := newHost(p)
		DeferCleanup(func() { _ = p.Stop(ctx) })

		inStock := true
		price := 4.25
		msg := plugin.ProductMessage[map[string]any]{
			{ID: "sku-1", Source: "shop", Name: "Widget", IsInStock: &inStock, Price: &price, Currency: "EUR", Data: map[string]any{"sku": "W-1"}},
			{ID: "sku-2", Source: "shop"},
		}
		var got plugin.ProductMessage[map[string]any]
		h.OnMessage(func(m plugin.ProductMessage[map[string]any]) { got = m })
		Expect(h.Publish(ctx, msg)).To(BeTrue())
		Expect(got).To(Equal(msg))

		var (
			count       int
			publication int
		)
		Expect(db.QueryRow(ctx,
			`SELECT count(*), count(DISTINCT publication_id) FROM product_statuses WHERE source = 'shop'`,
		).Scan(&count, &publication)).To(Succeed())
		Expect(count).To(Equal(2))
		Expect(publication).To(Equal(1))

		var (
			name      string
			inStockDB *bool
			data      map[string]any
		)
		Expect(db.QueryRow(ctx,
			`SELECT name, in_stock, data FROM product_statuses WHERE product_id = 'sku-1'`,
		).Scan(&name, &inStockDB, &data)).To(Succeed())
		Expect(name).To(Equal("Widget"))
		Expect(inStockDB).NotTo(BeNil())
		Expect(*inStockDB).To(BeTrue())
		Expect(data).To(HaveKeyWithValue("sku", "W-1"))

		Expect(db.QueryRow(ctx,
			`SELECT in_stock FROM product_statuses WHERE product_id = 'sku-2'`,
		).Scan(&inStockDB)).To(Succeed())
		Expect(inStockDB).To(BeNil())
	})

	It("reconnects after stop and finds the schema current", func() {
		p := postgres.New[map[string]any]()
		newHost(p)
		Expect(p.Stop(ctx)).To(Succeed())

		h := newHost(p)
		DeferCleanup(func() { _ = p.Stop(ctx) })
		Expect(h.Publish(ctx, plugin.ProductMessage[map[string]any]{{ID: "sku-3", Source: "again"}})).To(BeTrue())

		var count int
		Expect(db.QueryRow(ctx, `SELECT count(*) FROM product_statuses WHERE source = 'again'`).Scan(&count)).To(Succeed())
		Expect(count).To(Equal(1))

		m, err := postgres.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = m.Close() }()
		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())
	})
})
