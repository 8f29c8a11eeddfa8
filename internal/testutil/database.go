// Package testutil provides shared helpers for tests that need a real store.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pricebot/internal/model"
	"github.com/Veraticus/pricebot/internal/storage"
)

// Clock is a manually advanced clock.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock starts a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestDB is a migrated in-memory store with helpers for seeding data.
type TestDB struct {
	Storage *storage.Storage
	Clock   *Clock
	t       *testing.T
}

// SetupTestDB creates a new in-memory SQLite store.
// It automatically handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	clock := NewClock()
	store, err := storage.NewSQLiteStorage(":memory:", storage.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, Clock: clock, t: t}
}

// MustBusiness finds or creates a business or fails the test.
func (db *TestDB) MustBusiness(name string) model.Business {
	db.t.Helper()
	b, _, err := db.Storage.FindOrCreateBusiness(context.Background(), name)
	if err != nil {
		db.t.Fatalf("failed to seed business %q: %v", name, err)
	}
	return *b
}

// MustProduct finds or creates a product or fails the test.
func (db *TestDB) MustProduct(name string) model.Product {
	db.t.Helper()
	p, _, err := db.Storage.FindOrCreateProduct(context.Background(), name)
	if err != nil {
		db.t.Fatalf("failed to seed product %q: %v", name, err)
	}
	return *p
}

// MustPrice appends a price observation or fails the test.
func (db *TestDB) MustPrice(product model.Product, business model.Business, price string) model.PriceObservation {
	db.t.Helper()
	obs, err := db.Storage.AppendPriceObservation(context.Background(), product.ID, business.ID, decimal.RequireFromString(price))
	if err != nil {
		db.t.Fatalf("failed to seed price %s for %s@%s: %v", price, product.Name, business.Name, err)
	}
	return *obs
}

// History returns the price log of a pair or fails the test.
func (db *TestDB) History(product model.Product, business model.Business) []model.PriceObservation {
	db.t.Helper()
	history, err := db.Storage.PriceHistory(context.Background(), product.ID, business.ID)
	if err != nil {
		db.t.Fatalf("failed to read price history: %v", err)
	}
	return history
}
