// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/pricebot/internal/model"
)

// EntityStore is the persistence contract the dialog depends on.
type EntityStore interface {
	// Business operations
	FindOrCreateBusiness(ctx context.Context, name string) (*model.Business, bool, error)
	SearchBusinesses(ctx context.Context, filter string) ([]model.Business, error)

	// Product operations
	FindOrCreateProduct(ctx context.Context, name string) (*model.Product, bool, error)
	SearchProducts(ctx context.Context, filter string) ([]model.Product, error)
	RenameProduct(ctx context.Context, id int64, newName string) error

	// Price log
	AppendPriceObservation(ctx context.Context, productID, businessID int64, price decimal.Decimal) (*model.PriceObservation, error)

	// Lookup
	GetByID(ctx context.Context, kind model.EntityKind, id int64) (model.Entity, error)
}

// PriceResolver answers "what does it cost now, and where", and what it cost before.
type PriceResolver interface {
	LatestPrices(ctx context.Context, filter string) ([]model.LatestPrice, error)
	PriceHistory(ctx context.Context, productID, businessID int64) ([]model.PriceObservation, error)
}

// Storage is everything the binary needs from the database layer.
type Storage interface {
	EntityStore
	PriceResolver

	// Lifecycle
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
