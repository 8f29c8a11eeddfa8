package model

import "time"

// EntityKind identifies which table a lookup by id targets.
type EntityKind string

const (
	// KindBusiness targets the business table.
	KindBusiness EntityKind = "business"
	// KindProduct targets the products table.
	KindProduct EntityKind = "product"
)

// Entity is a named row that can be selected by id.
type Entity interface {
	EntityID() int64
	DisplayName() string
}

// Business is a store or seller where prices are observed.
type Business struct {
	CreatedAt time.Time
	Name      string
	ID        int64
}

// EntityID returns the business identifier.
func (b Business) EntityID() int64 { return b.ID }

// DisplayName returns the business name.
func (b Business) DisplayName() string { return b.Name }

// Product is an item whose price is tracked.
type Product struct {
	CreatedAt time.Time
	Name      string
	ID        int64
}

// EntityID returns the product identifier.
func (p Product) EntityID() int64 { return p.ID }

// DisplayName returns the product name.
func (p Product) DisplayName() string { return p.Name }
