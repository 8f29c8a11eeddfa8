// Package session holds the per-user dialog state between turns.
package session

import (
	"context"
	"fmt"
	"time"
)

// PendingAction is the free-text reply a user's next message is expected to be.
type PendingAction int

const (
	// PendingNone means free text is not expected.
	PendingNone PendingAction = iota
	// PendingRename means the next text is a new product name.
	PendingRename
	// PendingPrice means the next text is a price.
	PendingPrice
)

func (p PendingAction) String() string {
	switch p {
	case PendingRename:
		return "awaiting_rename_text"
	case PendingPrice:
		return "awaiting_price_text"
	default:
		return "none"
	}
}

// Field names a clearable part of the Context.
type Field int

const (
	// FieldBusiness is the selected business.
	FieldBusiness Field = iota
	// FieldProduct is the selected product.
	FieldProduct
	// FieldPending is the pending action.
	FieldPending
)

// Ref is a selected entity. A zero ID means nothing is selected.
type Ref struct {
	Name string `json:"name,omitempty"`
	ID   int64  `json:"id,omitempty"`
}

// IsSet reports whether the ref points at an entity.
func (r Ref) IsSet() bool {
	return r.ID > 0
}

// Context is one user's dialog state. It is a value: copies never share state.
type Context struct {
	UpdatedAt time.Time     `json:"updated_at"`
	Business  Ref           `json:"business"`
	Product   Ref           `json:"product"`
	UserID    int64         `json:"user_id"`
	Pending   PendingAction `json:"pending"`
}

// New returns the empty context for a user.
func New(userID int64) Context {
	return Context{UserID: userID}
}

// SetBusiness selects a business.
func (c *Context) SetBusiness(id int64, name string) {
	c.Business = Ref{ID: id, Name: name}
}

// SetProduct selects a product.
func (c *Context) SetProduct(id int64, name string) {
	c.Product = Ref{ID: id, Name: name}
}

// SetPendingAction replaces the pending action. Only one can be pending at a time.
func (c *Context) SetPendingAction(action PendingAction) {
	c.Pending = action
}

// Clear resets one field to its empty value.
func (c *Context) Clear(field Field) {
	switch field {
	case FieldBusiness:
		c.Business = Ref{}
	case FieldProduct:
		c.Product = Ref{}
	case FieldPending:
		c.Pending = PendingNone
	}
}

// Store loads and saves contexts keyed by user id.
type Store interface {
	// Load returns the user's context, or an empty one if none exists yet.
	Load(ctx context.Context, userID int64) (Context, error)
	// Save replaces the user's context.
	Save(ctx context.Context, c Context) error
	// Reset forgets the user's context.
	Reset(ctx context.Context, userID int64) error
}

func validateUser(userID int64) error {
	if userID == 0 {
		return fmt.Errorf("session: user id is required")
	}
	return nil
}
