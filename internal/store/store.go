// Package store provides the product record store: the persistent rows keyed by product id.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a persisted product row.
// Images holds blob references in upload order.
type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
	Version     int32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateParams holds the columns of a new row; the store assigns ID, version and timestamps.
type CreateParams struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
}

// UpdateParams replaces every mutable column of the row with the given ID.
// Version must be the version the caller read; the store increments it.
type UpdateParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
	Version     int32
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindAll returns all products, most recently created first.
	// Returns an empty slice if no products exist.
	FindAll(ctx context.Context) ([]Product, error)

	// Create inserts a new product and returns it with its assigned ID.
	Create(ctx context.Context, params CreateParams) (*Product, error)

	// Update modifies an existing product.
	// Returns ErrProductNotFound if no product exists with the given ID
	// and ErrOptimisticLock if its version differs from params.Version.
	Update(ctx context.Context, params UpdateParams) (*Product, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// nonNil keeps empty image lists from being stored as NULL.
func nonNil(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}
