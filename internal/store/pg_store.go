package store

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	productColumns = `id, name, description, price, images, version, created_at, updated_at`

	findByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	findAllSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, id`

	createSQL = `INSERT INTO products (name, description, price, images)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + productColumns

	updateSQL = `UPDATE products
		SET name = $2, description = $3, price = $4, images = $5, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING ` + productColumns

	existsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	deleteSQL = `DELETE FROM products WHERE id = $1`
)

var _ ProductStore = (*PgStore)(nil)

// PgStore implements ProductStore using PostgreSQL as the data store.
// The pool must have the shopspring decimal codec registered (see bootstrap.NewDbPool).
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	rows, err := p.db.Query(ctx, findByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return &product, nil
}

// FindAll retrieves all products, newest first.
// It returns a slice of products, which may be empty if no products exist.
func (p *PgStore) FindAll(ctx context.Context) ([]Product, error) {
	rows, err := p.db.Query(ctx, findAllSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	return products, nil
}

// Create adds a new product to the system.
// Returns an error if the product cannot be created.
func (p *PgStore) Create(ctx context.Context, params CreateParams) (*Product, error) {
	rows, err := p.db.Query(ctx, createSQL, params.Name, params.Description, params.Price, nonNil(params.Images))
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &product, nil
}

// Update modifies an existing product's details.
// Returns ErrProductNotFound if no product exists with the given ID
// and ErrOptimisticLock if the stored version differs.
func (p *PgStore) Update(ctx context.Context, params UpdateParams) (*Product, error) {
	rows, err := p.db.Query(ctx, updateSQL,
		params.ID, params.Name, params.Description, params.Price, nonNil(params.Images), params.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	product, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	var exists bool
	if err := p.db.QueryRow(ctx, existsSQL, params.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check product existence: %w", err)
	}
	if !exists {
		return nil, perrors.ErrProductNotFound
	}
	return nil, perrors.ErrOptimisticLock
}

// DeleteByID removes a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return perrors.ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Images,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
