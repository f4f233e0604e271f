package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/google/uuid"
)

var _ ProductStore = (*MemoryStore)(nil)

// MemoryStore implements ProductStore using an in-memory map.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]memoryRow
	seq      int64
	now      func() time.Time
}

type memoryRow struct {
	product Product
	seq     int64
}

// NewMemoryStore creates an empty in-memory ProductStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]memoryRow),
		now:      time.Now,
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.products[id]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	p := clone(row.product)
	return &p, nil
}

// FindAll returns the products newest first; rows created at the same instant keep reverse insertion order.
func (s *MemoryStore) FindAll(ctx context.Context) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]memoryRow, 0, len(s.products))
	for _, row := range s.products {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].product.CreatedAt.Equal(rows[j].product.CreatedAt) {
			return rows[i].product.CreatedAt.After(rows[j].product.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	list := make([]Product, len(rows))
	for i, row := range rows {
		list[i] = clone(row.product)
	}
	return list, nil
}

func (s *MemoryStore) Create(ctx context.Context, params CreateParams) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	product := Product{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Images:      slices.Clone(nonNil(params.Images)),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.seq++
	s.products[product.ID] = memoryRow{product: product, seq: s.seq}

	p := clone(product)
	return &p, nil
}

func (s *MemoryStore) Update(ctx context.Context, params UpdateParams) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.products[params.ID]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	if row.product.Version != params.Version {
		return nil, perrors.ErrOptimisticLock
	}
	row.product.Name = params.Name
	row.product.Description = params.Description
	row.product.Price = params.Price
	row.product.Images = slices.Clone(nonNil(params.Images))
	row.product.Version++
	row.product.UpdatedAt = s.now()
	s.products[params.ID] = row

	p := clone(row.product)
	return &p, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return perrors.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

// clone detaches the image slice so callers cannot mutate stored rows.
func clone(p Product) Product {
	p.Images = slices.Clone(p.Images)
	return p
}
