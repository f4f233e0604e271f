// Package service provides the product record manager: the business logic that keeps
// product rows and their stored images consistent.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/abgdnv/gocatalog/internal/blob"
	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/abgdnv/gocatalog/internal/store"
	"github.com/abgdnv/gocatalog/pkg/messaging"
	"github.com/abgdnv/gocatalog/pkg/messaging/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// priceScale is the number of fractional digits a price may carry.
const priceScale = 2

// maxPrice is the largest price the NUMERIC(12,2) column holds.
var maxPrice = decimal.RequireFromString("9999999999.99")

// ProductService defines the methods for managing products and their images.
type ProductService interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*ProductDto, error)

	// FindAll returns all products, most recently created first.
	FindAll(ctx context.Context) ([]ProductDto, error)

	// Create stores the uploads and persists a new product referencing them.
	Create(ctx context.Context, fields ProductFieldsDto, uploads []Upload) (*ProductDto, error)

	// Update replaces the product fields and appends the uploads to its images.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, id uuid.UUID, fields ProductFieldsDto, uploads []Upload) (*ProductDto, error)

	// RemoveImage detaches one image reference from the product and deletes its blob.
	// A reference the product does not hold is a no-op.
	RemoveImage(ctx context.Context, id uuid.UUID, ref string) error

	// DeleteByID removes the product and then every blob it referenced.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

var _ ProductService = (*Service)(nil)

// Service implements ProductService over a record store and a blob store.
type Service struct {
	store     store.ProductStore
	blobs     blob.Store
	publisher messaging.Publisher
	validate  *validator.Validate
	logger    *slog.Logger

	productsCounter     metric.Int64Counter
	blobFailuresCounter metric.Int64Counter

	// newBlobName returns the stored name for an upload with the given extension.
	newBlobName func(ext string) string
}

// NewService creates a new instance of ProductService.
func NewService(productStore store.ProductStore, blobs blob.Store, publisher messaging.Publisher, logger *slog.Logger) *Service {
	meter := otel.Meter("catalog-service")
	productsCounter, err := meter.Int64Counter("products_created", metric.WithDescription("Total number of created products"))
	if err != nil {
		panic(fmt.Sprintf("failed to create products_created counter: %v", err))
	}
	blobFailuresCounter, err := meter.Int64Counter("blob_delete_failures",
		metric.WithDescription("Total number of image blobs that could not be deleted"))
	if err != nil {
		panic(fmt.Sprintf("failed to create blob_delete_failures counter: %v", err))
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		store:               productStore,
		blobs:               blobs,
		publisher:           publisher,
		validate:            newValidator(),
		logger:              logger.With("component", "service"),
		productsCounter:     productsCounter,
		blobFailuresCounter: blobFailuresCounter,
		newBlobName: func(ext string) string {
			return uuid.NewString() + ext
		},
	}
}

// newValidator reports field errors under their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ProductFieldsDto holds the submitted scalar fields of a product.
// Price is kept as submitted text and parsed as a decimal.
type ProductFieldsDto struct {
	Name        string `json:"name"        validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Price       string `json:"price"       validate:"required"`
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []ImageDto      `json:"images"`
	Version     int32           `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ImageDto is a stored image reference and the URL it is served from.
type ImageDto struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// ImageRefs returns the image references in order.
func (p ProductDto) ImageRefs() []string {
	refs := make([]string, len(p.Images))
	for i, img := range p.Images {
		refs[i] = img.Ref
	}
	return refs
}

// FindByID retrieves a product by its ID and returns it as a ProductDto.
func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*ProductDto, error) {
	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	return s.toDto(product), nil
}

// FindAll retrieves all products newest first.
func (s *Service) FindAll(ctx context.Context) ([]ProductDto, error) {
	products, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	dtos := make([]ProductDto, len(products))
	for i := range products {
		dtos[i] = *s.toDto(&products[i])
	}
	return dtos, nil
}

// Create validates the fields and uploads, stores every upload and persists the product.
// Nothing is persisted when any upload fails; blobs already written by the call are removed.
func (s *Service) Create(ctx context.Context, fields ProductFieldsDto, uploads []Upload) (*ProductDto, error) {
	fields, price, err := s.validateFields(fields)
	if err != nil {
		return nil, err
	}
	prepared, err := prepareUploads(uploads)
	if err != nil {
		return nil, err
	}

	refs, err := s.storeUploads(ctx, prepared)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, store.CreateParams{
		Name:        fields.Name,
		Description: fields.Description,
		Price:       price,
		Images:      refs,
	})
	if err != nil {
		s.discardBlobs(ctx, refs)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.logger.InfoContext(ctx, "Product created", "ID", created.ID, "images", len(created.Images))

	s.publish(ctx, events.NewProductCreatedEvent(created.ID, created.Name, created.Price.String(), len(created.Images), created.Version))
	s.productsCounter.Add(ctx, 1)

	return s.toDto(created), nil
}

// Update replaces name, description and price and appends the uploads after the existing images.
// The row is written with the version that was read, so a concurrent writer yields ErrOptimisticLock.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fields ProductFieldsDto, uploads []Upload) (*ProductDto, error) {
	fields, price, err := s.validateFields(fields)
	if err != nil {
		return nil, err
	}
	prepared, err := prepareUploads(uploads)
	if err != nil {
		return nil, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}

	refs, err := s.storeUploads(ctx, prepared)
	if err != nil {
		return nil, err
	}

	images := append(slices.Clone(current.Images), refs...)
	updated, err := s.store.Update(ctx, store.UpdateParams{
		ID:          id,
		Name:        fields.Name,
		Description: fields.Description,
		Price:       price,
		Images:      images,
		Version:     current.Version,
	})
	if err != nil {
		s.discardBlobs(ctx, refs)
		return nil, fmt.Errorf("failed to update product with ID %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Product updated", "ID", id, "added_images", len(refs))

	s.publish(ctx, events.NewProductUpdatedEvent(updated.ID, updated.Name, updated.Price.String(), len(updated.Images), updated.Version))

	return s.toDto(updated), nil
}

// RemoveImage drops the first occurrence of ref from the product images, persists the row
// and then deletes the blob. A failed blob delete is logged and the reference stays removed.
func (s *Service) RemoveImage(ctx context.Context, id uuid.UUID, ref string) error {
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}

	idx := slices.Index(current.Images, ref)
	if idx < 0 {
		s.logger.DebugContext(ctx, "Image not attached to product, nothing to remove", "ID", id, "image", ref)
		return nil
	}
	images := slices.Delete(slices.Clone(current.Images), idx, idx+1)

	updated, err := s.store.Update(ctx, store.UpdateParams{
		ID:          id,
		Name:        current.Name,
		Description: current.Description,
		Price:       current.Price,
		Images:      images,
		Version:     current.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to remove image from product with ID %s: %w", id, err)
	}

	// a duplicate entry still points at the blob
	if !slices.Contains(images, ref) {
		s.deleteBlob(ctx, id, ref)
	}
	s.logger.InfoContext(ctx, "Image removed", "ID", id, "image", ref)

	s.publish(ctx, events.NewProductUpdatedEvent(updated.ID, updated.Name, updated.Price.String(), len(updated.Images), updated.Version))
	return nil
}

// DeleteByID removes the product row first and then every blob it referenced.
// Blob failures are logged, counted and reported in the deleted event; they never fail the call.
func (s *Service) DeleteByID(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}

	if err = s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product with ID %s: %w", id, err)
	}

	var leaked []string
	seen := make(map[string]struct{}, len(current.Images))
	for _, ref := range current.Images {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		if !s.deleteBlob(ctx, id, ref) {
			leaked = append(leaked, ref)
		}
	}
	s.logger.InfoContext(ctx, "Product deleted", "ID", id, "images", len(seen), "leaked_images", len(leaked))

	s.publish(ctx, events.ProductDeletedEvent{ProductID: id, LeakedImages: leaked, OccurredAt: time.Now().UTC()})
	return nil
}

// validateFields trims and checks the submitted fields and parses the price.
func (s *Service) validateFields(fields ProductFieldsDto) (ProductFieldsDto, decimal.Decimal, error) {
	fields.Name = strings.TrimSpace(fields.Name)
	fields.Description = strings.TrimSpace(fields.Description)
	fields.Price = strings.TrimSpace(fields.Price)

	violations := make(map[string]string)
	if err := s.validate.Struct(fields); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fields, decimal.Zero, fmt.Errorf("%w: %v", perrors.ErrValidation, err)
		}
		for _, fieldErr := range validationErrors {
			violations[fieldErr.Field()] = fmt.Sprintf("failed on rule: %s", fieldErr.Tag())
		}
	}

	var price decimal.Decimal
	if _, failed := violations["price"]; !failed {
		var err error
		price, err = decimal.NewFromString(fields.Price)
		switch {
		case err != nil:
			violations["price"] = "must be a number"
		case price.IsNegative():
			violations["price"] = "failed on rule: min"
		case price.GreaterThan(maxPrice):
			violations["price"] = "failed on rule: max"
		case !price.Equal(price.Truncate(priceScale)):
			violations["price"] = fmt.Sprintf("must have at most %d decimal places", priceScale)
		}
	}

	if len(violations) > 0 {
		return fields, decimal.Zero, &perrors.ValidationError{Fields: violations}
	}
	return fields, price, nil
}

// storeUploads writes every prepared upload in order and returns their references.
// On failure the blobs written so far are removed and ErrStorage is returned.
func (s *Service) storeUploads(ctx context.Context, uploads []preparedUpload) ([]string, error) {
	refs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ref, err := s.blobs.Put(ctx, s.newBlobName(u.ext), u.content)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to store image", "filename", u.filename, "error", err)
			s.discardBlobs(ctx, refs)
			return nil, fmt.Errorf("%w: store %q: %w", perrors.ErrStorage, u.filename, err)
		}
		s.logger.DebugContext(ctx, "Image stored", "filename", u.filename, "type", u.mimeType, "image", ref)
		refs = append(refs, ref)
	}
	return refs, nil
}

// discardBlobs removes blobs written by a call whose record was never persisted.
func (s *Service) discardBlobs(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
			s.blobFailuresCounter.Add(ctx, 1)
			s.logger.WarnContext(ctx, "Failed to discard unreferenced image", "image", ref, "error", err)
		}
	}
}

// deleteBlob removes a blob that is no longer referenced and reports whether it succeeded.
func (s *Service) deleteBlob(ctx context.Context, id uuid.UUID, ref string) bool {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.blobFailuresCounter.Add(ctx, 1)
		s.logger.ErrorContext(ctx, "Failed to delete image", "ID", id, "image", ref, "error", err)
		return false
	}
	return true
}

func (s *Service) publish(ctx context.Context, event messaging.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "subject", event.Subject(), "error", err)
	}
}

// toDto converts a store.Product to a ProductDto.
func (s *Service) toDto(product *store.Product) *ProductDto {
	images := make([]ImageDto, len(product.Images))
	for i, ref := range product.Images {
		images[i] = ImageDto{Ref: ref, URL: s.blobs.URL(ref)}
	}
	return &ProductDto{
		ID:          product.ID.String(),
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Images:      images,
		Version:     product.Version,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}
