// Package rest provides JSON HTTP handlers for product-related operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/abgdnv/gocatalog/internal/transport/form"
	"github.com/abgdnv/gocatalog/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	service        service.ProductService
	validate       *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// RemoveImageRequest is the body of the image removal endpoint.
type RemoveImageRequest struct {
	Image string `json:"image" validate:"required"`
}

// NewHandler creates a new instance of the product JSON API.
func NewHandler(service service.ProductService, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		validate:       validator.New(),
		logger:         logger.With("component", "rest"),
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the HTTP routes of the product API.
// The writes middlewares wrap only the state changing routes.
func (h *Handler) RegisterRoutes(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.With(writes...).Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindByID)
			r.With(writes...).Put("/", h.Update)
			r.With(writes...).Delete("/", h.DeleteByID)
			r.With(writes...).Delete("/images", h.RemoveImage)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}

	h.logger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to retrieve product with ID %s", id))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, found)
}

// FindAll retrieves a list of all products, newest first.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.FindAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error retrieving product list", "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	h.logger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, h.logger, http.StatusOK, list)
}

// Create handles the creation of a new product from a multipart form.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	submitted, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer submitted.Close()

	h.logger.DebugContext(r.Context(), "Received request to create product", "name", submitted.Fields.Name, "images", len(submitted.Uploads))
	created, err := h.service.Create(r.Context(), submitted.Fields, submitted.Uploads)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to create product")
		return
	}
	h.logger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, h.logger, http.StatusCreated, created)
}

// Update replaces the product fields and appends the submitted images.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	submitted, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer submitted.Close()

	h.logger.DebugContext(r.Context(), "Received request to update product", "ID", id, "images", len(submitted.Uploads))
	updated, err := h.service.Update(r.Context(), id, submitted.Fields, submitted.Uploads)
	if err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to update product with ID %s", id))
		return
	}
	h.logger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, h.logger, http.StatusOK, updated)
}

// RemoveImage detaches one image from the product.
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var req RemoveImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		web.RespondValidation(w, h.logger, map[string]string{"image": "failed on rule: required"})
		return
	}

	if err := h.service.RemoveImage(r.Context(), id, req.Image); err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to remove image from product with ID %s", id))
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]bool{"success": true})
}

// DeleteByID deletes a product and its images.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	h.logger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err, fmt.Sprintf("Failed to delete product with ID %s", id))
		return
	}
	h.logger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*form.Product, bool) {
	submitted, err := form.ParseProduct(w, r, h.maxUploadBytes)
	if err != nil {
		if errors.Is(err, form.ErrTooLarge) {
			h.logger.WarnContext(r.Context(), "Upload too large", "error", err)
			web.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err.Error())
			return nil, false
		}
		h.logger.WarnContext(r.Context(), "Error parsing form", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	return submitted, true
}

// respondServiceError maps the service error taxonomy to HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var validationErr *perrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.logger.WarnContext(r.Context(), "Validation errors occurred", "errors", validationErr.Fields)
		web.RespondValidation(w, h.logger, validationErr.Fields)
	case errors.Is(err, perrors.ErrUnsupportedMedia):
		h.logger.WarnContext(r.Context(), "Unsupported upload", "error", err)
		web.RespondValidation(w, h.logger, map[string]string{"images": err.Error()})
	case errors.Is(err, perrors.ErrValidation):
		web.RespondError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, perrors.ErrProductNotFound):
		h.logger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, h.logger, http.StatusNotFound, "Product not found")
	case errors.Is(err, perrors.ErrOptimisticLock):
		h.logger.WarnContext(r.Context(), "Concurrent modification", "error", err)
		web.RespondError(w, h.logger, http.StatusConflict, perrors.ErrOptimisticLock.Error())
	default:
		h.logger.ErrorContext(r.Context(), message, "error", err)
		web.RespondError(w, h.logger, http.StatusInternalServerError, message)
	}
}
