// Package webui serves the HTML product pages.
package webui

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/abgdnv/gocatalog/internal/transport/form"
	"github.com/abgdnv/gocatalog/internal/view"
	"github.com/abgdnv/gocatalog/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	flashCreated = "Product Created!"
	flashUpdated = "Product Updated!"
	flashDeleted = "Product Deleted!"
)

type Handler struct {
	service        service.ProductService
	views          *view.Engine
	flashes        *Flashes
	logger         *slog.Logger
	maxUploadBytes int64
}

// RemoveImageRequest is the JSON body sent by the edit page to drop one image.
type RemoveImageRequest struct {
	Image     string `json:"image"`
	ProductID string `json:"product_id"`
}

// NewHandler creates the HTML product pages handler.
func NewHandler(service service.ProductService, views *view.Engine, flashes *Flashes, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		views:          views,
		flashes:        flashes,
		logger:         logger.With("component", "webui"),
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers the product pages. The writes middlewares wrap only the state changing routes.
func (h *Handler) RegisterRoutes(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/products", http.StatusFound)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.Index)
		r.Get("/new", h.New)
		r.With(writes...).Post("/", h.Create)
		r.With(writes...).Delete("/image", h.RemoveImage)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Show)
			r.Get("/edit", h.Edit)
			r.With(writes...).Put("/", h.Update)
			r.With(writes...).Delete("/", h.Delete)
		})
	})
}

// Index lists all products, newest first.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.FindAll(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "products/index", "Products", view.ProductsPage{Products: products})
}

// New renders the empty create form.
func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "products/create", "New product", view.ProductPage{})
}

// Create stores a new product and redirects to the list.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	submitted, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer submitted.Close()

	created, err := h.service.Create(r.Context(), submitted.Fields, submitted.Uploads)
	if err != nil {
		if fields, invalid := formErrors(err); invalid {
			h.logger.WarnContext(r.Context(), "Invalid product submission", "errors", fields)
			h.render(w, r, http.StatusBadRequest, "products/create", "New product",
				view.ProductPage{Form: submitted.Fields, Errors: fields})
			return
		}
		h.renderError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID)
	h.redirectWithFlash(w, r, "/products", flashCreated)
}

// Show renders one product.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	product, ok := h.findProduct(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "products/show", product.Name, view.ProductPage{Product: product})
}

// Edit renders the edit form filled with the stored values.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	product, ok := h.findProduct(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, "products/edit", "Edit "+product.Name, view.ProductPage{
		Product: product,
		Form:    fieldsOf(product),
	})
}

// Update replaces the product fields, appends new images and redirects to the list.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	submitted, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer submitted.Close()

	updated, err := h.service.Update(r.Context(), id, submitted.Fields, submitted.Uploads)
	if err != nil {
		if fields, invalid := formErrors(err); invalid {
			h.logger.WarnContext(r.Context(), "Invalid product submission", "ID", id, "errors", fields)
			current, findErr := h.service.FindByID(r.Context(), id)
			if findErr != nil {
				h.renderError(w, r, findErr)
				return
			}
			h.render(w, r, http.StatusBadRequest, "products/edit", "Edit "+current.Name,
				view.ProductPage{Product: current, Form: submitted.Fields, Errors: fields})
			return
		}
		h.renderError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID)
	h.redirectWithFlash(w, r, "/products", flashUpdated)
}

// Delete removes the product with its images and redirects to the list.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		h.renderError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	h.redirectWithFlash(w, r, "/products", flashDeleted)
}

// RemoveImage drops one image of a product and answers {"success": bool}.
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	var req RemoveImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		h.respondRemoval(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.respondRemoval(w, http.StatusBadRequest, "Invalid product_id")
		return
	}
	if req.Image == "" {
		h.respondRemoval(w, http.StatusBadRequest, "image is required")
		return
	}

	if err = h.service.RemoveImage(r.Context(), id, req.Image); err != nil {
		if errors.Is(err, perrors.ErrProductNotFound) {
			h.logger.WarnContext(r.Context(), "Product not found", "ID", id)
			h.respondRemoval(w, http.StatusNotFound, "Product not found")
			return
		}
		if errors.Is(err, perrors.ErrOptimisticLock) {
			h.respondRemoval(w, http.StatusConflict, perrors.ErrOptimisticLock.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "Error removing image", "ID", id, "error", err)
		h.respondRemoval(w, http.StatusInternalServerError, "Failed to remove image")
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) respondRemoval(w http.ResponseWriter, status int, message string) {
	web.RespondJSON(w, h.logger, status, map[string]any{"success": false, "error": message})
}

func (h *Handler) findProduct(w http.ResponseWriter, r *http.Request) (*service.ProductDto, bool) {
	id, ok := h.parseID(w, r)
	if !ok {
		return nil, false
	}
	product, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return nil, false
	}
	return product, true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.renderStatus(w, r, http.StatusNotFound, "Product not found")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*form.Product, bool) {
	submitted, err := form.ParseProduct(w, r, h.maxUploadBytes)
	if err != nil {
		if errors.Is(err, form.ErrTooLarge) {
			h.logger.WarnContext(r.Context(), "Upload too large", "error", err)
			h.renderStatus(w, r, http.StatusRequestEntityTooLarge, "The uploaded files are too large")
			return nil, false
		}
		h.logger.WarnContext(r.Context(), "Error parsing form", "error", err)
		h.renderStatus(w, r, http.StatusBadRequest, "Invalid form submission")
		return nil, false
	}
	return submitted, true
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, message string) {
	if err := h.flashes.Add(w, r, message); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to store flash message", "error", err)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	flash, err := h.flashes.Pop(w, r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to read flash message", "error", err)
	}
	err = h.views.Render(w, status, name, view.TemplateData{Title: title, Flash: flash, Data: data})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error rendering page", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderError maps the service error taxonomy to an error page.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, perrors.ErrProductNotFound):
		h.logger.WarnContext(r.Context(), "Product not found", "error", err)
		h.renderStatus(w, r, http.StatusNotFound, "Product not found")
	case errors.Is(err, perrors.ErrOptimisticLock):
		h.logger.WarnContext(r.Context(), "Concurrent modification", "error", err)
		h.renderStatus(w, r, http.StatusConflict, "The product was changed by someone else. Reload and try again.")
	default:
		h.logger.ErrorContext(r.Context(), "Error handling product request", "error", err)
		h.renderStatus(w, r, http.StatusInternalServerError, "Something went wrong")
	}
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, status, "errors/status", http.StatusText(status), message)
}

// formErrors extracts the per-field messages shown next to the form inputs.
func formErrors(err error) (map[string]string, bool) {
	var validationErr *perrors.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields, true
	}
	if errors.Is(err, perrors.ErrUnsupportedMedia) {
		return map[string]string{"images": err.Error()}, true
	}
	if errors.Is(err, perrors.ErrValidation) {
		return map[string]string{"form": err.Error()}, true
	}
	return nil, false
}

func fieldsOf(p *service.ProductDto) service.ProductFieldsDto {
	return service.ProductFieldsDto{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
	}
}
