package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProductService is a mock implementation of the ProductService interface
type mockProductService struct {
	product  *service.ProductDto
	products []service.ProductDto
	error    error

	gotFields   service.ProductFieldsDto
	gotUploads  []string
	gotImageRef string
}

func (m *mockProductService) FindByID(_ context.Context, _ uuid.UUID) (*service.ProductDto, error) {
	return m.product, m.error
}

func (m *mockProductService) FindAll(_ context.Context) ([]service.ProductDto, error) {
	return m.products, m.error
}

func (m *mockProductService) Create(_ context.Context, fields service.ProductFieldsDto, uploads []service.Upload) (*service.ProductDto, error) {
	m.record(fields, uploads)
	return m.product, m.error
}

func (m *mockProductService) Update(_ context.Context, _ uuid.UUID, fields service.ProductFieldsDto, uploads []service.Upload) (*service.ProductDto, error) {
	m.record(fields, uploads)
	return m.product, m.error
}

func (m *mockProductService) RemoveImage(_ context.Context, _ uuid.UUID, ref string) error {
	m.gotImageRef = ref
	return m.error
}

func (m *mockProductService) DeleteByID(_ context.Context, _ uuid.UUID) error {
	return m.error
}

func (m *mockProductService) record(fields service.ProductFieldsDto, uploads []service.Upload) {
	m.gotFields = fields
	for _, u := range uploads {
		m.gotUploads = append(m.gotUploads, u.Filename)
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	ValidationErrors map[string]string `json:"validation_errors"`
}

// toJSON is a helper function to convert a struct to JSON string
func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func newProductForm(t *testing.T, fields map[string]string, files ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, name := range files {
		fw, err := mw.CreateFormFile("images[]", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func newHandler(svc service.ProductService) *Handler {
	return NewHandler(svc, slog.New(slog.NewJSONHandler(io.Discard, nil)), 1<<20)
}

func Test_ProductAPI_FindByID(t *testing.T) {
	mockID := uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
	product := &service.ProductDto{
		ID:          mockID.String(),
		Name:        "Pen",
		Description: "Blue ink",
		Price:       decimal.NewFromInt(10),
		Images:      []service.ImageDto{{Ref: "a.jpg", URL: "/uploads/a.jpg"}},
		Version:     1,
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	testCases := []struct {
		name         string
		mockService  mockProductService
		productID    string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product found",
			mockService:  mockProductService{product: product},
			productID:    mockID.String(),
			expectedCode: http.StatusOK,
			expectedBody: toJSON(t, product),
		},
		{
			name:         "Error - invalid id",
			productID:    "123-invalid-id",
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "Invalid ID: 123-invalid-id"}),
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: fmt.Errorf("lookup: %w", perrors.ErrProductNotFound)},
			productID:    mockID.String(),
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product not found"}),
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("db down")},
			productID:    mockID.String(),
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to retrieve product with ID " + mockID.String()}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+tc.productID, nil)
			req.SetPathValue("id", tc.productID)
			rr := httptest.NewRecorder()

			// when
			api.FindByID(rr, req)

			// then
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func Test_ProductAPI_FindAll(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - empty list",
			mockService:  mockProductService{products: []service.ProductDto{}},
			expectedCode: http.StatusOK,
			expectedBody: "[]",
		},
		{
			name:         "Error - service error",
			mockService:  mockProductService{error: errors.New("db down")},
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to fetch products"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			rr := httptest.NewRecorder()
			// when
			api.FindAll(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func Test_ProductAPI_Create(t *testing.T) {
	created := &service.ProductDto{ID: uuid.NewString(), Name: "Pen", Price: decimal.NewFromInt(10), Images: []service.ImageDto{}}
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product created",
			mockService:  mockProductService{product: created},
			expectedCode: http.StatusCreated,
			expectedBody: toJSON(t, created),
		},
		{
			name:         "Error - validation",
			mockService:  mockProductService{error: &perrors.ValidationError{Fields: map[string]string{"price": "must be a number"}}},
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ValidationErrorResponse{ValidationErrors: map[string]string{"price": "must be a number"}}),
		},
		{
			name:         "Error - unsupported media",
			mockService:  mockProductService{error: fmt.Errorf("image 1: %w: %q", perrors.ErrUnsupportedMedia, "c.gif")},
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ValidationErrorResponse{ValidationErrors: map[string]string{"images": `image 1: unsupported media type: "c.gif"`}}),
		},
		{
			name:         "Error - storage",
			mockService:  mockProductService{error: fmt.Errorf("%w: disk full", perrors.ErrStorage)},
			expectedCode: http.StatusInternalServerError,
			expectedBody: toJSON(t, ErrorResponse{Error: "Failed to create product"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			body, contentType := newProductForm(t, map[string]string{"name": "Pen", "description": "Blue ink", "price": "10"}, "a.jpg", "b.png")
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()

			// when
			api.Create(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
			assert.Equal(t, service.ProductFieldsDto{Name: "Pen", Description: "Blue ink", Price: "10"}, tc.mockService.gotFields)
			assert.Equal(t, []string{"a.jpg", "b.png"}, tc.mockService.gotUploads)
		})
	}
}

func Test_ProductAPI_Create_TooLarge(t *testing.T) {
	// given
	svc := &mockProductService{}
	api := NewHandler(svc, slog.New(slog.NewJSONHandler(io.Discard, nil)), 64)
	body, contentType := newProductForm(t, map[string]string{"description": strings.Repeat("x", 1024)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	// when
	api.Create(rr, req)

	// then
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, svc.gotFields.Description)
}

func Test_ProductAPI_Update(t *testing.T) {
	mockID := uuid.New()
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
	}{
		{name: "Success - product updated", mockService: mockProductService{product: &service.ProductDto{ID: mockID.String()}}, expectedCode: http.StatusOK},
		{name: "Error - product not found", mockService: mockProductService{error: perrors.ErrProductNotFound}, expectedCode: http.StatusNotFound},
		{name: "Error - concurrent modification", mockService: mockProductService{error: perrors.ErrOptimisticLock}, expectedCode: http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			body, contentType := newProductForm(t, map[string]string{"name": "Pen", "description": "Blue ink", "price": "11"}, "c.jpg")
			req := httptest.NewRequest(http.MethodPut, "/api/v1/products/"+mockID.String(), body)
			req.Header.Set("Content-Type", contentType)
			req.SetPathValue("id", mockID.String())
			rr := httptest.NewRecorder()

			// when
			api.Update(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.Equal(t, "11", tc.mockService.gotFields.Price)
			assert.Equal(t, []string{"c.jpg"}, tc.mockService.gotUploads)
		})
	}
}

func Test_ProductAPI_RemoveImage(t *testing.T) {
	mockID := uuid.New()
	testCases := []struct {
		name         string
		mockService  mockProductService
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - image removed",
			body:         `{"image":"a.jpg"}`,
			expectedCode: http.StatusOK,
			expectedBody: `{"success":true}`,
		},
		{
			name:         "Error - missing image",
			body:         `{}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ValidationErrorResponse{ValidationErrors: map[string]string{"image": "failed on rule: required"}}),
		},
		{
			name:         "Error - malformed body",
			body:         `{`,
			expectedCode: http.StatusBadRequest,
			expectedBody: toJSON(t, ErrorResponse{Error: "Invalid request body"}),
		},
		{
			name:         "Error - product not found",
			mockService:  mockProductService{error: perrors.ErrProductNotFound},
			body:         `{"image":"a.jpg"}`,
			expectedCode: http.StatusNotFound,
			expectedBody: toJSON(t, ErrorResponse{Error: "Product not found"}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+mockID.String()+"/images", strings.NewReader(tc.body))
			req.SetPathValue("id", mockID.String())
			rr := httptest.NewRecorder()

			// when
			api.RemoveImage(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func Test_ProductAPI_DeleteByID(t *testing.T) {
	mockID := uuid.New()
	testCases := []struct {
		name         string
		mockService  mockProductService
		expectedCode int
	}{
		{name: "Success - product deleted", expectedCode: http.StatusNoContent},
		{name: "Error - product not found", mockService: mockProductService{error: perrors.ErrProductNotFound}, expectedCode: http.StatusNotFound},
		{name: "Error - service error", mockService: mockProductService{error: errors.New("db down")}, expectedCode: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/"+mockID.String(), nil)
			req.SetPathValue("id", mockID.String())
			rr := httptest.NewRecorder()

			// when
			api.DeleteByID(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_ProductAPI_Routes(t *testing.T) {
	// given
	svc := &mockProductService{products: []service.ProductDto{}}
	r := chi.NewRouter()
	var writes int
	newHandler(svc).RegisterRoutes(r, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			writes++
			next.ServeHTTP(w, req)
		})
	})
	id := uuid.NewString()

	testCases := []struct {
		method       string
		path         string
		body         string
		expectedCode int
	}{
		{method: http.MethodGet, path: "/healthz", expectedCode: http.StatusOK},
		{method: http.MethodGet, path: "/api/v1/products", expectedCode: http.StatusOK},
		{method: http.MethodDelete, path: "/api/v1/products/" + id, expectedCode: http.StatusNoContent},
		{method: http.MethodDelete, path: "/api/v1/products/" + id + "/images", body: `{"image":"a.jpg"}`, expectedCode: http.StatusOK},
	}
	for _, tc := range testCases {
		// when
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		// then
		assert.Equal(t, tc.expectedCode, rr.Code, "%s %s", tc.method, tc.path)
	}
	assert.Equal(t, 2, writes, "only the write routes pass through the write middlewares")
	assert.Equal(t, "a.jpg", svc.gotImageRef)
}
