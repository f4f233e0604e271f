// Package e2e provides end-to-end tests for the catalog application.
// The suite runs the real HTTP handler in an `httptest.Server` on top of a PostgreSQL container
// started with `testcontainers-go` and a directory backed image store.
//
// Each test starts from an empty products table and an empty uploads directory.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/gocatalog/db"
	"github.com/abgdnv/gocatalog/internal/app"
	"github.com/abgdnv/gocatalog/internal/blob"
	"github.com/abgdnv/gocatalog/internal/config"
	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/abgdnv/gocatalog/internal/store"
	"github.com/abgdnv/gocatalog/pkg/bootstrap"
	"github.com/abgdnv/gocatalog/pkg/messaging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipE2ETests is the environment variable that can be set to skip E2E tests.
const skipE2ETests = "CATALOG_SKIP_E2E_TESTS"

// productURL is the base URL of the JSON API.
const productURL = "/api/v1/products"

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 64)...)
)

type CatalogE2ESuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer // PostgreSQL container for E2E tests
	dbPool      *pgxpool.Pool               // connection pool shared with the store
	uploadsDir  string                      // directory of the file backed image store
	server      *httptest.Server
	httpClient  *http.Client // does not follow redirects
	appCfg      *config.Config
	logger      *slog.Logger
	ctx         context.Context
}

// testConfig creates a valid configuration for the catalog application.
func testConfig(connStr, uploadsDir string) *config.Config {
	var cfg config.Config

	cfg.HTTPServer.Port = 8080 // httptest.Server assigns its own port
	cfg.HTTPServer.MaxHeaderBytes = 1 << 20
	cfg.HTTPServer.MaxUploadBytes = 1 << 20
	cfg.HTTPServer.Timeout.Read = 10 * time.Minute
	cfg.HTTPServer.Timeout.Write = 10 * time.Minute
	cfg.HTTPServer.Timeout.Idle = 60 * time.Minute
	cfg.HTTPServer.Timeout.ReadHeader = 5 * time.Minute

	cfg.Database.URL = connStr
	cfg.Database.Timeout = 30 * time.Second
	cfg.Storage.Dir = uploadsDir
	cfg.Session.Secret = "e2e-session-secret-0123456789abcdef"

	return &cfg
}

// SetupSuite starts PostgreSQL, applies the embedded migrations and starts the application server.
func (s *CatalogE2ESuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// 1. Start a PostgreSQL container and wait for it to accept connections
	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("catalog"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	// 2. Apply the embedded migrations
	require.NoError(s.T(), db.Migrate(connStr), "Failed to apply migrations")
	s.logger.Info("Migrations applied for E2E tests")

	// 3. Create the pool and the image directory
	s.dbPool, err = bootstrap.NewDbPool(s.ctx, connStr, 30*time.Second)
	require.NoError(s.T(), err, "Failed to create pgx pool")
	s.uploadsDir, err = os.MkdirTemp("", "catalog-e2e-uploads")
	require.NoError(s.T(), err)

	s.appCfg = testConfig(connStr, s.uploadsDir)
	require.NoError(s.T(), s.appCfg.Validate())

	// 4. Wire the application the way main does
	files, err := blob.NewFileStore(s.appCfg.Storage.Dir, s.appCfg.Storage.BaseURL)
	require.NoError(s.T(), err)
	deps, err := app.SetupDependencies(store.NewPgStore(s.dbPool), files, files.Handler(), messaging.NopPublisher{},
		nil, s.appCfg, s.logger)
	require.NoError(s.T(), err, "Failed to setup application for E2E")

	s.server = httptest.NewServer(app.SetupHttpHandler(deps))
	s.httpClient = s.server.Client()
	s.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	s.logger.Info("E2E test server started", "url", s.server.URL)
}

// TearDownSuite cleans up resources after all tests in the suite have run.
func (s *CatalogE2ESuite) TearDownSuite() {
	if s.server != nil {
		s.server.Close()
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.uploadsDir != "" {
		_ = os.RemoveAll(s.uploadsDir)
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("Failed to terminate E2E PostgreSQL container", "error", err)
		}
	}
}

// SetupTest empties the products table and the uploads directory.
func (s *CatalogE2ESuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products")
	require.NoError(s.T(), err, "Failed to truncate products table")

	entries, err := os.ReadDir(s.uploadsDir)
	require.NoError(s.T(), err)
	for _, e := range entries {
		require.NoError(s.T(), os.RemoveAll(filepath.Join(s.uploadsDir, e.Name())))
	}
}

func TestCatalogE2E(t *testing.T) {
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping E2E tests based on " + skipE2ETests + " env var")
	}
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	suite.Run(t, new(CatalogE2ESuite))
}

// --------------------------------------------------------------------------
// ---------- Payload structures and Helper methods for E2E tests -----------
// --------------------------------------------------------------------------

type imageFile struct {
	name    string
	content []byte
}

type productForm struct {
	name        string
	description string
	price       string
	images      []imageFile
}

// multipartBody encodes the form the way the product pages submit it.
func multipartBody(t *testing.T, f productForm) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("name", f.name))
	require.NoError(t, mw.WriteField("description", f.description))
	require.NoError(t, mw.WriteField("price", f.price))
	for _, img := range f.images {
		fw, err := mw.CreateFormFile("images[]", img.name)
		require.NoError(t, err)
		_, err = fw.Write(img.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (s *CatalogE2ESuite) do(method, path, contentType string, body io.Reader) *http.Response {
	req, err := http.NewRequestWithContext(s.ctx, method, s.server.URL+path, body)
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.httpClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *CatalogE2ESuite) decode(resp *http.Response, v any) {
	defer func() { _ = resp.Body.Close() }()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

func (s *CatalogE2ESuite) readBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return string(data)
}

func (s *CatalogE2ESuite) createProduct(f productForm) service.ProductDto {
	body, contentType := multipartBody(s.T(), f)
	resp := s.do(http.MethodPost, productURL, contentType, body)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var created service.ProductDto
	s.decode(resp, &created)
	return created
}

func (s *CatalogE2ESuite) uploadedFiles() []string {
	entries, err := os.ReadDir(s.uploadsDir)
	s.Require().NoError(err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// --------------------------------------------------------------------------
// ------------------------------- Test cases -------------------------------
// --------------------------------------------------------------------------

func (s *CatalogE2ESuite) TestProductLifecycle() {
	// given
	created := s.createProduct(productForm{
		name: "Pen", description: "Blue ink", price: "10",
		images: []imageFile{{name: "a.jpg", content: jpegBytes}, {name: "b.png", content: pngBytes}},
	})
	s.Require().Len(created.Images, 2)
	s.Equal("10", created.Price.String())
	s.ElementsMatch(created.ImageRefs(), s.uploadedFiles())

	// when the first image is fetched
	resp := s.do(http.MethodGet, created.Images[0].URL, "", nil)

	// then
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(string(jpegBytes), s.readBody(resp))

	// when the first image is removed
	removed := created.Images[0].Ref
	resp = s.do(http.MethodDelete, productURL+"/"+created.ID+"/images", "application/json",
		strings.NewReader(`{"image":"`+removed+`"}`))
	s.Equal(http.StatusOK, s.consume(resp))

	// then
	var found service.ProductDto
	s.decode(s.do(http.MethodGet, productURL+"/"+created.ID, "", nil), &found)
	s.Equal([]string{created.Images[1].Ref}, found.ImageRefs())
	s.NotContains(s.uploadedFiles(), removed)

	// when the product is deleted
	resp = s.do(http.MethodDelete, productURL+"/"+created.ID, "", nil)
	s.Equal(http.StatusNoContent, s.consume(resp))

	// then
	resp = s.do(http.MethodGet, productURL+"/"+created.ID, "", nil)
	s.Equal(http.StatusNotFound, s.consume(resp))
	s.Empty(s.uploadedFiles())
}

func (s *CatalogE2ESuite) TestCreate_Validation() {
	testCases := []struct {
		name          string
		form          productForm
		expectedField string
	}{
		{
			name:          "Empty name",
			form:          productForm{name: "", description: "Blue ink", price: "10"},
			expectedField: "name",
		},
		{
			name:          "Negative price",
			form:          productForm{name: "Pen", description: "Blue ink", price: "-1"},
			expectedField: "price",
		},
		{
			name:          "Price above the column range",
			form:          productForm{name: "Pen", description: "Blue ink", price: "100000000000"},
			expectedField: "price",
		},
		{
			name:          "Price is not a number",
			form:          productForm{name: "Pen", description: "Blue ink", price: "ten"},
			expectedField: "price",
		},
		{
			name: "Disallowed image type",
			form: productForm{name: "Pen", description: "Blue ink", price: "10",
				images: []imageFile{{name: "notes.txt", content: []byte("hello")}}},
			expectedField: "images",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			// given
			body, contentType := multipartBody(s.T(), tc.form)

			// when
			resp := s.do(http.MethodPost, productURL, contentType, body)

			// then
			s.Equal(http.StatusBadRequest, resp.StatusCode)
			s.Contains(s.readBody(resp), tc.expectedField)
			s.Empty(s.uploadedFiles())

			var products []service.ProductDto
			s.decode(s.do(http.MethodGet, productURL, "", nil), &products)
			s.Empty(products)
		})
	}
}

func (s *CatalogE2ESuite) TestUpdate_AppendsImages() {
	// given
	created := s.createProduct(productForm{
		name: "Pen", description: "Blue ink", price: "10",
		images: []imageFile{{name: "a.jpg", content: jpegBytes}},
	})
	body, contentType := multipartBody(s.T(), productForm{
		name: "Fountain pen", description: "Black ink", price: "12.50",
		images: []imageFile{{name: "c.png", content: pngBytes}},
	})

	// when
	resp := s.do(http.MethodPut, productURL+"/"+created.ID, contentType, body)

	// then
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var updated service.ProductDto
	s.decode(resp, &updated)
	s.Equal("Fountain pen", updated.Name)
	s.Equal("12.5", updated.Price.String())
	s.Require().Len(updated.Images, 2)
	s.Equal(created.Images[0].Ref, updated.Images[0].Ref)
	s.Equal(created.Version+1, updated.Version)
	s.Len(s.uploadedFiles(), 2)
}

func (s *CatalogE2ESuite) TestUpdate_NotFound() {
	// given
	body, contentType := multipartBody(s.T(), productForm{name: "Pen", description: "Blue ink", price: "10"})

	// when
	resp := s.do(http.MethodPut, productURL+"/00000000-0000-0000-0000-000000000001", contentType, body)

	// then
	s.Equal(http.StatusNotFound, s.consume(resp))
}

func (s *CatalogE2ESuite) TestPages_CreateRedirectsWithFlash() {
	// given
	body, contentType := multipartBody(s.T(), productForm{
		name: "Pen", description: "Blue ink", price: "10",
		images: []imageFile{{name: "b.png", content: pngBytes}},
	})

	// when
	resp := s.do(http.MethodPost, "/products", contentType, body)
	_ = s.consume(resp)

	// then
	s.Require().Equal(http.StatusSeeOther, resp.StatusCode)
	s.Equal("/products", resp.Header.Get("Location"))

	// when the list is opened with the session cookie
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.server.URL+"/products", nil)
	s.Require().NoError(err)
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	page, err := s.httpClient.Do(req)
	s.Require().NoError(err)

	// then
	s.Equal(http.StatusOK, page.StatusCode)
	html := s.readBody(page)
	s.Contains(html, "Product Created!")
	s.Contains(html, "Pen")
	s.Len(s.uploadedFiles(), 1)
}

func (s *CatalogE2ESuite) TestPages_RemoveImage() {
	// given
	created := s.createProduct(productForm{
		name: "Pen", description: "Blue ink", price: "10",
		images: []imageFile{{name: "b.png", content: pngBytes}},
	})
	payload, err := json.Marshal(map[string]string{"image": created.Images[0].Ref, "product_id": created.ID})
	s.Require().NoError(err)

	// when
	resp := s.do(http.MethodDelete, "/products/image", "application/json", bytes.NewReader(payload))

	// then
	var result map[string]any
	s.decode(resp, &result)
	s.Equal(true, result["success"])
	s.Empty(s.uploadedFiles())
}

func (s *CatalogE2ESuite) TestPages_DeleteViaMethodOverride() {
	// given
	created := s.createProduct(productForm{name: "Pen", description: "Blue ink", price: "10"})
	form := url.Values{"_method": {"DELETE"}}

	// when
	resp := s.do(http.MethodPost, "/products/"+created.ID, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))

	// then
	s.Equal(http.StatusSeeOther, s.consume(resp))
	resp = s.do(http.MethodGet, "/products/"+created.ID, "", nil)
	s.Equal(http.StatusNotFound, s.consume(resp))
}

// consume drains and closes the body and returns the status code.
func (s *CatalogE2ESuite) consume(resp *http.Response) int {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}
