// Package app contains the application setup for the catalog service.
package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/abgdnv/gocatalog/internal/blob"
	"github.com/abgdnv/gocatalog/internal/config"
	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/abgdnv/gocatalog/internal/store"
	"github.com/abgdnv/gocatalog/internal/transport/rest"
	"github.com/abgdnv/gocatalog/internal/transport/webui"
	"github.com/abgdnv/gocatalog/internal/view"
	"github.com/abgdnv/gocatalog/pkg/messaging"
	"github.com/abgdnv/gocatalog/pkg/server"
	pkgweb "github.com/abgdnv/gocatalog/pkg/web"
	"github.com/abgdnv/gocatalog/web"

	"github.com/go-chi/chi/v5"
)

type Dependencies struct {
	ProductService service.ProductService
	Views          *view.Engine
	Flashes        *webui.Flashes
	// Uploads serves stored blobs below Config.Storage.BaseURL; nil when the blob store is not servable.
	Uploads http.Handler
	// Metrics is the Prometheus scrape handler; nil when metrics are disabled.
	Metrics http.Handler
	Config  *config.Config
	Logger  *slog.Logger
}

// SetupDependencies builds the product service and the page renderer on top of the given stores.
func SetupDependencies(productStore store.ProductStore, blobs blob.Store, uploads http.Handler, publisher messaging.Publisher,
	metrics http.Handler, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	views, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Dependencies{
		ProductService: service.NewService(productStore, blobs, publisher, logger),
		Views:          views,
		Flashes:        webui.NewFlashes(cfg.Session.Name, cfg.Session.Secret, cfg.Session.Secure),
		Uploads:        uploads,
		Metrics:        metrics,
		Config:         cfg,
		Logger:         logger,
	}, nil
}

// SetupHttpHandler initializes the router with every catalog route and the tracing middleware.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return server.Instrument(mux, "catalog")
}

// wireRoutes sets up the HTML pages, the JSON API, static assets and uploaded images.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	cfg := deps.Config
	var writes []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled() {
		writes = append(writes, pkgweb.RateLimitByIP(cfg.RateLimit.Requests, cfg.RateLimit.Window, deps.Logger))
	}

	pages := webui.NewHandler(deps.ProductService, deps.Views, deps.Flashes, deps.Logger, cfg.HTTPServer.MaxUploadBytes)
	mux.Group(func(r chi.Router) {
		r.Use(pkgweb.SecureHeaders(cfg.Session.Secure))
		pages.RegisterRoutes(r, writes...)
	})

	api := rest.NewHandler(deps.ProductService, deps.Logger, cfg.HTTPServer.MaxUploadBytes)
	api.RegisterRoutes(mux, writes...)

	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static assets are missing: %v", err))
	}
	mux.Handle("/static/*", http.StripPrefix("/static", http.FileServerFS(static)))

	if deps.Uploads != nil {
		mux.Handle(cfg.Storage.BaseURL+"/*", http.StripPrefix(cfg.Storage.BaseURL, deps.Uploads))
	}
	if deps.Metrics != nil {
		mux.Handle(cfg.Telemetry.Metrics.Path, deps.Metrics)
	}
}

// SetupHttpServer creates and configures an HTTP server for the catalog service.
func SetupHttpServer(deps *Dependencies) *http.Server {
	cfg := deps.Config
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
