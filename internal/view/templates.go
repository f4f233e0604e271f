// Package view renders the catalog HTML pages.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/abgdnv/gocatalog/internal/service"
	"github.com/abgdnv/gocatalog/web"
	"github.com/shopspring/decimal"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title string
	Flash string
	Data  any
}

// ProductsPage is the data of the product list.
type ProductsPage struct {
	Products []service.ProductDto
}

// ProductPage is the data of the show, create and edit pages.
// Form carries the submitted values when a form is rendered again with Errors.
type ProductPage struct {
	Product *service.ProductDto
	Form    service.ProductFieldsDto
	Errors  map[string]string
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"price": func(d decimal.Decimal) string {
			return d.StringFixed(2)
		},
		"firstImage": func(images []service.ImageDto) *service.ImageDto {
			if len(images) == 0 {
				return nil
			}
			return &images[0]
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html", "templates/products/*.html", "templates/errors/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData and writes it with the given status.
// The page is rendered to a buffer first so a template error never leaves a partial response.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
