// Package form decodes multipart product submissions shared by the HTML and JSON transports.
package form

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/abgdnv/gocatalog/internal/service"
)

// memoryLimit is the part of a multipart body kept in memory; the rest spills to temp files.
const memoryLimit = 8 << 20

// ErrTooLarge is returned when the request body exceeds the configured upload limit.
var ErrTooLarge = errors.New("request body too large")

// ImageFields are the multipart field names accepted for image files.
var ImageFields = []string{"images[]", "images"}

// Product is a decoded product submission. Close must be called once the uploads were consumed.
type Product struct {
	Fields  service.ProductFieldsDto
	Uploads []service.Upload

	form  *multipart.Form
	files []multipart.File
}

// ParseProduct reads name, description, price and the image files of a multipart request.
// A body without multipart content still yields the url encoded fields.
func ParseProduct(w http.ResponseWriter, r *http.Request, maxBytes int64) (*Product, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	err := r.ParseMultipartForm(memoryLimit)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxErr.Limit)
		}
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	p := &Product{
		Fields: service.ProductFieldsDto{
			Name:        r.FormValue("name"),
			Description: r.FormValue("description"),
			Price:       r.FormValue("price"),
		},
		form: r.MultipartForm,
	}
	if r.MultipartForm == nil {
		return p, nil
	}

	for _, field := range ImageFields {
		for _, header := range r.MultipartForm.File[field] {
			// browsers send an empty part when no file was picked
			if header.Filename == "" && header.Size == 0 {
				continue
			}
			file, err := header.Open()
			if err != nil {
				p.Close()
				return nil, fmt.Errorf("failed to open upload %q: %w", header.Filename, err)
			}
			p.files = append(p.files, file)
			p.Uploads = append(p.Uploads, service.Upload{Filename: header.Filename, Content: file})
		}
	}
	return p, nil
}

// Close releases the opened files and the temp files of the form.
func (p *Product) Close() {
	for _, f := range p.files {
		_ = f.Close()
	}
	p.files = nil
	if p.form != nil {
		_ = p.form.RemoveAll()
	}
}
