package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	perrors "github.com/abgdnv/gocatalog/internal/errors"
	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

// allowedExtensions lists the accepted client file name extensions.
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// allowedTypes maps accepted detected MIME types to the extension used for the stored blob.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Upload is one image file submitted with a create or update.
type Upload struct {
	// Filename is the client supplied name; it is only used for validation and logs.
	Filename string
	Content  io.Reader
}

// preparedUpload is an upload whose content type was verified.
type preparedUpload struct {
	filename string
	mimeType string
	ext      string
	content  io.Reader
}

// prepareUploads checks every upload before anything is written,
// so a bad file in the batch fails the call without touching the blob store.
func prepareUploads(uploads []Upload) ([]preparedUpload, error) {
	prepared := make([]preparedUpload, 0, len(uploads))
	for i, u := range uploads {
		p, err := prepareUpload(u)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		prepared = append(prepared, p)
	}
	return prepared, nil
}

func prepareUpload(u Upload) (preparedUpload, error) {
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return preparedUpload{}, fmt.Errorf("%w: %q must be a jpg, jpeg or png file", perrors.ErrUnsupportedMedia, u.Filename)
	}
	if u.Content == nil {
		return preparedUpload{}, fmt.Errorf("%w: %q has no content", perrors.ErrUnsupportedMedia, u.Filename)
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(u.Content, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return preparedUpload{}, fmt.Errorf("%w: read %q: %w", perrors.ErrStorage, u.Filename, err)
	}
	header = header[:n]

	detected := mimetype.Detect(header)
	storedExt, ok := allowedTypes[detected.String()]
	if !ok {
		return preparedUpload{}, fmt.Errorf("%w: %q is %s, not a jpeg or png image", perrors.ErrUnsupportedMedia, u.Filename, detected.String())
	}
	return preparedUpload{
		filename: u.Filename,
		mimeType: detected.String(),
		ext:      storedExt,
		content:  io.MultiReader(bytes.NewReader(header), u.Content),
	}, nil
}
