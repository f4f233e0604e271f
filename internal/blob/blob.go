// Package blob stores product image payloads and resolves them to servable URLs.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Open when no blob exists for the reference.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidReference is returned for references that could escape the store namespace.
var ErrInvalidReference = errors.New("invalid blob reference")

// Store is a path addressed blob store shared by all products.
type Store interface {
	// Put stores the payload under name and returns its reference.
	Put(ctx context.Context, name string, r io.Reader) (string, error)

	// Open returns the payload of a stored blob.
	// Returns ErrNotFound if the blob does not exist.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref string) error

	// URL resolves a reference to an externally servable URL.
	URL(ref string) string
}

// validRef reports whether ref is a single, non special path element.
func validRef(ref string) bool {
	if ref == "" || ref == "." || ref == ".." {
		return false
	}
	return path.Base(ref) == ref && !strings.ContainsAny(ref, `/\`)
}
