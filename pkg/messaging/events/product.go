// Package events contains the catalog events published on the message broker.
package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/gocatalog/pkg/messaging"
	"github.com/google/uuid"
)

// ProductChangedEvent is published after a product row was created or updated.
type ProductChangedEvent struct {
	subject    string
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	ImageCount int       `json:"image_count"`
	Version    int32     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewProductCreatedEvent builds the products.created event.
func NewProductCreatedEvent(id uuid.UUID, name, price string, imageCount int, version int32) ProductChangedEvent {
	return ProductChangedEvent{
		subject:    messaging.ProductsCreatedSubject,
		ProductID:  id,
		Name:       name,
		Price:      price,
		ImageCount: imageCount,
		Version:    version,
		OccurredAt: time.Now().UTC(),
	}
}

// NewProductUpdatedEvent builds the products.updated event.
func NewProductUpdatedEvent(id uuid.UUID, name, price string, imageCount int, version int32) ProductChangedEvent {
	e := NewProductCreatedEvent(id, name, price, imageCount, version)
	e.subject = messaging.ProductsUpdatedSubject
	return e
}

func (e ProductChangedEvent) Subject() string {
	return e.subject
}

func (e ProductChangedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// ProductDeletedEvent is published after a product row was deleted.
// LeakedImages lists the references whose blobs could not be removed.
type ProductDeletedEvent struct {
	ProductID    uuid.UUID `json:"product_id"`
	LeakedImages []string  `json:"leaked_images,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (e ProductDeletedEvent) Subject() string {
	return messaging.ProductsDeletedSubject
}

func (e ProductDeletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
