package db

import (
	"time"

	"github.com/google/uuid"
)

// Blob represents a stored binary artifact
type Blob struct {
	ID          uuid.UUID `json:"id"`
	Namespace   string    `json:"namespace"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobInput represents input for saving a blob
type BlobInput struct {
	Namespace   string
	Name        string
	ContentType string
	Content     []byte
}
