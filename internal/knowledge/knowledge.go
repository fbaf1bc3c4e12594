// Package knowledge owns tenant documents and their chunk embeddings.
package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist for the tenant.
var ErrNotFound = errors.New("document not found")

// DocumentType is the source format of a document.
type DocumentType string

const (
	TypePDF      DocumentType = "pdf"
	TypeText     DocumentType = "txt"
	TypeMarkdown DocumentType = "md"
	TypeWebsite  DocumentType = "website"
	TypeManual   DocumentType = "manual"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case TypePDF, TypeText, TypeMarkdown, TypeWebsite, TypeManual:
		return true
	}
	return false
}

// Document is a tenant-owned source text. It is immutable once stored.
type Document struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Type      DocumentType `json:"type"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// ChunkMetadata locates a chunk within its document.
type ChunkMetadata struct {
	ChunkIndex  int `json:"chunkIndex"`
	TotalChunks int `json:"totalChunks"`
}

// Chunk is one embedded segment of a document. TenantID always equals
// the owning document's TenantID.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId"`
	TenantID   string        `json:"tenantId"`
	Text       string        `json:"chunk"`
	Vector     []float32     `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// DocumentSummary is a document without its content.
type DocumentSummary struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	Title      string       `json:"title"`
	Type       DocumentType `json:"type"`
	ChunkCount int          `json:"chunkCount"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// ChunkRecord is a stored chunk joined with its document.
type ChunkRecord struct {
	Chunk
	Document DocumentSummary
}

// Store persists documents and chunks, always scoped by tenant.
type Store interface {
	// CreateDocument stores doc and all chunks atomically: either
	// everything is visible afterwards or nothing is.
	CreateDocument(ctx context.Context, doc *Document, chunks []Chunk) error
	// GetDocument returns ErrNotFound when id does not belong to tenantID.
	GetDocument(ctx context.Context, tenantID, id string) (*Document, error)
	// ListDocuments returns the tenant's documents, newest first.
	ListDocuments(ctx context.Context, tenantID string) ([]DocumentSummary, error)
	// ListChunks returns every chunk of tenantID in storage order. Records
	// of other tenants are never read.
	ListChunks(ctx context.Context, tenantID string) ([]ChunkRecord, error)
}
