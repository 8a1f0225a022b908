package api

import "github.com/starford/laguz/internal/models"

// CreateDocumentRequest opens a new draft. Title is optional; when empty it
// is derived from the first line of the contents.
type CreateDocumentRequest struct {
	Title    string        `json:"title,omitempty"`
	Contents string        `json:"contents"`
	Tags     []string      `json:"tags,omitempty"`
	Format   models.Format `json:"format,omitempty"`
}

// UpdateDocumentRequest records an edit to an open document.
type UpdateDocumentRequest struct {
	Title    string        `json:"title,omitempty"`
	Contents string        `json:"contents"`
	Tags     []string      `json:"tags,omitempty"`
	Format   models.Format `json:"format,omitempty"`
}

// DraftStateResponse reports the draft's current key and save status.
type DraftStateResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// DocumentListResponse wraps the document list.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents"`
	Total     int               `json:"total"`
}
