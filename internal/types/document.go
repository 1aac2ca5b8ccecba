package types

import (
	"time"

	"github.com/notadamking/elemental/internal/errs"
)

type Document struct {
	Base

	ContentType       string  `json:"contentType"`
	Content           string  `json:"content"`
	Version           int     `json:"version"`
	PreviousVersionID *string `json:"previousVersionId,omitempty"`
}

func (d *Document) ElementBase() *Base { return &d.Base }

func NewDocument(id, creator string, now time.Time, contentType, content string) *Document {
	return &Document{
		Base: Base{
			ID:        id,
			Kind:      KindDocument,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		ContentType: contentType,
		Content:     content,
		Version:     1,
	}
}

func (d *Document) Validate() error {
	if d.ContentType == "" {
		return errs.Validation("types.Document.Validate", errs.ReasonMissingRequiredField, "contentType is required", nil)
	}
	if d.Version < 1 {
		return errs.Validation("types.Document.Validate", errs.ReasonInvalidInput, "version must be >= 1", nil)
	}
	return nil
}

// DocumentVersion is one historical version row for a Document, recorded in
// the document_versions table on every update.
type DocumentVersion struct {
	DocumentID string    `json:"documentId"`
	Version    int       `json:"version"`
	Payload    Document  `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
}
