package types

import (
	"time"

	"github.com/notadamking/elemental/internal/errs"
)

type Library struct {
	Base

	Name           string  `json:"name"`
	DescriptionRef *string `json:"descriptionRef,omitempty"`
}

func (l *Library) ElementBase() *Base { return &l.Base }

func NewLibrary(id, creator string, now time.Time, name string) *Library {
	return &Library{
		Base: Base{
			ID:        id,
			Kind:      KindLibrary,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		Name: name,
	}
}

func (l *Library) Validate() error {
	if l.Name == "" {
		return errs.Validation("types.Library.Validate", errs.ReasonMissingRequiredField, "name is required", nil)
	}
	return nil
}
