package types

import (
	"fmt"

	"github.com/notadamking/elemental/internal/errs"
)

const maxTitleLength = 500
const maxNameLength = 200

var (
	errTitleRequired     = errs.Validation("types.Validate", errs.ReasonMissingRequiredField, "title is required", nil)
	errTitleTooLong      = errs.Validation("types.Validate", errs.ReasonInvalidInput, fmt.Sprintf("title must be %d characters or less", maxTitleLength), nil)
	errInvalidTaskStatus = errs.Validation("types.Validate", errs.ReasonInvalidInput, "invalid task status", nil)
	errInvalidPriority   = errs.Validation("types.Validate", errs.ReasonInvalidInput, "priority must be between 1 and 5", nil)
	errInvalidComplexity = errs.Validation("types.Validate", errs.ReasonInvalidInput, "complexity must be between 1 and 5", nil)
)

// Validatable is implemented by every variant that has type-specific field
// constraints beyond Base's common shape.
type Validatable interface {
	Validate() error
}

// ValidateElement checks the fields common to every variant (Base) and then
// dispatches to the variant's own Validate method when present.
func ValidateElement(e Element) error {
	b := e.ElementBase()
	if b.ID == "" {
		return errs.Validation("types.ValidateElement", errs.ReasonInvalidID, "id is required", nil)
	}
	if !b.Kind.Valid() {
		return errs.Validation("types.ValidateElement", errs.ReasonInvalidInput, fmt.Sprintf("unknown element kind %q", b.Kind), map[string]any{"kind": string(b.Kind)})
	}
	if b.CreatedBy == "" {
		return errs.Validation("types.ValidateElement", errs.ReasonMissingRequiredField, "createdBy is required", nil)
	}
	if v, ok := e.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
