package types

import (
	"regexp"
	"time"

	"github.com/notadamking/elemental/internal/errs"
)

// EntityClass classifies an Entity.
type EntityClass string

const (
	EntityAgent  EntityClass = "agent"
	EntityHuman  EntityClass = "human"
	EntitySystem EntityClass = "system"
)

func (c EntityClass) Valid() bool {
	switch c {
	case EntityAgent, EntityHuman, EntitySystem:
		return true
	}
	return false
}

var entityNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ReservedEntityNames are names no Entity may claim, regardless of classification.
var ReservedEntityNames = map[string]bool{
	"system":                true,
	"system:blocked-cache": true,
	"admin":                 true,
	"root":                  true,
}

type Entity struct {
	Base

	Name        string      `json:"name"`
	Class       EntityClass `json:"class"`
	PublicKeyB64 *string    `json:"publicKeyB64,omitempty"`
}

func (e *Entity) ElementBase() *Base { return &e.Base }

func NewEntity(id, creator string, now time.Time, name string, class EntityClass) *Entity {
	return &Entity{
		Base: Base{
			ID:        id,
			Kind:      KindEntity,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		Name:  name,
		Class: class,
	}
}

func (e *Entity) Validate() error {
	if e.Name == "" {
		return errs.Validation("types.Entity.Validate", errs.ReasonMissingRequiredField, "name is required", nil)
	}
	if len(e.Name) > maxNameLength {
		return errs.Validation("types.Entity.Validate", errs.ReasonInvalidInput, "name too long", nil)
	}
	if !entityNamePattern.MatchString(e.Name) {
		return errs.Validation("types.Entity.Validate", errs.ReasonInvalidInput, "name must start with a letter", map[string]any{"name": e.Name})
	}
	if ReservedEntityNames[e.Name] {
		return errs.Validation("types.Entity.Validate", errs.ReasonInvalidInput, "name is reserved", map[string]any{"name": e.Name})
	}
	if !e.Class.Valid() {
		return errs.Validation("types.Entity.Validate", errs.ReasonInvalidInput, "invalid entity classification", nil)
	}
	return nil
}

// IsDeactivated reports whether the entity's metadata marks it deactivated.
func (e *Entity) IsDeactivated() bool {
	if e.Metadata == nil {
		return false
	}
	v, ok := e.Metadata["deactivatedAt"]
	return ok && v != nil
}
