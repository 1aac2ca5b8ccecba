package types

import (
	"encoding/json"
	"time"
)

// DependencyType is the closed-ish set of edge types between elements. It is
// declared as a string rather than a fixed enum because spec.md leaves the
// set open ("blocks, parent-child, relates-to, gate, …").
type DependencyType string

const (
	DepBlocks     DependencyType = "blocks"
	DepParentChild DependencyType = "parent-child"
	DepRelatesTo  DependencyType = "relates-to"
	DepGate       DependencyType = "gate"
)

// Dependency is a directed typed edge between two elements. The triple
// (SourceID, TargetID, Type) is the primary key.
type Dependency struct {
	SourceID  string         `json:"sourceId"`
	TargetID  string         `json:"targetId"`
	Type      DependencyType `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	CreatedBy string         `json:"createdBy"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// GateMeta decodes a gate dependency's generic Metadata map into the
// GateMetadata shape with encoding/json. Unknown keys are ignored and no
// Validation error is produced; a value of the wrong JSON type returns the
// decoding error.
func (d Dependency) GateMeta() (GateMetadata, error) {
	raw, err := json.Marshal(d.Metadata)
	if err != nil {
		return GateMetadata{}, err
	}
	var g GateMetadata
	if err := json.Unmarshal(raw, &g); err != nil {
		return GateMetadata{}, err
	}
	return g, nil
}

// WithGateMeta returns a copy of d with Metadata replaced by g's JSON
// representation, re-encoded as a generic map.
func (d Dependency) WithGateMeta(g GateMetadata) (Dependency, error) {
	raw, err := json.Marshal(g)
	if err != nil {
		return d, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return d, err
	}
	d.Metadata = m
	return d, nil
}

// GateApprovalMode selects between all-of and any-of approver quorum
// semantics for a gate edge's metadata, per spec.md §9's closed enumeration.
type GateApprovalMode string

const (
	GateAllOf GateApprovalMode = "all_of"
	GateAnyOf GateApprovalMode = "any_of"
)

// GateMetadata is the shape a "gate" dependency's Metadata is decoded into.
// Metadata of another shape is not rejected (see GateMeta).
type GateMetadata struct {
	Mode      GateApprovalMode `json:"mode"`
	Approvers []string         `json:"approvers"`
	Approved  []string         `json:"approved,omitempty"`
	Satisfied bool             `json:"satisfied"`
}

// IsSatisfied reports whether the approved set satisfies the configured mode.
func (g GateMetadata) IsSatisfied() bool {
	if len(g.Approvers) == 0 {
		return true
	}
	approvedSet := make(map[string]bool, len(g.Approved))
	for _, a := range g.Approved {
		approvedSet[a] = true
	}
	switch g.Mode {
	case GateAnyOf:
		for _, a := range g.Approvers {
			if approvedSet[a] {
				return true
			}
		}
		return false
	default: // GateAllOf is the default quorum mode
		for _, a := range g.Approvers {
			if !approvedSet[a] {
				return false
			}
		}
		return true
	}
}
