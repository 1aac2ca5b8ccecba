// Package playbook defines the template model poured into a Workflow and
// the loader collaborator that resolves a playbook id to its definition.
package playbook

import (
	"fmt"
)

// VariableSpec declares one variable a playbook's steps may reference.
type VariableSpec struct {
	Name     string  `json:"name"`
	Required bool    `json:"required"`
	Default  *string `json:"default,omitempty"`
}

// Step is one node in a playbook's ordered step list.
type Step struct {
	ID             string   `json:"id"`
	TitleTemplate  string   `json:"titleTemplate"`
	DescTemplate   string   `json:"descriptionTemplate,omitempty"`
	DependsOn      []string `json:"dependsOn,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	AssigneeTemplate string `json:"assigneeTemplate,omitempty"`
	Priority       int      `json:"priority,omitempty"`
	Complexity     int      `json:"complexity,omitempty"`
	TaskType       string   `json:"taskType,omitempty"`
}

// Playbook is a template carrying a variable schema, an ordered step list,
// and an optional parent to inherit steps from.
type Playbook struct {
	ID         string         `json:"id"`
	ParentID   string         `json:"parentId,omitempty"`
	Variables  []VariableSpec `json:"variables,omitempty"`
	Steps      []Step         `json:"steps"`
}

// Loader resolves a playbook id to its definition, or (nil, nil) if the id
// is unknown.
type Loader interface {
	Load(id string) (*Playbook, error)
}

// Validate checks structural constraints independent of any loader.
func (p *Playbook) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playbook: id is required")
	}
	seen := map[string]bool{}
	for _, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("playbook %s: step with empty id", p.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("playbook %s: duplicate step id %q", p.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
