package workflow

import (
	"fmt"

	"github.com/notadamking/elemental/internal/playbook"
)

// Loader resolves a playbook id to its definition; structurally satisfied
// by playbook.DirLoader (and any other playbook.Loader).
type Loader = playbook.Loader

// maxInheritanceDepth bounds the parent chain walked by resolveChain,
// guarding against a cyclic playbook reference.
const maxInheritanceDepth = 20

// ResolvedStep is one playbook step after inheritance resolution, before
// condition filtering.
type ResolvedStep = playbook.Step

// ResolvedPlaybook is the flattened result of walking a playbook's
// inheritance chain: parent steps first, overridden by matching child
// step ids, plus the merged variable schema.
type ResolvedPlaybook struct {
	ID        string
	Variables []playbook.VariableSpec
	Steps     []ResolvedStep
}

// ResolveInheritance walks id's parent chain (parent resolved before
// child) and flattens it into one step list, with a later (more specific)
// definition of a step id overriding an earlier one, and variable specs
// merged the same way.
func ResolveInheritance(loader Loader, id string) (*ResolvedPlaybook, error) {
	chain, err := resolveChain(loader, id, map[string]bool{})
	if err != nil {
		return nil, err
	}

	stepOrder := []string{}
	stepByID := map[string]ResolvedStep{}
	varOrder := []string{}
	varByName := map[string]playbook.VariableSpec{}

	for _, pb := range chain {
		for _, v := range pb.Variables {
			if _, ok := varByName[v.Name]; !ok {
				varOrder = append(varOrder, v.Name)
			}
			varByName[v.Name] = v
		}
		for _, s := range pb.Steps {
			if _, ok := stepByID[s.ID]; !ok {
				stepOrder = append(stepOrder, s.ID)
			}
			stepByID[s.ID] = s
		}
	}

	resolved := &ResolvedPlaybook{ID: id}
	for _, name := range varOrder {
		resolved.Variables = append(resolved.Variables, varByName[name])
	}
	for _, sid := range stepOrder {
		resolved.Steps = append(resolved.Steps, stepByID[sid])
	}
	return resolved, nil
}

// resolveChain returns the playbook chain from root ancestor to id itself.
func resolveChain(loader Loader, id string, seen map[string]bool) ([]*playbook.Playbook, error) {
	if seen[id] {
		return nil, fmt.Errorf("workflow: playbook inheritance cycle at %q", id)
	}
	if len(seen) >= maxInheritanceDepth {
		return nil, fmt.Errorf("workflow: playbook inheritance chain exceeds depth %d", maxInheritanceDepth)
	}
	seen[id] = true

	pb, err := loader.Load(id)
	if err != nil {
		return nil, fmt.Errorf("workflow: loading playbook %q: %w", id, err)
	}
	if pb == nil {
		return nil, fmt.Errorf("workflow: playbook %q not found", id)
	}

	var chain []*playbook.Playbook
	if pb.ParentID != "" {
		parentChain, err := resolveChain(loader, pb.ParentID, seen)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parentChain...)
	}
	return append(chain, pb), nil
}

// MergeVariables merges a resolved playbook's declared defaults with
// caller-supplied values, then validates every required variable is
// present. Caller-supplied values win over defaults.
func MergeVariables(resolved *ResolvedPlaybook, supplied map[string]string) (map[string]string, error) {
	out := map[string]string{}
	for _, v := range resolved.Variables {
		if v.Default != nil {
			out[v.Name] = *v.Default
		}
	}
	for k, v := range supplied {
		out[k] = v
	}
	for _, v := range resolved.Variables {
		if v.Required {
			if _, ok := out[v.Name]; !ok {
				return nil, fmt.Errorf("workflow: required variable %q not supplied", v.Name)
			}
		}
	}
	return out, nil
}

// FilterSteps evaluates each step's condition (if any) against the
// resolved variables, returning the surviving steps in original order and
// the ids of steps dropped by an unsatisfied condition.
func FilterSteps(steps []ResolvedStep, vars map[string]string) (surviving []ResolvedStep, skipped []string, err error) {
	for _, step := range steps {
		if step.Condition == "" {
			surviving = append(surviving, step)
			continue
		}
		cond, err := ParseCondition(step.Condition)
		if err != nil {
			return nil, nil, err
		}
		ok, err := cond.Evaluate(vars)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			surviving = append(surviving, step)
		} else {
			skipped = append(skipped, step.ID)
		}
	}
	return surviving, skipped, nil
}
