package workflow

import (
	"testing"

	"github.com/notadamking/elemental/internal/playbook"
	"github.com/stretchr/testify/require"
)

type fakeLoader map[string]*playbook.Playbook

func (f fakeLoader) Load(id string) (*playbook.Playbook, error) {
	return f[id], nil
}

func strPtr(s string) *string { return &s }

func TestResolveInheritanceChildOverridesParentStep(t *testing.T) {
	loader := fakeLoader{
		"base": {
			ID: "base",
			Variables: []playbook.VariableSpec{
				{Name: "env", Required: true},
			},
			Steps: []playbook.Step{
				{ID: "build", TitleTemplate: "Build"},
				{ID: "test", TitleTemplate: "Test"},
			},
		},
		"child": {
			ID:       "child",
			ParentID: "base",
			Steps: []playbook.Step{
				{ID: "test", TitleTemplate: "Test {{env}}"},
				{ID: "deploy", TitleTemplate: "Deploy"},
			},
		},
	}

	resolved, err := ResolveInheritance(loader, "child")
	require.NoError(t, err)
	require.Len(t, resolved.Steps, 3)
	require.Equal(t, "build", resolved.Steps[0].ID)
	require.Equal(t, "test", resolved.Steps[1].ID)
	require.Equal(t, "Test {{env}}", resolved.Steps[1].TitleTemplate)
	require.Equal(t, "deploy", resolved.Steps[2].ID)
}

func TestResolveInheritanceDetectsCycle(t *testing.T) {
	loader := fakeLoader{
		"a": {ID: "a", ParentID: "b"},
		"b": {ID: "b", ParentID: "a"},
	}
	_, err := ResolveInheritance(loader, "a")
	require.Error(t, err)
}

func TestMergeVariablesAppliesDefaultsAndRequiresMissing(t *testing.T) {
	resolved := &ResolvedPlaybook{
		Variables: []playbook.VariableSpec{
			{Name: "env", Required: true, Default: strPtr("staging")},
			{Name: "owner", Required: true},
		},
	}

	vars, err := MergeVariables(resolved, map[string]string{"owner": "alice"})
	require.NoError(t, err)
	require.Equal(t, "staging", vars["env"])
	require.Equal(t, "alice", vars["owner"])

	_, err = MergeVariables(resolved, map[string]string{})
	require.Error(t, err)
}

func TestMergeVariablesCallerValueOverridesDefault(t *testing.T) {
	resolved := &ResolvedPlaybook{
		Variables: []playbook.VariableSpec{
			{Name: "env", Default: strPtr("staging")},
		},
	}
	vars, err := MergeVariables(resolved, map[string]string{"env": "prod"})
	require.NoError(t, err)
	require.Equal(t, "prod", vars["env"])
}

func TestFilterStepsDropsUnsatisfiedCondition(t *testing.T) {
	steps := []playbook.Step{
		{ID: "always"},
		{ID: "prod-only", Condition: "env == 'prod'"},
	}
	surviving, skipped, err := FilterSteps(steps, map[string]string{"env": "staging"})
	require.NoError(t, err)
	require.Len(t, surviving, 1)
	require.Equal(t, "always", surviving[0].ID)
	require.Equal(t, []string{"prod-only"}, skipped)
}
