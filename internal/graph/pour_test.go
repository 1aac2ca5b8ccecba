package graph

import (
	"context"
	"testing"

	"github.com/notadamking/elemental/internal/playbook"
	"github.com/notadamking/elemental/internal/types"
	"github.com/notadamking/elemental/internal/workflow"
	"github.com/stretchr/testify/require"
)

type fakeLoader map[string]*playbook.Playbook

func (f fakeLoader) Load(id string) (*playbook.Playbook, error) {
	return f[id], nil
}

func TestPourCreatesWorkflowTasksAndEdges(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	loader := fakeLoader{
		"release": {
			ID: "release",
			Variables: []playbook.VariableSpec{
				{Name: "service", Required: true},
			},
			Steps: []playbook.Step{
				{ID: "build", TitleTemplate: "Build {{service}}"},
				{ID: "deploy", TitleTemplate: "Deploy {{service}}", DependsOn: []string{"build"}},
			},
		},
	}

	result, err := s.Pour(ctx, loader, PourInput{PlaybookID: "release", Vars: map[string]string{"service": "api"}}, "alice")
	require.NoError(t, err)
	require.Len(t, result.Tasks, 2)
	require.Equal(t, "Build api", result.Tasks[0].Title)
	require.Equal(t, "Deploy api", result.Tasks[1].Title)
	require.Len(t, result.ParentChildEdges, 2)
	require.Len(t, result.BlocksEdges, 1)
	require.Empty(t, result.SkippedStepIDs)

	deployTask, err := s.Get(ctx, result.Tasks[1].ID, GetOptions{})
	require.NoError(t, err)
	require.Equal(t, types.TaskBlocked, deployTask.(*types.Task).Status)
}

func TestPourSkipsStepsFailingCondition(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	loader := fakeLoader{
		"release": {
			ID: "release",
			Steps: []playbook.Step{
				{ID: "build", TitleTemplate: "Build"},
				{ID: "canary", TitleTemplate: "Canary", Condition: "env == 'prod'"},
			},
		},
	}

	result, err := s.Pour(ctx, loader, PourInput{PlaybookID: "release", Vars: map[string]string{"env": "staging"}}, "alice")
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, []string{"canary"}, result.SkippedStepIDs)
}

func TestPourAutoTransitionsWorkflowOnTaskCompletion(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	loader := fakeLoader{
		"simple": {
			ID: "simple",
			Steps: []playbook.Step{
				{ID: "only", TitleTemplate: "Only step"},
			},
		},
	}

	result, err := s.Pour(ctx, loader, PourInput{PlaybookID: "simple"}, "alice")
	require.NoError(t, err)

	_, err = s.Update(ctx, result.Tasks[0].ID, map[string]any{"status": string(types.TaskInProgress)}, "alice")
	require.NoError(t, err)
	wf, err := s.Get(ctx, result.Workflow.ID, GetOptions{})
	require.NoError(t, err)
	require.Equal(t, types.WorkflowRunning, wf.(*types.Workflow).Status)

	_, err = s.Update(ctx, result.Tasks[0].ID, map[string]any{"status": string(types.TaskClosed)}, "alice")
	require.NoError(t, err)
	wf, err = s.Get(ctx, result.Workflow.ID, GetOptions{})
	require.NoError(t, err)
	require.Equal(t, types.WorkflowCompleted, wf.(*types.Workflow).Status)
}

func TestPourWorkflowFailsWhenTaskIsDeleted(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	loader := fakeLoader{
		"simple": {
			ID: "simple",
			Steps: []playbook.Step{
				{ID: "only", TitleTemplate: "Only step"},
			},
		},
	}

	result, err := s.Pour(ctx, loader, PourInput{PlaybookID: "simple"}, "alice")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, result.Tasks[0].ID, DeleteOptions{Actor: "alice", Reason: "abandoned"}))

	wf, err := s.Get(ctx, result.Workflow.ID, GetOptions{})
	require.NoError(t, err)
	require.Equal(t, types.WorkflowFailed, wf.(*types.Workflow).Status)
}

func TestPourResolvesDescriptionTemplateToDocument(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	loader := fakeLoader{
		"release": {
			ID: "release",
			Steps: []playbook.Step{
				{ID: "build", TitleTemplate: "Build {{service}}", DescTemplate: "Build the {{service}} image"},
			},
		},
	}

	result, err := s.Pour(ctx, loader, PourInput{PlaybookID: "release", Vars: map[string]string{"service": "api"}}, "alice")
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)

	task := result.Tasks[0]
	require.NotNil(t, task.DescriptionRef)
	require.NotEqual(t, "Build the api image", *task.DescriptionRef, "DescriptionRef must be a Document id, not rendered text")

	doc, err := s.Get(ctx, *task.DescriptionRef, GetOptions{})
	require.NoError(t, err)
	require.Equal(t, "Build the api image", doc.(*types.Document).Content)

	fetched, err := s.Get(ctx, task.ID, GetOptions{Hydrate: true})
	require.NoError(t, err)
	require.Equal(t, "Build the api image", fetched.(*types.Task).Metadata["descriptionBody"])
}

var _ = workflow.Loader(fakeLoader{})
