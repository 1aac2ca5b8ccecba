package types

import "time"

// WorkflowStatus is the status machine for a Workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowRunning, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

type Workflow struct {
	Base

	Title         string         `json:"title"`
	Status        WorkflowStatus `json:"status"`
	PlaybookRef   *string        `json:"playbookRef,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Ephemeral     bool           `json:"ephemeral"`
}

func (w *Workflow) ElementBase() *Base { return &w.Base }

func NewWorkflow(id, creator string, now time.Time, title string) *Workflow {
	return &Workflow{
		Base: Base{
			ID:        id,
			Kind:      KindWorkflow,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		Title:  title,
		Status: WorkflowPending,
	}
}

func (w *Workflow) Validate() error {
	if w.Title == "" {
		return errTitleRequired
	}
	if len(w.Title) > maxTitleLength {
		return errTitleTooLong
	}
	if !w.Status.Valid() {
		return errInvalidTaskStatus
	}
	return nil
}
