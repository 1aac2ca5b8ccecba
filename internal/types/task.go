package types

import "time"

// TaskStatus is the status machine for a Task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskClosed     TaskStatus = "closed"
	TaskDeferred   TaskStatus = "deferred"
	TaskTombstone  TaskStatus = "tombstone"
)

// Valid reports whether s is one of the closed set of Task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskBlocked, TaskClosed, TaskDeferred, TaskTombstone:
		return true
	}
	return false
}

// IsLive reports whether s is a non-tombstoned status.
func (s TaskStatus) IsLive() bool { return s != TaskTombstone }

// IsTerminal reports whether s represents a status from which ready()
// excludes the task (closed is terminal; deferred/blocked are not dead
// ends, they can still become ready again).
func (s TaskStatus) IsTerminal() bool { return s == TaskClosed || s == TaskTombstone }

// Task is the Task element variant.
type Task struct {
	Base

	Title          string     `json:"title"`
	Status         TaskStatus `json:"status"`
	Priority       int        `json:"priority"`
	Complexity     int        `json:"complexity"`
	TaskType       string     `json:"taskType"`
	Assignee       *string    `json:"assignee,omitempty"`
	Owner          *string    `json:"owner,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	ScheduledFor   *time.Time `json:"scheduledFor,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	CloseReason    *string    `json:"closeReason,omitempty"`
	DescriptionRef *string    `json:"descriptionRef,omitempty"`
	DesignRef      *string    `json:"designRef,omitempty"`
}

func (t *Task) ElementBase() *Base { return &t.Base }

// NewTask builds a Task with factory defaults: status open, priority and
// complexity default to 3 (middle of the 1..5 range) unless overridden by
// the caller via input fields.
func NewTask(id, creator string, now time.Time, title string) *Task {
	return &Task{
		Base: Base{
			ID:        id,
			Kind:      KindTask,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		Title:      title,
		Status:     TaskOpen,
		Priority:   3,
		Complexity: 3,
		TaskType:   "task",
	}
}

// Validate checks Task-specific field constraints beyond the common Base
// validation performed by ValidateElement.
func (t *Task) Validate() error {
	if t.Title == "" {
		return errTitleRequired
	}
	if len(t.Title) > maxTitleLength {
		return errTitleTooLong
	}
	if !t.Status.Valid() {
		return errInvalidTaskStatus
	}
	if t.Priority < 1 || t.Priority > 5 {
		return errInvalidPriority
	}
	if t.Complexity < 1 || t.Complexity > 5 {
		return errInvalidComplexity
	}
	return nil
}
