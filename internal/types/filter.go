package types

import "time"

// DefaultPageSize and MaxPageSize bound list_paginated's limit parameter
// per spec.md §4.3 ("Limit default 50, cap 500").
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	MaxSearchResults = 100
)

// Filter is the common filter surface for list/list_paginated (search
// takes no filter).
type Filter struct {
	Kind            *Kind
	Creator         *string
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	UpdatedAfter    *time.Time
	UpdatedBefore   *time.Time
	IncludeDeleted  bool
	TagsAll         []string // conjunction: element must carry every tag
	TagsAny         []string // disjunction: element must carry at least one tag
	Limit           int
	Offset          int

	// Task-specific filters, ignored for other kinds.
	Status          *TaskStatus
	Priority        *int
	Complexity      *int
	Assignee        *string
	Owner           *string
	TaskType        *string
	HasDeadline     *bool
	DeadlineBefore  *time.Time
	DeadlineAfter   *time.Time
}

// ClampLimit returns a limit respecting the default/cap rule: zero means
// DefaultPageSize, anything above MaxPageSize silently clamps to it.
func (f Filter) ClampLimit() int {
	if f.Limit <= 0 {
		return DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		return MaxPageSize
	}
	return f.Limit
}

// Page is the result shape for list_paginated.
type Page struct {
	Items   []Element
	Total   int
	Offset  int
	Limit   int
	HasMore bool
}
