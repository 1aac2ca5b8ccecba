package types

// IsTerminalElement reports whether e is in a status from which it stops
// acting as a live blocker: a closed/tombstoned Task, a completed/cancelled
// Plan, or a completed/failed Workflow. Other kinds have no status machine
// and are never terminal for blocking purposes.
func IsTerminalElement(e Element) bool {
	switch v := e.(type) {
	case *Task:
		return v.Status.IsTerminal()
	case *Plan:
		return v.Status.IsClosed()
	case *Workflow:
		return v.Status == WorkflowCompleted || v.Status == WorkflowFailed
	default:
		return false
	}
}
