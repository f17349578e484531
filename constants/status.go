package constants

// TaskStatus is the canonical status for rows in test_task.
type TaskStatus string

// Stable values (store these exact strings in DB).
const (
	TaskStatusPending   TaskStatus = "PENDING"   // accepted, waiting for a worker
	TaskStatusRunning   TaskStatus = "RUNNING"   // claimed by a worker
	TaskStatusCompleted TaskStatus = "COMPLETED" // terminal, summary attached
	TaskStatusFailed    TaskStatus = "FAILED"    // terminal, error message attached
	TaskStatusCancelled TaskStatus = "CANCELLED" // terminal, partial details retained
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// RuleStatus is the lifecycle state of a mapping rule.
type RuleStatus string

const (
	RuleStatusDraft    RuleStatus = "draft"
	RuleStatusActive   RuleStatus = "active"
	RuleStatusArchived RuleStatus = "archived"
)
