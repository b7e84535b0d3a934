package models

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskConverting TaskStatus = "Converting"
	TaskCompleted  TaskStatus = "Completed"
	TaskFailed     TaskStatus = "Failed"
	TaskCancelled  TaskStatus = "Cancelled"
)

// IsTerminal reports whether a status is sticky (spec §4.6 invariant).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Task is the unit of work owned by the task lifecycle engine (C6).
type Task struct {
	ID   string
	Name string

	OriginalFileName string
	OriginalSize     int64
	OriginalFormat   string

	OutputFileName string
	OutputSize     int64
	OutputFormat   string

	Params map[string]interface{}

	Status   TaskStatus
	Progress int // 0..100

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	SpeedMultiplier float64
	ETASeconds      int64
	DurationSeconds float64
	CurrentPosition float64

	FailureReason string

	ArtifactPath string
	OutputPath   string
}

// CanTransitionTo enforces the strictly-monotonic lifecycle of spec §3,
// excepting Converting->Cancelled|Failed which is always legal.
func (t *Task) CanTransitionTo(next TaskStatus) bool {
	if t.Status.IsTerminal() {
		return false
	}
	switch t.Status {
	case TaskPending:
		return next == TaskConverting || next == TaskCancelled
	case TaskConverting:
		return next == TaskCompleted || next == TaskFailed || next == TaskCancelled
	default:
		return false
	}
}
