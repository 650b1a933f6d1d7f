package domain

// TaskState is the lifecycle state of a TaskExecution.
type TaskState string

const (
	StateNotStarted TaskState = "not_started"
	StateQueued     TaskState = "queued"
	StateScheduled  TaskState = "scheduled"
	StateRunning    TaskState = "running"
	StatePaused     TaskState = "paused"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
	StateCanceled   TaskState = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// transitions is the single source of truth for the task state machine.
// Every state change in the engine goes through CanTransition; nothing
// mutates state by convention.
var transitions = map[TaskState][]TaskState{
	StateNotStarted: {StateQueued},
	StateQueued:     {StateScheduled, StateCanceled},
	StateScheduled:  {StateRunning},
	StateRunning:    {StateCompleted, StateFailed, StateCanceled, StatePaused},
	StatePaused:     {StateRunning, StateCanceled},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
