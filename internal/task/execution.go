// Package task holds the mutable runtime record for one scheduled run of
// a JobProfile and the control handle used for cooperative cancellation
// and pause/resume.
//
// An Execution has a single writer: the worker currently running the
// task (or the scheduler before dispatch). Everything else reads
// immutable snapshots.
package task

import (
	"fmt"
	"sync"
	"time"

	"memflow/internal/domain"
)

// Execution is the runtime record for one task. All mutation goes
// through its methods; state changes are validated against the central
// transition table.
type Execution struct {
	mu sync.Mutex

	id        string
	job       domain.ResolvedJob
	state     domain.TaskState
	priority  domain.Priority
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	stage     string
	percent   float64
	attempts  []domain.StageAttempt
	result    *domain.TaskResult
	err       string
	blockedBy []string
}

func New(id string, job domain.ResolvedJob, priority domain.Priority) *Execution {
	return &Execution{
		id:        id,
		job:       job,
		state:     domain.StateNotStarted,
		priority:  priority,
		createdAt: time.Now(),
	}
}

func (e *Execution) ID() string { return e.id }

// Job returns the resolved profile the task was created from. The value
// is copied at submission and never changes afterwards.
func (e *Execution) Job() domain.ResolvedJob { return e.job }

func (e *Execution) State() domain.TaskState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transition moves the task to the given state if the transition table
// allows it. Start and end timestamps are maintained here so callers
// cannot forget them.
func (e *Execution) Transition(to domain.TaskState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !domain.CanTransition(e.state, to) {
		return domain.E(domain.ErrInvalidTransition,
			fmt.Sprintf("task %s: %s -> %s", e.id, e.state, to))
	}
	if to == domain.StateRunning && e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	if to.Terminal() {
		e.endedAt = time.Now()
	}
	e.state = to
	return nil
}

func (e *Execution) SetProgress(stage string, percent float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stage = stage
	e.percent = percent
}

func (e *Execution) AppendAttempt(a domain.StageAttempt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = append(e.attempts, a)
}

func (e *Execution) SetResult(r domain.TaskResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = &r
}

func (e *Execution) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.err = err.Error()
	}
}

// SetBlockedBy records which tasks currently hold resources this task is
// waiting for. Informational only.
func (e *Execution) SetBlockedBy(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blockedBy = append([]string(nil), ids...)
}

// Snapshot returns an immutable copy of the record.
func (e *Execution) Snapshot() domain.TaskSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := domain.TaskSnapshot{
		ID:        e.id,
		ProfileID: e.job.Profile.ID,
		State:     e.state,
		Priority:  e.priority,
		CreatedAt: e.createdAt,
		StartedAt: e.startedAt,
		EndedAt:   e.endedAt,
		Stage:     e.stage,
		Percent:   e.percent,
		Attempts:  append([]domain.StageAttempt(nil), e.attempts...),
		Error:     e.err,
		BlockedBy: append([]string(nil), e.blockedBy...),
	}
	if e.result != nil {
		r := *e.result
		snap.Result = &r
	}
	return snap
}
