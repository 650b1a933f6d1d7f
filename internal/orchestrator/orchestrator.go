// Package orchestrator runs the staged dump pipeline for a single task.
// It owns all writes to the task's execution record while the task runs,
// honors cancellation and pause at stage boundaries, and reports
// progress without ever blocking on the sink.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"memflow/internal/domain"
	"memflow/internal/retry"
	"memflow/internal/task"
)

// Stage is one named step of a pipeline. Run must respect ctx; the
// executor bounds each attempt with the category policy's timeout.
type Stage struct {
	Name     string
	Category retry.Category
	Run      func(ctx context.Context, progress func(done, total int64)) error
}

// Pipeline is an ordered stage list plus an accessor for the result the
// final stage produced.
type Pipeline struct {
	Stages []Stage
	Result func() *domain.TaskResult
}

// EmitFunc delivers a progress event. Implementations must not block.
type EmitFunc func(domain.Event)

type Orchestrator struct {
	policies map[retry.Category]retry.Policy
	emit     EmitFunc
}

func New(policies map[retry.Category]retry.Policy, emit EmitFunc) *Orchestrator {
	if policies == nil {
		policies = retry.DefaultPolicies()
	}
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Orchestrator{policies: policies, emit: emit}
}

// Execute runs the pipeline for exec and returns the terminal state it
// reached (Completed, Failed, or Canceled). It is the single writer of
// exec for the duration of the call. Resource release stays with the
// caller.
func (o *Orchestrator) Execute(exec *task.Execution, ctrl *task.Control, pipe Pipeline) domain.TaskState {
	n := len(pipe.Stages)
	for i, st := range pipe.Stages {
		if canceled := o.checkpoint(exec, ctrl); canceled {
			return o.finish(exec, domain.StateCanceled, nil)
		}

		base := stagePercent(i, n)
		width := stagePercent(i+1, n) - base
		exec.SetProgress(st.Name, base)
		o.emitProgress(exec, "stage started")

		lastPct := -1
		progress := func(done, total int64) {
			pct := base
			if total > 0 {
				pct += width * float64(done) / float64(total)
			}
			exec.SetProgress(st.Name, pct)
			if p := int(pct); p != lastPct {
				lastPct = p
				o.emitProgress(exec, "")
			}
		}

		res := retry.Run(ctrl.Context(), o.policies[st.Category], func(ctx context.Context) error {
			return st.Run(ctx, progress)
		})
		o.logAttempts(exec, st, res)

		switch res.Outcome {
		case retry.Canceled:
			return o.finish(exec, domain.StateCanceled, nil)
		case retry.Failed:
			log.Warn().Str("task_id", exec.ID()).Str("stage", st.Name).
				Err(res.Err).Msg("stage failed, aborting pipeline")
			return o.finish(exec, domain.StateFailed, res.Err)
		}

		exec.SetProgress(st.Name, base+width)
		o.emitProgress(exec, "stage completed")
	}

	if pipe.Result != nil {
		if r := pipe.Result(); r != nil {
			exec.SetResult(*r)
		}
	}
	return o.finish(exec, domain.StateCompleted, nil)
}

// checkpoint applies pending pause or cancellation between stages.
// Returns true if the task was canceled.
func (o *Orchestrator) checkpoint(exec *task.Execution, ctrl *task.Control) bool {
	if ctrl.Context().Err() != nil {
		return true
	}
	if !ctrl.PauseRequested() {
		return false
	}
	if err := exec.Transition(domain.StatePaused); err != nil {
		return false
	}
	o.emitProgress(exec, "paused")
	log.Info().Str("task_id", exec.ID()).Msg("task paused")
	if err := ctrl.AwaitResume(); err != nil {
		return true
	}
	if err := exec.Transition(domain.StateRunning); err != nil {
		return true
	}
	o.emitProgress(exec, "resumed")
	return false
}

func (o *Orchestrator) finish(exec *task.Execution, state domain.TaskState, cause error) domain.TaskState {
	// A cancellation that lands while paused transitions Paused -> Canceled;
	// every other terminal hop starts from Running.
	if cause != nil {
		exec.SetError(cause)
	}
	if err := exec.Transition(state); err != nil {
		log.Error().Str("task_id", exec.ID()).Err(err).Msg("terminal transition rejected")
		return exec.State()
	}
	if state == domain.StateCompleted {
		exec.SetProgress("", 100)
	}
	o.emitProgress(exec, string(state))
	return state
}

func (o *Orchestrator) logAttempts(exec *task.Execution, st Stage, res retry.Result) {
	for i, a := range res.Attempts {
		attempt := domain.StageAttempt{
			Stage:      st.Name,
			Attempt:    a.Attempt,
			StartedAt:  a.StartedAt,
			FinishedAt: a.FinishedAt,
		}
		switch {
		case a.Err == nil:
			attempt.Outcome = domain.OutcomeOK
		case res.Outcome == retry.Canceled && i == len(res.Attempts)-1:
			// The op may have surfaced its own error when the task was
			// canceled mid-attempt; the run's outcome wins over the
			// error's shape.
			attempt.Outcome = domain.OutcomeCanceled
			attempt.Error = a.Err.Error()
		case a.Transient:
			attempt.Outcome = domain.OutcomeTransient
			attempt.Error = a.Err.Error()
		default:
			attempt.Outcome = domain.OutcomeFatal
			attempt.Error = a.Err.Error()
		}
		exec.AppendAttempt(attempt)
	}
}

func (o *Orchestrator) emitProgress(exec *task.Execution, msg string) {
	snap := exec.Snapshot()
	o.emit(domain.Event{
		TaskID:  snap.ID,
		State:   snap.State,
		Stage:   snap.Stage,
		Percent: snap.Percent,
		Message: msg,
		Time:    time.Now(),
	})
}

func stagePercent(i, n int) float64 {
	if n == 0 {
		return 100
	}
	return 100 * float64(i) / float64(n)
}
