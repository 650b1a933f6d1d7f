package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memflow/internal/domain"
)

func newExec(t *testing.T) *Execution {
	t.Helper()
	job := domain.ResolvedJob{
		Profile: domain.JobProfile{ID: "job-1", Name: "flash dump"},
		Serial:  domain.SerialProfile{ID: "ser-1", Device: "/dev/ttyUSB0"},
		Bridge:  domain.BridgeProfile{ID: "br-1", Port: 1238},
		Power:   domain.PowerProfile{ID: "pow-1", Output: 2},
		Region:  domain.MemoryRegion{ID: "reg-1", Name: "flash", Length: 1024},
	}
	return New("tsk_test", job, domain.PriorityNormal)
}

func TestTransition_LegalPath(t *testing.T) {
	e := newExec(t)
	require.NoError(t, e.Transition(domain.StateQueued))
	require.NoError(t, e.Transition(domain.StateScheduled))
	require.NoError(t, e.Transition(domain.StateRunning))
	require.NoError(t, e.Transition(domain.StateCompleted))

	snap := e.Snapshot()
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.EndedAt.IsZero())
}

func TestTransition_IllegalRejected(t *testing.T) {
	e := newExec(t)
	require.NoError(t, e.Transition(domain.StateQueued))

	err := e.Transition(domain.StateRunning)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StateQueued, e.State(), "failed transition must not change state")
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	e := newExec(t)
	require.NoError(t, e.Transition(domain.StateQueued))
	require.NoError(t, e.Transition(domain.StateCanceled))

	assert.ErrorIs(t, e.Transition(domain.StateScheduled), domain.ErrInvalidTransition)
	assert.ErrorIs(t, e.Transition(domain.StateRunning), domain.ErrInvalidTransition)
}

func TestSnapshot_IsolatedFromRecord(t *testing.T) {
	e := newExec(t)
	e.AppendAttempt(domain.StageAttempt{Stage: "PowerCycle", Attempt: 1, Outcome: domain.OutcomeOK})
	snap := e.Snapshot()

	snap.Attempts[0].Stage = "mutated"
	e.AppendAttempt(domain.StageAttempt{Stage: "BootloaderHandshake", Attempt: 1, Outcome: domain.OutcomeOK})

	fresh := e.Snapshot()
	assert.Equal(t, "PowerCycle", fresh.Attempts[0].Stage)
	assert.Len(t, fresh.Attempts, 2)
	assert.Len(t, snap.Attempts, 1)
}

func TestSetResultAndError(t *testing.T) {
	e := newExec(t)
	e.SetResult(domain.TaskResult{OutputPath: "/tmp/out.bin", ByteCount: 1024, Throughput: 512})
	e.SetError(errors.New("line noise"))

	snap := e.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, int64(1024), snap.Result.ByteCount)
	assert.Equal(t, "line noise", snap.Error)
}

func TestControl_PauseResume(t *testing.T) {
	c := NewControl(context.Background())

	assert.False(t, c.PauseRequested())
	assert.True(t, c.RequestPause())
	assert.False(t, c.RequestPause(), "second pause is rejected")
	assert.True(t, c.PauseRequested())

	done := make(chan error, 1)
	go func() { done <- c.AwaitResume() }()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, c.RequestResume())
	require.NoError(t, <-done)
	assert.False(t, c.PauseRequested())

	assert.False(t, c.RequestResume(), "resume without pause is rejected")
}

func TestControl_CancelUnblocksAwaitResume(t *testing.T) {
	c := NewControl(context.Background())
	require.True(t, c.RequestPause())

	done := make(chan error, 1)
	go func() { done <- c.AwaitResume() }()

	c.Cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
