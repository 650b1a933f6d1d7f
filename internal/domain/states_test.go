package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskState
		to   TaskState
		want bool
	}{
		{"not started to queued", StateNotStarted, StateQueued, true},
		{"queued to scheduled", StateQueued, StateScheduled, true},
		{"queued to canceled", StateQueued, StateCanceled, true},
		{"scheduled to running", StateScheduled, StateRunning, true},
		{"running to completed", StateRunning, StateCompleted, true},
		{"running to failed", StateRunning, StateFailed, true},
		{"running to canceled", StateRunning, StateCanceled, true},
		{"running to paused", StateRunning, StatePaused, true},
		{"paused to running", StatePaused, StateRunning, true},
		{"paused to canceled", StatePaused, StateCanceled, true},

		{"completed is terminal", StateCompleted, StateRunning, false},
		{"failed is terminal", StateFailed, StateQueued, false},
		{"canceled is terminal", StateCanceled, StateRunning, false},
		{"queued cannot run directly", StateQueued, StateRunning, false},
		{"scheduled cannot be canceled directly", StateScheduled, StateCanceled, false},
		{"paused cannot complete", StatePaused, StateCompleted, false},
		{"no self transition", StateRunning, StateRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCanceled.Terminal())
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StatePaused.Terminal())
}

func TestResourceKeys(t *testing.T) {
	job := ResolvedJob{
		Serial: SerialProfile{Device: "/dev/ttyUSB0"},
		Bridge: BridgeProfile{Port: 1238},
		Power:  PowerProfile{Output: 2},
	}
	assert.Equal(t, []string{"serial:/dev/ttyUSB0", "tcp:1238", "power:2"}, job.ResourceKeys())
}

func TestParsePriority(t *testing.T) {
	p, ok := ParsePriority("high")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)

	p, ok = ParsePriority("")
	assert.True(t, ok)
	assert.False(t, p.Valid())

	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
}
