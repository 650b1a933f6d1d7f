package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_AllOrNothing(t *testing.T) {
	c := NewCoordinator()

	granted, blocking := c.TryAcquire("task-a", []string{"serial:/dev/ttyUSB0", "tcp:1238", "power:2"})
	require.True(t, granted)
	assert.Empty(t, blocking)

	// Overlaps on one key only; nothing may be granted.
	granted, blocking = c.TryAcquire("task-b", []string{"serial:/dev/ttyUSB1", "power:2"})
	assert.False(t, granted)
	assert.Equal(t, []string{"task-a"}, blocking)

	// The non-conflicting key from the denied request must still be free.
	assert.True(t, c.IsAvailable([]string{"serial:/dev/ttyUSB1"}))
}

func TestTryAcquire_DisjointSets(t *testing.T) {
	c := NewCoordinator()

	granted, _ := c.TryAcquire("task-a", []string{"serial:/dev/ttyUSB0"})
	require.True(t, granted)
	granted, _ = c.TryAcquire("task-b", []string{"serial:/dev/ttyUSB1"})
	require.True(t, granted)

	assert.Len(t, c.ListHeld(), 2)
}

func TestRelease_Idempotent(t *testing.T) {
	c := NewCoordinator()

	granted, _ := c.TryAcquire("task-a", []string{"serial:/dev/ttyUSB0"})
	require.True(t, granted)
	granted, _ = c.TryAcquire("task-b", []string{"tcp:1238"})
	require.True(t, granted)

	c.Release("task-a")
	c.Release("task-a")
	// Releasing a task that never held anything is also fine.
	c.Release("task-x")

	assert.True(t, c.IsAvailable([]string{"serial:/dev/ttyUSB0"}))
	assert.False(t, c.IsAvailable([]string{"tcp:1238"}), "other task's lock must survive")

	held := c.ListHeld()
	require.Len(t, held, 1)
	assert.Equal(t, "task-b", held[0].TaskID)
}

func TestReacquireAfterRelease(t *testing.T) {
	c := NewCoordinator()

	granted, _ := c.TryAcquire("task-a", []string{"power:2"})
	require.True(t, granted)
	c.Release("task-a")

	granted, blocking := c.TryAcquire("task-b", []string{"power:2"})
	assert.True(t, granted)
	assert.Empty(t, blocking)
}

func TestListHeld_GroupsKeysByTask(t *testing.T) {
	c := NewCoordinator()

	granted, _ := c.TryAcquire("task-a", []string{"serial:/dev/ttyUSB0", "tcp:1238"})
	require.True(t, granted)

	held := c.ListHeld()
	require.Len(t, held, 1)
	assert.Equal(t, "task-a", held[0].TaskID)
	assert.ElementsMatch(t, []string{"serial:/dev/ttyUSB0", "tcp:1238"}, held[0].Keys)
	assert.False(t, held[0].AcquiredAt.IsZero())
}
