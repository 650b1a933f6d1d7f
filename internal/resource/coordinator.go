// Package resource tracks exclusive physical resources (serial lines,
// TCP bridge ports, power outputs) held by running tasks.
package resource

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"memflow/internal/domain"
)

// Coordinator is the shared lock table. One mutex guards it end to end;
// acquisition and release are the only operations and both are O(held).
type Coordinator struct {
	mu   sync.Mutex
	held map[string]*domain.ResourceLock // resource key -> lock holding it
}

func NewCoordinator() *Coordinator {
	return &Coordinator{held: map[string]*domain.ResourceLock{}}
}

// TryAcquire grants the full key set to taskID or nothing at all. On
// conflict it returns the IDs of the tasks holding the contested keys so
// callers can report why the task is waiting.
func (c *Coordinator) TryAcquire(taskID string, keys []string) (bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blocking []string
	seen := map[string]bool{}
	for _, k := range keys {
		if l, ok := c.held[k]; ok && !seen[l.TaskID] {
			seen[l.TaskID] = true
			blocking = append(blocking, l.TaskID)
		}
	}
	if len(blocking) > 0 {
		sort.Strings(blocking)
		return false, blocking
	}

	lock := &domain.ResourceLock{
		TaskID:     taskID,
		Keys:       append([]string(nil), keys...),
		AcquiredAt: time.Now(),
	}
	for _, k := range keys {
		c.held[k] = lock
	}
	log.Debug().Str("task_id", taskID).Strs("keys", keys).Msg("resources acquired")
	return true, nil
}

// Release frees every key held by taskID. Idempotent: releasing a task
// that holds nothing is a no-op, and it never touches another task's keys.
func (c *Coordinator) Release(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	released := false
	for k, l := range c.held {
		if l.TaskID == taskID {
			delete(c.held, k)
			released = true
		}
	}
	if released {
		log.Debug().Str("task_id", taskID).Msg("resources released")
	}
}

// IsAvailable reports whether every key in the set is currently free.
func (c *Coordinator) IsAvailable(keys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, ok := c.held[k]; ok {
			return false
		}
	}
	return true
}

// ListHeld returns a copy of all currently held locks.
func (c *Coordinator) ListHeld() []domain.ResourceLock {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := map[*domain.ResourceLock]bool{}
	var locks []domain.ResourceLock
	for _, l := range c.held {
		if !seen[l] {
			seen[l] = true
			locks = append(locks, *l)
		}
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].TaskID < locks[j].TaskID })
	return locks
}
