package task

import (
	"context"
	"sync"
)

// Control carries the cancellation context and the pause gate for one
// running task. Cancellation and pause both take effect cooperatively,
// at the next stage boundary; an in-flight device command finishes or
// times out on its own first.
type Control struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewControl(parent context.Context) *Control {
	ctx, cancel := context.WithCancel(parent)
	return &Control{ctx: ctx, cancel: cancel}
}

func (c *Control) Context() context.Context { return c.ctx }

func (c *Control) Cancel() { c.cancel() }

// RequestPause asks the worker to pause at the next stage boundary.
// Returns false if a pause is already pending.
func (c *Control) RequestPause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	c.paused = true
	c.resume = make(chan struct{})
	return true
}

// RequestResume releases a pending or active pause. Returns false if the
// task was not paused.
func (c *Control) RequestResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	close(c.resume)
	return true
}

func (c *Control) PauseRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// AwaitResume blocks until Resume is requested or the task is canceled.
// Returns the context error on cancellation.
func (c *Control) AwaitResume() error {
	c.mu.Lock()
	ch := c.resume
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}
