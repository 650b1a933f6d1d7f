// Package retry executes a single operation under a bounded-attempt,
// exponential-backoff policy. It is independent of any specific stage;
// the transient/fatal split comes from the policy's classifier.
package retry

import (
	"context"
	"fmt"
	"time"

	"memflow/internal/domain"
)

// Category selects which tuning a stage gets.
type Category string

const (
	CategoryConnection     Category = "connection"
	CategoryCommunication  Category = "communication"
	CategoryMemoryTransfer Category = "memory-transfer"
	CategoryPower          Category = "power"
	CategoryNetwork        Category = "network"
)

// Policy is stateless and shared read-only across tasks.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// AttemptTimeout bounds one attempt; exceeding it is a transient
	// error, not a cancellation.
	AttemptTimeout time.Duration
	// Classify reports whether an error is retry-eligible. Nil means
	// domain.IsTransient.
	Classify func(error) bool
}

// Delay returns the backoff before the given attempt (1-based: the wait
// after attempt n uses Delay(n)).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	max := p.MaxDelay
	if max <= 0 {
		max = time.Minute
	}
	if time.Duration(d) > max {
		return max
	}
	return time.Duration(d)
}

func (p Policy) classify(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return domain.IsTransient(err)
}

// Outcome of one retried operation.
type Outcome int

const (
	Success Outcome = iota
	Failed
	Canceled
)

// AttemptRecord logs one attempt for the task's history.
type AttemptRecord struct {
	Attempt    int
	Err        error
	Transient  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Result carries the final outcome plus the full per-attempt log.
type Result struct {
	Outcome  Outcome
	Err      error
	Attempts []AttemptRecord
}

// Run executes op under the policy. Transient errors are retried with
// backoff until attempts are exhausted; fatal errors and cancellation
// stop immediately. A canceled context is never retried.
func Run(ctx context.Context, p Policy, op func(context.Context) error) Result {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var res Result

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			res.Outcome = Canceled
			res.Err = ctx.Err()
			return res
		}

		actx := ctx
		cancel := context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		rec := AttemptRecord{Attempt: attempt, StartedAt: time.Now()}
		err := op(actx)
		cancel()
		rec.FinishedAt = time.Now()
		rec.Err = err

		if err == nil {
			res.Attempts = append(res.Attempts, rec)
			res.Outcome = Success
			return res
		}
		// The parent being canceled mid-attempt is cancellation, not a
		// device failure; attempt timeouts only cancel actx.
		if ctx.Err() != nil {
			rec.Transient = false
			res.Attempts = append(res.Attempts, rec)
			res.Outcome = Canceled
			res.Err = ctx.Err()
			return res
		}

		rec.Transient = p.classify(err)
		res.Attempts = append(res.Attempts, rec)

		if !rec.Transient {
			res.Outcome = Failed
			res.Err = err
			return res
		}
		if attempt == p.MaxAttempts {
			res.Outcome = Failed
			res.Err = domain.E(domain.ErrRetryExhausted,
				fmt.Sprintf("%d attempts: %v", attempt, err))
			return res
		}

		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			res.Outcome = Canceled
			res.Err = ctx.Err()
			return res
		}
	}
	return res
}

// DefaultPolicies returns the stock per-category tuning. Callers may
// replace entries before handing the set to the orchestrator.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryConnection:     {MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, Multiplier: 2, AttemptTimeout: 10 * time.Second},
		CategoryCommunication:  {MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, Multiplier: 2, AttemptTimeout: 5 * time.Second},
		CategoryMemoryTransfer: {MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, AttemptTimeout: 2 * time.Minute},
		CategoryPower:          {MaxAttempts: 2, BaseDelay: time.Second, Multiplier: 1.5, AttemptTimeout: 15 * time.Second},
		CategoryNetwork:        {MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, Multiplier: 2, AttemptTimeout: 10 * time.Second},
	}
}
