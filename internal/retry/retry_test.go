package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memflow/internal/domain"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2}
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	res := Run(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 1, calls)
	require.Len(t, res.Attempts, 1)
	assert.NoError(t, res.Attempts[0].Err)
}

func TestRun_TransientThenSuccess(t *testing.T) {
	calls := 0
	res := Run(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.E(domain.ErrTransientDevice, "flaky line")
		}
		return nil
	})
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 3, calls)
	require.Len(t, res.Attempts, 3)
	assert.True(t, res.Attempts[0].Transient)
	assert.True(t, res.Attempts[1].Transient)
}

func TestRun_TransientExhausted(t *testing.T) {
	calls := 0
	res := Run(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return domain.E(domain.ErrTransientDevice, "no response")
	})
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 3, calls, "stage must be attempted exactly maxAttempts times")
	assert.Len(t, res.Attempts, 3)
	assert.ErrorIs(t, res.Err, domain.ErrRetryExhausted)
}

func TestRun_FatalStopsImmediately(t *testing.T) {
	calls := 0
	fatal := domain.E(domain.ErrFatalDevice, "wrong bootloader")
	res := Run(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return fatal
	})
	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.Err, domain.ErrFatalDevice)
	require.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Transient)
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Run(ctx, fastPolicy(3), func(ctx context.Context) error {
		t.Fatal("op must not run on canceled context")
		return nil
	})
	assert.Equal(t, Canceled, res.Outcome)
	assert.Empty(t, res.Attempts)
}

func TestRun_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Minute, Multiplier: 2}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := Run(ctx, p, func(ctx context.Context) error {
		return domain.E(domain.ErrTransientDevice, "busy")
	})
	assert.Equal(t, Canceled, res.Outcome)
	assert.Len(t, res.Attempts, 1, "no retry after cancellation")
}

func TestRun_AttemptTimeoutIsTransient(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, AttemptTimeout: 10 * time.Millisecond}
	calls := 0
	res := Run(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 2, calls)
	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Transient, "attempt timeout retries under the policy")
}

func TestRun_CustomClassifier(t *testing.T) {
	flaky := errors.New("io glitch")
	p := Policy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		Classify:    func(err error) bool { return errors.Is(err, flaky) },
	}
	calls := 0
	res := Run(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return flaky
		}
		return nil
	})
	assert.Equal(t, Success, res.Outcome)
	assert.Equal(t, 2, calls)
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))

	p.MaxDelay = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, p.Delay(3))
}

func TestDefaultPolicies_CoverAllCategories(t *testing.T) {
	policies := DefaultPolicies()
	for _, cat := range []Category{CategoryConnection, CategoryCommunication, CategoryMemoryTransfer, CategoryPower, CategoryNetwork} {
		p, ok := policies[cat]
		require.True(t, ok, string(cat))
		assert.Greater(t, p.MaxAttempts, 0)
		assert.Greater(t, p.BaseDelay, time.Duration(0))
	}
}
