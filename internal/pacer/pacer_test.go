package pacer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(p *Pacer) {
	p.sleep = func(context.Context, time.Duration) error { return nil }
}

func TestRunSucceedsFirstTry(t *testing.T) {
	p := New(3)
	noSleep(p)
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunNonRetryableFailsImmediately(t *testing.T) {
	p := New(3)
	noSleep(p)
	sentinel := errors.New("boom")
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, sentinel
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRunExhaustsMaxRetries(t *testing.T) {
	p := New(2)
	noSleep(p)
	sentinel := errors.New("boom")
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return true, sentinel
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 3, calls) // attempt 0, 1, 2 then give up
}

func TestRunRateLimitDoesNotCountAgainstBudget(t *testing.T) {
	p := New(1)
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	calls := 0
	err := p.Run(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		if calls < 5 {
			return true, RateLimit(errors.New("rate limited"), time.Second)
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	require.Len(t, slept, 4)
	for _, d := range slept {
		assert.Equal(t, 3*time.Second, d) // After(1s) + rateLimitGrace(2s)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	p := New(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.sleep = sleepCtx
	err := p.Run(ctx, func(ctx context.Context) (bool, error) {
		return true, errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
