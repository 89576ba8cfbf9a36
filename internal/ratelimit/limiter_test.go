package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait_AllowsWithinBurst(t *testing.T) {
	limiter := NewLimiter(10, 5.0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
}

func TestLimiter_Wait_BlocksUntilRefill(t *testing.T) {
	limiter := NewLimiter(2, 1.0)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestLimiter_Wait_RespectsCancelledContext(t *testing.T) {
	limiter := NewLimiter(1, 1.0)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Wait(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ZeroRefillRateNeverBlocks(t *testing.T) {
	limiter := NewLimiter(0, 0)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(100, 1000.0)

	const goroutines = 50
	const requestsPerGoroutine = 2

	var wg sync.WaitGroup
	errCh := make(chan error, goroutines*requestsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := limiter.Wait(ctx)
				cancel()
				if err != nil {
					errCh <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("unexpected error during concurrent access: %v", err)
	}
}
