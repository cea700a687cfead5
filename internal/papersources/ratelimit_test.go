package papersources

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("allows the configured burst", func(t *testing.T) {
		rl := NewRateLimiter(5, 5)
		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow(), "request %d within burst", i+1)
		}
		assert.False(t, rl.Allow())
	})

	t.Run("fractional rate for scraped sources", func(t *testing.T) {
		rl := NewRateLimiter(0.5, 1)
		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow())
		assert.InDelta(t, 0.5, rl.Rate(), 0.0001)
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("waits for a token after the burst", func(t *testing.T) {
		rl := NewRateLimiter(20, 1)
		ctx := context.Background()

		require.NoError(t, rl.Wait(ctx))
		start := time.Now()
		require.NoError(t, rl.Wait(ctx))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("returns when the context is canceled", func(t *testing.T) {
		rl := NewRateLimiter(0.1, 1)
		require.True(t, rl.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, rl.Wait(ctx))
	})
}

func TestRateLimiter_ThrottleAndRecover(t *testing.T) {
	t.Run("throttle halves down to the floor", func(t *testing.T) {
		rl := NewRateLimiter(16, 1)

		rl.Throttle()
		assert.InDelta(t, 8, rl.Rate(), 0.0001)
		rl.Throttle()
		rl.Throttle()
		assert.InDelta(t, 2, rl.Rate(), 0.0001)
		rl.Throttle()
		assert.InDelta(t, 2, rl.Rate(), 0.0001, "never below base/8")
	})

	t.Run("recover doubles up to the configured rate", func(t *testing.T) {
		rl := NewRateLimiter(10, 1)
		rl.Throttle()
		rl.Throttle()
		assert.InDelta(t, 2.5, rl.Rate(), 0.0001)

		rl.Recover()
		assert.InDelta(t, 5, rl.Rate(), 0.0001)
		rl.Recover()
		rl.Recover()
		assert.InDelta(t, 10, rl.Rate(), 0.0001)
	})

	t.Run("recover at full rate is a no-op", func(t *testing.T) {
		rl := NewRateLimiter(3, 1)
		rl.Recover()
		assert.InDelta(t, 3, rl.Rate(), 0.0001)
	})
}

func TestRateLimiter_Concurrency(t *testing.T) {
	rl := NewRateLimiter(1000, 100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rl.Wait(context.Background())
			if i%2 == 0 {
				rl.Throttle()
			} else {
				rl.Recover()
			}
		}(i)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, rl.Rate(), 1000.0/minRateDivisor)
	assert.LessOrEqual(t, rl.Rate(), 1000.0)
}
