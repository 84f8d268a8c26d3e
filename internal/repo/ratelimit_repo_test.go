package repo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolla/server/internal/clock"
)

func TestRateLimitRepo_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(testNow)
	repos := map[string]RateLimitRepo{
		"memory": NewMemoryRateLimitRepo(clk),
		"redis":  NewRateLimitRepo(setupTestRedis(t), clk),
	}
	for name, r := range repos {
		t.Run(name, func(t *testing.T) {
			clk.Set(testNow)
			window := 10 * time.Minute

			for i := 0; i < 3; i++ {
				ok, err := r.Allow(ctx, "phone:+15550100", 3, window)
				require.NoError(t, err)
				assert.True(t, ok, "request %d must be allowed", i+1)
				clk.Advance(time.Minute)
			}

			ok, err := r.Allow(ctx, "phone:+15550100", 3, window)
			require.NoError(t, err)
			assert.False(t, ok, "4th request inside the window must be rejected")

			ok, err = r.Allow(ctx, "phone:+15550199", 3, window)
			require.NoError(t, err)
			assert.True(t, ok, "other keys are independent")

			// first request was at testNow; 10 minutes later it leaves the window
			clk.Set(testNow.Add(window))
			ok, err = r.Allow(ctx, "phone:+15550100", 3, window)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRateLimitRepo_ConcurrentIncrementsCannotOvershoot(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(testNow)
	repos := map[string]RateLimitRepo{
		"memory": NewMemoryRateLimitRepo(clk),
		"redis":  NewRateLimitRepo(setupTestRedis(t), clk),
	}
	for name, r := range repos {
		t.Run(name, func(t *testing.T) {
			var allowed int32
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := r.Allow(ctx, "ip:10.0.0.1", 10, time.Minute)
					assert.NoError(t, err)
					if ok {
						atomic.AddInt32(&allowed, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(10), allowed)
		})
	}
}
