package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolla/server/internal/clock"
)

func TestRevocationRepo_AddIsSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(testNow)
	repos := map[string]RevocationRepo{
		"memory": NewMemoryRevocationRepo(clk),
		"redis":  NewRevocationRepo(setupTestRedis(t), clk),
	}
	for name, r := range repos {
		t.Run(name, func(t *testing.T) {
			exp := testNow.Add(time.Hour)

			found, err := r.Contains(ctx, "jti-1")
			require.NoError(t, err)
			assert.False(t, found)

			added, err := r.Add(ctx, "jti-1", exp)
			require.NoError(t, err)
			assert.True(t, added)

			added, err = r.Add(ctx, "jti-1", exp)
			require.NoError(t, err)
			assert.False(t, added, "second add of the same id must report already present")

			found, err = r.Contains(ctx, "jti-1")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestRevocationRepo_ConcurrentAddSingleWinner(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(testNow)
	repos := map[string]RevocationRepo{
		"memory": NewMemoryRevocationRepo(clk),
		"redis":  NewRevocationRepo(setupTestRedis(t), clk),
	}
	for name, r := range repos {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i := 0; i < 30; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					added, err := r.Add(ctx, "jti-race", testNow.Add(time.Hour))
					assert.NoError(t, err)
					if added {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})
	}
}

func TestMemoryRevocationRepo_LazyExpiryAndPrune(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(testNow)
	r := NewMemoryRevocationRepo(clk)

	_, err := r.Add(ctx, "short", testNow.Add(time.Minute))
	require.NoError(t, err)
	_, err = r.Add(ctx, "long", testNow.Add(time.Hour))
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)

	found, err := r.Contains(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found, "entry must be dropped once the token would have expired")

	_, err = r.Add(ctx, "short2", testNow.Add(time.Minute))
	require.NoError(t, err)
	n, err := r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err = r.Contains(ctx, "long")
	require.NoError(t, err)
	assert.True(t, found)
}
