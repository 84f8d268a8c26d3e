package repo

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
)

// testNow tracks wall time so Redis key expiries set by the stores stay in the future.
var testNow = time.Now().UTC().Truncate(time.Millisecond)

// setupTestRedis creates an in-memory Redis instance for testing
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func digest(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func otpRepos(t *testing.T, clk clock.Clock) map[string]OtpRepo {
	return map[string]OtpRepo{
		"memory": NewMemoryOtpRepo(clk),
		"redis":  NewOtpRepo(setupTestRedis(t), clk),
	}
}

func newChallenge(phone, code string, attempts int) model.OtpChallenge {
	return model.OtpChallenge{
		PhoneNumber:       phone,
		CodeHash:          digest(code),
		CreatedAt:         testNow,
		ExpiresAt:         testNow.Add(5 * time.Minute),
		AttemptsRemaining: attempts,
	}
}

func TestOtpRepo_MatchConsumes(t *testing.T) {
	ctx := context.Background()
	for name, r := range otpRepos(t, clock.NewFixed(testNow)) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, r.Replace(ctx, newChallenge("+15550001", "482913", 5)))

			res, err := r.Attempt(ctx, "+15550001", digest("482913"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMatched, res.Outcome)

			res, err = r.Attempt(ctx, "+15550001", digest("482913"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeNoChallenge, res.Outcome, "consumed challenge must not be reusable")
		})
	}
}

func TestOtpRepo_MismatchDecrementsUntilExhausted(t *testing.T) {
	ctx := context.Background()
	for name, r := range otpRepos(t, clock.NewFixed(testNow)) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, r.Replace(ctx, newChallenge("+15550002", "111111", 3)))

			res, err := r.Attempt(ctx, "+15550002", digest("000000"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMismatch, res.Outcome)
			assert.Equal(t, 2, res.AttemptsRemaining)

			res, err = r.Attempt(ctx, "+15550002", digest("000000"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMismatch, res.Outcome)
			assert.Equal(t, 1, res.AttemptsRemaining)

			res, err = r.Attempt(ctx, "+15550002", digest("000000"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeExhausted, res.Outcome)

			res, err = r.Attempt(ctx, "+15550002", digest("111111"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeExhausted, res.Outcome, "correct code after exhaustion must still fail")
		})
	}
}

func TestOtpRepo_Expiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(testNow)
	for name, r := range otpRepos(t, clk) {
		t.Run(name, func(t *testing.T) {
			clk.Set(testNow)
			require.NoError(t, r.Replace(ctx, newChallenge("+15550003", "222222", 5)))

			clk.Advance(5 * time.Minute)
			res, err := r.Attempt(ctx, "+15550003", digest("222222"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeNoChallenge, res.Outcome)
		})
	}
}

func TestOtpRepo_ReplaceSupersedes(t *testing.T) {
	ctx := context.Background()
	for name, r := range otpRepos(t, clock.NewFixed(testNow)) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, r.Replace(ctx, newChallenge("+15550004", "333333", 5)))
			require.NoError(t, r.Replace(ctx, newChallenge("+15550004", "444444", 5)))

			res, err := r.Attempt(ctx, "+15550004", digest("333333"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMismatch, res.Outcome, "old code must not verify after replace")

			res, err = r.Attempt(ctx, "+15550004", digest("444444"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeMatched, res.Outcome)
		})
	}
}

func TestOtpRepo_Delete(t *testing.T) {
	ctx := context.Background()
	for name, r := range otpRepos(t, clock.NewFixed(testNow)) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, r.Replace(ctx, newChallenge("+15550005", "555555", 5)))
			require.NoError(t, r.Delete(ctx, "+15550005"))

			res, err := r.Attempt(ctx, "+15550005", digest("555555"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeNoChallenge, res.Outcome)
		})
	}
}

func TestOtpRepo_ConcurrentAttemptsSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, r := range otpRepos(t, clock.NewFixed(testNow)) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, r.Replace(ctx, newChallenge("+15550006", "666666", 5)))

			var wg sync.WaitGroup
			var mu sync.Mutex
			matched := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := r.Attempt(ctx, "+15550006", digest("666666"))
					assert.NoError(t, err)
					if res.Outcome == OutcomeMatched {
						mu.Lock()
						matched++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, matched)
		})
	}
}

func TestMemoryOtpRepo_Prune(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(testNow)
	r := NewMemoryOtpRepo(clk).(*memoryOtpRepo)
	require.NoError(t, r.Replace(ctx, newChallenge("+15550007", "777777", 5)))

	n, err := r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clk.Advance(6 * time.Minute)
	n, err = r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
