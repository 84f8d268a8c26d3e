package repo

import (
	"context"
	"sync"
	"time"

	"github.com/yolla/server/internal/clock"
)

// memoryRateLimitRepo is an in-memory sliding window keyed by caller-supplied keys
type memoryRateLimitRepo struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	clock    clock.Clock
	// longest window seen, used by Prune to decide what is stale
	maxWindow time.Duration
}

// NewMemoryRateLimitRepo creates a process-local RateLimitRepo
func NewMemoryRateLimitRepo(clk clock.Clock) RateLimitRepo {
	return &memoryRateLimitRepo{
		requests: make(map[string][]time.Time),
		clock:    clk,
	}
}

func (r *memoryRateLimitRepo) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if window > r.maxWindow {
		r.maxWindow = window
	}

	now := r.clock.Now()
	cutoff := now.Add(-window)

	// Remove requests outside the window
	reqs := r.requests[key]
	filtered := make([]time.Time, 0, len(reqs)+1)
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= limit {
		r.requests[key] = filtered
		return false, nil
	}

	r.requests[key] = append(filtered, now)
	return true, nil
}

// Prune removes keys with no request inside the longest window seen
func (r *memoryRateLimitRepo) Prune(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.maxWindow)
	n := 0
	for key, reqs := range r.requests {
		if len(reqs) == 0 || !reqs[len(reqs)-1].After(cutoff) {
			delete(r.requests, key)
			n++
		}
	}
	return n, nil
}
