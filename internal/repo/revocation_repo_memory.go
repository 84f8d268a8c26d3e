package repo

import (
	"context"
	"sync"
	"time"

	"github.com/yolla/server/internal/clock"
)

type memoryRevocationRepo struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   clock.Clock
}

// NewMemoryRevocationRepo creates a process-local RevocationRepo with lazy expiry on read
func NewMemoryRevocationRepo(clk clock.Clock) RevocationRepo {
	return &memoryRevocationRepo{
		entries: make(map[string]time.Time),
		clock:   clk,
	}
}

func (r *memoryRevocationRepo) Add(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exp, ok := r.entries[tokenID]; ok && r.clock.Now().Before(exp) {
		return false, nil
	}
	r.entries[tokenID] = expiresAt
	return true, nil
}

func (r *memoryRevocationRepo) Contains(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !r.clock.Now().Before(exp) {
		delete(r.entries, tokenID)
		return false, nil
	}
	return true, nil
}

func (r *memoryRevocationRepo) Prune(_ context.Context) (int, error) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}
