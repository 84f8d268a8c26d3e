package repo

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
)

type memoryOtpRepo struct {
	mu         sync.Mutex
	challenges map[string]model.OtpChallenge
	clock      clock.Clock
}

// NewMemoryOtpRepo creates a process-local OtpRepo, used when Redis is not configured
func NewMemoryOtpRepo(clk clock.Clock) OtpRepo {
	return &memoryOtpRepo{
		challenges: make(map[string]model.OtpChallenge),
		clock:      clk,
	}
}

func (r *memoryOtpRepo) Replace(_ context.Context, ch model.OtpChallenge) error {
	ch.CodeHash = append([]byte(nil), ch.CodeHash...)
	r.mu.Lock()
	r.challenges[ch.PhoneNumber] = ch
	r.mu.Unlock()
	return nil
}

func (r *memoryOtpRepo) Attempt(_ context.Context, phone string, codeHash []byte) (AttemptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[phone]
	if !ok || ch.Consumed {
		return AttemptResult{Outcome: OutcomeNoChallenge}, nil
	}
	if ch.Expired(r.clock.Now()) {
		delete(r.challenges, phone)
		return AttemptResult{Outcome: OutcomeNoChallenge}, nil
	}
	if ch.AttemptsRemaining <= 0 {
		return AttemptResult{Outcome: OutcomeExhausted}, nil
	}

	if subtle.ConstantTimeCompare(codeHash, ch.CodeHash) == 1 {
		delete(r.challenges, phone)
		return AttemptResult{Outcome: OutcomeMatched, AttemptsRemaining: ch.AttemptsRemaining}, nil
	}

	ch.AttemptsRemaining--
	r.challenges[phone] = ch
	if ch.AttemptsRemaining <= 0 {
		return AttemptResult{Outcome: OutcomeExhausted}, nil
	}
	return AttemptResult{Outcome: OutcomeMismatch, AttemptsRemaining: ch.AttemptsRemaining}, nil
}

func (r *memoryOtpRepo) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	delete(r.challenges, phone)
	r.mu.Unlock()
	return nil
}

// Prune drops expired challenges and returns how many were removed
func (r *memoryOtpRepo) Prune(_ context.Context) (int, error) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for phone, ch := range r.challenges {
		if ch.Expired(now) {
			delete(r.challenges, phone)
			n++
		}
	}
	return n, nil
}
