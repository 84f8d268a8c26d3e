package repo

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
)

// AttemptOutcome is the result of one verification attempt against a challenge
type AttemptOutcome int

const (
	OutcomeNoChallenge AttemptOutcome = iota
	OutcomeMatched
	OutcomeMismatch
	OutcomeExhausted
)

// AttemptResult reports the outcome and the attempts left after it
type AttemptResult struct {
	Outcome           AttemptOutcome
	AttemptsRemaining int
}

// OtpRepo stores at most one live challenge per phone number.
// Attempt is a single critical section per phone: read, compare, then decrement or consume.
type OtpRepo interface {
	// Replace stores ch, superseding any prior challenge for the same phone
	Replace(ctx context.Context, ch model.OtpChallenge) error
	// Attempt compares codeHash against the live challenge. A match consumes the challenge;
	// a mismatch decrements its attempts.
	Attempt(ctx context.Context, phone string, codeHash []byte) (AttemptResult, error)
	// Delete drops the challenge for phone, if any
	Delete(ctx context.Context, phone string) error
}

// attemptScript runs the whole verify step inside Redis so concurrent attempts serialize on the key.
// Digests are compared, never raw codes.
var attemptScript = redis.NewScript(`
	local key = KEYS[1]
	local submitted = ARGV[1]
	local now_ms = tonumber(ARGV[2])

	local state = redis.call('HMGET', key, 'hash', 'expires_ms', 'attempts')
	if not state[1] then
		return {0, 0}
	end

	local expires_ms = tonumber(state[2])
	if expires_ms == nil or now_ms >= expires_ms then
		redis.call('DEL', key)
		return {0, 0}
	end

	local attempts = tonumber(state[3]) or 0
	if attempts <= 0 then
		return {3, 0}
	end

	if state[1] == submitted then
		redis.call('DEL', key)
		return {1, attempts}
	end

	attempts = attempts - 1
	redis.call('HSET', key, 'attempts', attempts)
	if attempts <= 0 then
		return {3, 0}
	end
	return {2, attempts}
`)

type otpRepo struct {
	rdb    *redis.Client
	clock  clock.Clock
	prefix string
}

// NewOtpRepo creates a Redis-backed OtpRepo
func NewOtpRepo(rdb *redis.Client, clk clock.Clock) OtpRepo {
	return &otpRepo{rdb: rdb, clock: clk, prefix: "otp"}
}

func (r *otpRepo) key(phone string) string {
	return r.prefix + ":" + phone
}

// Replace writes the challenge hash and expiry in one MULTI so readers never see a half-written challenge.
func (r *otpRepo) Replace(ctx context.Context, ch model.OtpChallenge) error {
	key := r.key(ch.PhoneNumber)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"hash", hex.EncodeToString(ch.CodeHash),
			"expires_ms", ch.ExpiresAt.UnixMilli(),
			"created_ms", ch.CreatedAt.UnixMilli(),
			"attempts", ch.AttemptsRemaining,
		)
		pipe.PExpireAt(ctx, key, ch.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

func (r *otpRepo) Attempt(ctx context.Context, phone string, codeHash []byte) (AttemptResult, error) {
	now := r.clock.Now()
	vals, err := attemptScript.Run(ctx, r.rdb, []string{r.key(phone)}, hex.EncodeToString(codeHash), now.UnixMilli()).Result()
	if err != nil {
		return AttemptResult{}, fmt.Errorf("otp attempt: %w", err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return AttemptResult{}, fmt.Errorf("otp attempt: unexpected script result %#v", vals)
	}
	return AttemptResult{
		Outcome:           AttemptOutcome(asInt64(arr[0])),
		AttemptsRemaining: int(asInt64(arr[1])),
	}, nil
}

func (r *otpRepo) Delete(ctx context.Context, phone string) error {
	if err := r.rdb.Del(ctx, r.key(phone)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
