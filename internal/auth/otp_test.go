package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/repo"
)

const (
	testPhone  = "+994501234567"
	testIP     = "203.0.113.7"
	testSalt   = "test-salt"
	testSecret = "test-jwt-secret-at-least-32-characters-long"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// captureSender records the last code sent to each phone
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (c *captureSender) Send(_ context.Context, phoneNumber, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.codes[phoneNumber] = code
	return nil
}

func (c *captureSender) last(phoneNumber string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phoneNumber]
}

type fixture struct {
	clock  *clock.Manual
	users  *repo.MemoryUserRepo
	sender *captureSender
	otp    *OtpEngine
	tokens *TokenService
	auth   *AuthService
	user   model.Principal
}

func newFixture(t *testing.T, cfg OtpConfig) *fixture {
	t.Helper()
	clk := clock.NewManual(testNow)
	user := model.Principal{
		ID:          uuid.New(),
		PhoneNumber: testPhone,
		Role:        model.RoleCustomer,
		Active:      true,
		CreatedAt:   testNow,
	}
	users := repo.NewMemoryUserRepo(user)
	sender := newCaptureSender()

	keys, err := NewKeyRing(SigningKey{ID: "k1", Secret: []byte(testSecret)})
	require.NoError(t, err)

	otp := NewOtpEngine(repo.NewMemoryOtpRepo(clk), repo.NewMemoryRateLimitRepo(clk), users, sender, clk, testSalt, cfg)
	tokens := NewTokenService(keys, repo.NewMemoryRevocationRepo(clk), clk, TokenConfig{})
	return &fixture{
		clock:  clk,
		users:  users,
		sender: sender,
		otp:    otp,
		tokens: tokens,
		auth:   NewAuthService(otp, tokens, users),
		user:   user,
	}
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestHashOTPBytes_consistency(t *testing.T) {
	phone, code, salt := "+49123", "123456", "test-salt"
	h1 := hashOTPBytes(phone, code, salt)
	h2 := hashOTPBytes(phone, code, salt)
	assert.Equal(t, h1, h2, "hash should be deterministic")
	assert.Len(t, h1, 32, "SHA-256 hash should be 32 bytes")
}

func TestHashOTPBytes_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashOTPBytes("+49123", "123456", salt)
	h2 := hashOTPBytes("+49124", "123456", salt)
	h3 := hashOTPBytes("+49123", "654321", salt)
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h2, h3)
}

func TestGenerateOTPCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		require.Len(t, code, otpLength)
		for _, c := range code {
			require.True(t, c >= '0' && c <= '9', "non-digit in %q", code)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 150, "codes should not repeat often")
}

func TestOtpEngine_VerifySucceedsOnceThenReplayFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	ack, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	assert.Equal(t, testPhone, ack.PhoneNumber)
	assert.True(t, ack.ExpiresAt.Equal(testNow.Add(5*time.Minute)))

	code := f.sender.last(testPhone)
	require.Len(t, code, 6)

	user, err := f.otp.VerifyCode(ctx, testPhone, code)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)
	assert.Equal(t, model.RoleCustomer, user.Role)

	_, err = f.otp.VerifyCode(ctx, testPhone, code)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestOtpEngine_PhoneIsNormalizedOnBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, "+994 50 123 45 67", testIP)
	require.NoError(t, err)

	_, err = f.otp.VerifyCode(ctx, "+994-50-123-45-67", f.sender.last(testPhone))
	assert.NoError(t, err)
}

func TestOtpEngine_WrongCodesExhaustAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := f.sender.last(testPhone)

	for i := 1; i < maxAttempts; i++ {
		_, err = f.otp.VerifyCode(ctx, testPhone, wrongCode(code))
		require.ErrorIs(t, err, apperr.ErrCodeMismatch, "attempt %d", i)
		assert.Contains(t, err.Error(), fmt.Sprintf("%d attempts left", maxAttempts-i))
	}

	_, err = f.otp.VerifyCode(ctx, testPhone, wrongCode(code))
	assert.ErrorIs(t, err, apperr.ErrAttemptsExhausted, "the failing attempt that reaches zero")

	_, err = f.otp.VerifyCode(ctx, testPhone, code)
	assert.ErrorIs(t, err, apperr.ErrAttemptsExhausted, "correct code after exhaustion still fails")
}

func TestOtpEngine_MismatchKeepsChallengeUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := f.sender.last(testPhone)

	_, err = f.otp.VerifyCode(ctx, testPhone, wrongCode(code))
	require.ErrorIs(t, err, apperr.ErrCodeMismatch)

	_, err = f.otp.VerifyCode(ctx, testPhone, code)
	assert.NoError(t, err)
}

func TestOtpEngine_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := f.sender.last(testPhone)

	f.clock.Advance(5 * time.Minute)
	_, err = f.otp.VerifyCode(ctx, testPhone, code)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestOtpEngine_NoChallenge(t *testing.T) {
	f := newFixture(t, OtpConfig{})
	_, err := f.otp.VerifyCode(context.Background(), testPhone, "123456")
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestOtpEngine_NewRequestSupersedesPrior(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	first := f.sender.last(testPhone)

	_, err = f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	second := f.sender.last(testPhone)

	if first != second {
		_, err = f.otp.VerifyCode(ctx, testPhone, first)
		require.ErrorIs(t, err, apperr.ErrCodeMismatch)
	}

	_, err = f.otp.VerifyCode(ctx, testPhone, second)
	assert.NoError(t, err)
}

func TestOtpEngine_RateLimitPerPhone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	for i := 0; i < maxRequestsPerPhone; i++ {
		_, err := f.otp.RequestCode(ctx, testPhone, testIP)
		require.NoError(t, err)
	}
	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	f.clock.Advance(requestWindow)
	_, err = f.otp.RequestCode(ctx, testPhone, testIP)
	assert.NoError(t, err, "window slid past the first request")
}

func TestOtpEngine_RateLimitPerIP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{IPLimit: 2})

	_, err := f.otp.RequestCode(ctx, "+15550100001", testIP)
	require.NoError(t, err)
	_, err = f.otp.RequestCode(ctx, "+15550100002", testIP)
	require.NoError(t, err)

	_, err = f.otp.RequestCode(ctx, "+15550100003", testIP)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	_, err = f.otp.RequestCode(ctx, "+15550100003", "198.51.100.1")
	assert.NoError(t, err, "other source IPs are unaffected")
}

func TestOtpEngine_InvalidPhone(t *testing.T) {
	f := newFixture(t, OtpConfig{})
	_, err := f.otp.RequestCode(context.Background(), "0501234567", testIP)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.otp.VerifyCode(context.Background(), "not-a-phone", "123456")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOtpEngine_DeliveryFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{DevMode: true})
	f.sender.err = errors.New("gateway timeout")

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.ErrorIs(t, err, apperr.ErrTransientFailure)
	assert.True(t, apperr.Retryable(err))

	// the undelivered challenge must not be usable
	_, err = f.otp.VerifyCode(ctx, testPhone, DevOTPCode)
	assert.ErrorIs(t, err, apperr.ErrNoActiveChallenge)
}

func TestOtpEngine_DevModeUsesFixedCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{DevMode: true})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	assert.Equal(t, DevOTPCode, f.sender.last(testPhone))

	_, err = f.otp.VerifyCode(ctx, testPhone, DevOTPCode)
	assert.NoError(t, err)
}

func TestOtpEngine_UnknownAndInactiveUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{DevMode: true})

	_, err := f.otp.RequestCode(ctx, "+15550100199", testIP)
	require.NoError(t, err)
	_, err = f.otp.VerifyCode(ctx, "+15550100199", DevOTPCode)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	inactive := f.user
	inactive.Active = false
	f.users.Put(inactive)

	_, err = f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	_, err = f.otp.VerifyCode(ctx, testPhone, DevOTPCode)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestOtpEngine_ConcurrentVerifySingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, OtpConfig{})

	_, err := f.otp.RequestCode(ctx, testPhone, testIP)
	require.NoError(t, err)
	code := f.sender.last(testPhone)

	const n = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		others    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.otp.VerifyCode(ctx, testPhone, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrNoActiveChallenge), errors.Is(err, apperr.ErrAttemptsExhausted):
				others++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, others)
}
