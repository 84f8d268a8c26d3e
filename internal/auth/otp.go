package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/phone"
	"github.com/yolla/server/internal/repo"
	"github.com/yolla/server/internal/sms"
)

const (
	otpLength           = 6
	otpExpiry           = 5 * time.Minute
	maxAttempts         = 5
	requestWindow       = 10 * time.Minute
	maxRequestsPerPhone = 3
	maxRequestsPerIP    = 10
)

// DevOTPCode is the fixed code issued in dev mode
const DevOTPCode = "123456"

// OtpConfig tunes the OTP engine. Zero values take the defaults above.
type OtpConfig struct {
	TTL         time.Duration
	MaxAttempts int
	PhoneLimit  int
	IPLimit     int
	Window      time.Duration
	// DevMode issues the fixed code 123456 instead of a random one
	DevMode bool
}

func (c OtpConfig) withDefaults() OtpConfig {
	if c.TTL <= 0 {
		c.TTL = otpExpiry
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = maxAttempts
	}
	if c.PhoneLimit <= 0 {
		c.PhoneLimit = maxRequestsPerPhone
	}
	if c.IPLimit <= 0 {
		c.IPLimit = maxRequestsPerIP
	}
	if c.Window <= 0 {
		c.Window = requestWindow
	}
	return c
}

// CodeAck acknowledges a code request. It never carries the code.
type CodeAck struct {
	PhoneNumber string
	ExpiresAt   time.Time
}

// OtpEngine implements OtpProvider on top of the challenge, rate limit and identity stores
type OtpEngine struct {
	otpRepo  repo.OtpRepo
	limiter  repo.RateLimitRepo
	userRepo repo.UserRepo
	sender   sms.Sender
	clock    clock.Clock
	salt     string
	cfg      OtpConfig
}

// NewOtpEngine creates a new OTP provider
func NewOtpEngine(
	otpRepo repo.OtpRepo,
	limiter repo.RateLimitRepo,
	userRepo repo.UserRepo,
	sender sms.Sender,
	clk clock.Clock,
	salt string,
	cfg OtpConfig,
) *OtpEngine {
	return &OtpEngine{
		otpRepo:  otpRepo,
		limiter:  limiter,
		userRepo: userRepo,
		sender:   sender,
		clock:    clk,
		salt:     salt,
		cfg:      cfg.withDefaults(),
	}
}

// RequestCode creates or replaces the challenge for phone and hands the code to the delivery channel.
// Rate limits: PhoneLimit requests per Window per phone and IPLimit per Window per source IP.
func (p *OtpEngine) RequestCode(ctx context.Context, rawPhone, ip string) (CodeAck, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return CodeAck{}, err
	}

	ok, err := p.limiter.Allow(ctx, "otp:phone:"+phoneNumber, p.cfg.PhoneLimit, p.cfg.Window)
	if err != nil {
		return CodeAck{}, fmt.Errorf("rate limit check: %w", err)
	}
	if !ok {
		return CodeAck{}, apperr.New(apperr.KindRateLimited,
			fmt.Sprintf("max %d OTP requests per %v per phone", p.cfg.PhoneLimit, p.cfg.Window))
	}
	if ip != "" {
		ok, err = p.limiter.Allow(ctx, "otp:ip:"+ip, p.cfg.IPLimit, p.cfg.Window)
		if err != nil {
			return CodeAck{}, fmt.Errorf("rate limit check: %w", err)
		}
		if !ok {
			return CodeAck{}, apperr.New(apperr.KindRateLimited,
				fmt.Sprintf("max %d OTP requests per %v per IP", p.cfg.IPLimit, p.cfg.Window))
		}
	}

	code := DevOTPCode
	if !p.cfg.DevMode {
		code, err = generateOTPCode()
		if err != nil {
			return CodeAck{}, fmt.Errorf("generate otp: %w", err)
		}
	}

	now := p.clock.Now()
	ch := model.OtpChallenge{
		PhoneNumber:       phoneNumber,
		CodeHash:          hashOTPBytes(phoneNumber, code, p.salt),
		CreatedAt:         now,
		ExpiresAt:         now.Add(p.cfg.TTL),
		AttemptsRemaining: p.cfg.MaxAttempts,
	}
	if err := p.otpRepo.Replace(ctx, ch); err != nil {
		return CodeAck{}, fmt.Errorf("create challenge: %w", err)
	}

	if err := p.sender.Send(ctx, phoneNumber, code); err != nil {
		log.Printf("Phone %s: otp delivery failed: %v", phone.Mask(phoneNumber), err)
		if delErr := p.otpRepo.Delete(ctx, phoneNumber); delErr != nil {
			log.Printf("Phone %s: failed to drop undelivered challenge: %v", phone.Mask(phoneNumber), delErr)
		}
		return CodeAck{}, apperr.Wrap(apperr.KindTransientFailure, err, "otp delivery failed, retry later")
	}

	return CodeAck{PhoneNumber: phoneNumber, ExpiresAt: ch.ExpiresAt}, nil
}

// VerifyCode checks code against the live challenge and, on a match, resolves the principal.
// The compare-and-consume step is atomic per phone inside the store.
func (p *OtpEngine) VerifyCode(ctx context.Context, rawPhone, code string) (model.Principal, error) {
	phoneNumber, err := phone.Normalize(rawPhone)
	if err != nil {
		return model.Principal{}, err
	}
	if code == "" {
		return model.Principal{}, apperr.New(apperr.KindValidation, "code is required")
	}

	res, err := p.otpRepo.Attempt(ctx, phoneNumber, hashOTPBytes(phoneNumber, code, p.salt))
	if err != nil {
		return model.Principal{}, fmt.Errorf("failed to record attempt: %w", err)
	}

	switch res.Outcome {
	case repo.OutcomeNoChallenge:
		return model.Principal{}, apperr.ErrNoActiveChallenge
	case repo.OutcomeExhausted:
		return model.Principal{}, apperr.ErrAttemptsExhausted
	case repo.OutcomeMismatch:
		return model.Principal{}, apperr.New(apperr.KindCodeMismatch,
			fmt.Sprintf("invalid code, %d attempts left", res.AttemptsRemaining))
	case repo.OutcomeMatched:
	default:
		return model.Principal{}, fmt.Errorf("unexpected attempt outcome %d", res.Outcome)
	}

	user, err := p.userRepo.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return model.Principal{}, err
	}
	if !user.Active {
		return model.Principal{}, apperr.New(apperr.KindForbidden, "user is inactive")
	}
	return user, nil
}

// generateOTPCode returns a uniformly random fixed-length numeric code
func generateOTPCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n.Int64()), nil
}

// hashOTPBytes returns SHA-256(phone:code:salt); only this digest is ever stored
func hashOTPBytes(phoneNumber, code, salt string) []byte {
	data := fmt.Sprintf("%s:%s:%s", phoneNumber, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hash[:]
}
