package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string

	JWTSecret       string
	JWTKeyID        string
	JWTPreviousKeys string // kid:secret,kid:secret
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	OTPSalt        string
	OTPDevMode     bool
	OTPTTL         time.Duration
	OTPMaxAttempts int
	OTPPhoneLimit  int
	OTPIPLimit     int
	OTPRateWindow  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// TwilioEnabled reports whether SMS delivery through Twilio is configured
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            "8080", // default port
		JWTKeyID:        "primary",
		JWTIssuer:       "yolla",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		OTPTTL:          5 * time.Minute,
		OTPMaxAttempts:  5,
		OTPPhoneLimit:   3,
		OTPIPLimit:      10,
		OTPRateWindow:   10 * time.Minute,
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
	}

	// Load PORT (optional, defaults to 8080)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Load JWT_SECRET (required)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret
	if kid := os.Getenv("JWT_KEY_ID"); kid != "" {
		cfg.JWTKeyID = kid
	}
	if iss := os.Getenv("JWT_ISSUER"); iss != "" {
		cfg.JWTIssuer = iss
	}
	cfg.JWTPreviousKeys = os.Getenv("JWT_PREVIOUS_SECRETS")

	// Load OTP_SALT (required)
	otpSalt := os.Getenv("OTP_SALT")
	if otpSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}
	cfg.OTPSalt = otpSalt

	var err error
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"OTP_TTL", &cfg.OTPTTL},
		{"OTP_RATE_WINDOW", &cfg.OTPRateWindow},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.name, *d.dst); err != nil {
			return nil, err
		}
	}
	if cfg.AccessTokenTTL >= cfg.RefreshTokenTTL {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL (%v) must be shorter than REFRESH_TOKEN_TTL (%v)", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"OTP_MAX_ATTEMPTS", &cfg.OTPMaxAttempts},
		{"OTP_PHONE_LIMIT", &cfg.OTPPhoneLimit},
		{"OTP_IP_LIMIT", &cfg.OTPIPLimit},
	}
	for _, i := range ints {
		if *i.dst, err = positiveIntEnv(i.name, *i.dst); err != nil {
			return nil, err
		}
	}

	// Redis is optional; without it the process-local stores are used
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if cfg.RedisDB, err = strconv.Atoi(v); err != nil || cfg.RedisDB < 0 {
			return nil, fmt.Errorf("REDIS_DB must be a non-negative integer, got %q", v)
		}
	}

	cfg.RabbitMQURL = os.Getenv("RABBITMQ_URL")

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")

	// Load OTP_DEV_MODE (optional, default false)
	cfg.OTPDevMode = os.Getenv("OTP_DEV_MODE") == "true"

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration like 15m, got %q", name, v)
	}
	return d, nil
}

func positiveIntEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, v)
	}
	return n, nil
}
