package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yolla/server/internal/auth"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/config"
	"github.com/yolla/server/internal/db"
	httphandler "github.com/yolla/server/internal/http"
	"github.com/yolla/server/internal/http/handlers"
	"github.com/yolla/server/internal/order"
	"github.com/yolla/server/internal/queue"
	"github.com/yolla/server/internal/repo"
	"github.com/yolla/server/internal/sms"
)

const janitorInterval = time.Minute

// ephemeralStores are the short-lived auth stores: OTP challenges, rate limit counters and revoked token ids
type ephemeralStores struct {
	otp         repo.OtpRepo
	rateLimit   repo.RateLimitRepo
	revocations repo.RevocationRepo
	health      handlers.HealthCheck
	close       func() error
}

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	clk := clock.NewSystem()

	// Initialize repositories
	userRepo := repo.NewUserRepo(database)
	productRepo := repo.NewProductRepo(database)
	orderRepo := repo.NewOrderRepo(database)

	stores, err := openEphemeralStores(ctx, cfg, clk)
	if err != nil {
		log.Fatalf("Failed to open auth stores: %v", err)
	}
	defer stores.close()

	keys, err := loadKeyRing(cfg)
	if err != nil {
		log.Fatalf("Failed to load signing keys: %v", err)
	}
	log.Printf("Signing tokens with key %q", keys.CurrentID())

	// Initialize auth services
	tokenService := auth.NewTokenService(keys, stores.revocations, clk, auth.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	otpProvider := auth.NewOtpEngine(stores.otp, stores.rateLimit, userRepo, newSender(cfg), clk, cfg.OTPSalt, auth.OtpConfig{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		PhoneLimit:  cfg.OTPPhoneLimit,
		IPLimit:     cfg.OTPIPLimit,
		Window:      cfg.OTPRateWindow,
		DevMode:     cfg.OTPDevMode,
	})
	authService := auth.NewAuthService(otpProvider, tokenService, userRepo)

	publisher := newPublisher(cfg)
	defer publisher.Close()
	orderService := order.NewService(orderRepo, productRepo, publisher, clk)

	// Initialize handlers
	checks := map[string]handlers.HealthCheck{
		"postgres": database.PingContext,
	}
	if stores.health != nil {
		checks["redis"] = stores.health
	}

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:      handlers.NewAuthHandler(authService, cfg.OTPDevMode),
		Orders:    handlers.NewOrderHandler(orderService),
		Health:    handlers.NewHealthHandler(checks),
		Resolver:  authService,
		RateLimit: stores.rateLimit,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server exited")
}

// openEphemeralStores uses Redis when REDIS_ADDR is set so every replica shares challenges, counters and revocations.
// Without it the process-local stores are used and a janitor reclaims expired entries.
func openEphemeralStores(ctx context.Context, cfg *config.Config, clk clock.Clock) (*ephemeralStores, error) {
	if cfg.RedisAddr == "" {
		log.Printf("REDIS_ADDR not set, using in-memory auth stores (single instance only)")
		s := &ephemeralStores{
			otp:         repo.NewMemoryOtpRepo(clk),
			rateLimit:   repo.NewMemoryRateLimitRepo(clk),
			revocations: repo.NewMemoryRevocationRepo(clk),
			close:       func() error { return nil },
		}
		repo.StartJanitor(ctx, janitorInterval, s.otp, s.rateLimit, s.revocations)
		return s, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Printf("Using redis auth stores at %s (db %d)", cfg.RedisAddr, cfg.RedisDB)

	return &ephemeralStores{
		otp:         repo.NewOtpRepo(rdb, clk),
		rateLimit:   repo.NewRateLimitRepo(rdb, clk),
		revocations: repo.NewRevocationRepo(rdb, clk),
		health: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		close: rdb.Close,
	}, nil
}

func loadKeyRing(cfg *config.Config) (*auth.KeyRing, error) {
	previous, err := auth.ParseKeyList(cfg.JWTPreviousKeys)
	if err != nil {
		return nil, err
	}
	return auth.NewKeyRing(auth.SigningKey{ID: cfg.JWTKeyID, Secret: []byte(cfg.JWTSecret)}, previous...)
}

func newSender(cfg *config.Config) sms.Sender {
	if cfg.TwilioEnabled() {
		log.Printf("OTP delivery: twilio")
		return sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.OTPTTL)
	}
	log.Printf("OTP delivery: log only (TWILIO_* not set)")
	return sms.LogSender{}
}

type closingPublisher interface {
	queue.Publisher
	Close() error
}

type nopCloser struct {
	queue.NopPublisher
}

func (nopCloser) Close() error { return nil }

func newPublisher(cfg *config.Config) closingPublisher {
	if cfg.RabbitMQURL == "" {
		log.Printf("RABBITMQ_URL not set, order events are not published")
		return nopCloser{}
	}
	return queue.NewRabbitPublisher(cfg.RabbitMQURL)
}
