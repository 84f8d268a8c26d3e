// Package tests holds end-to-end tests that drive the full HTTP stack.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yolla/server/internal/auth"
	"github.com/yolla/server/internal/clock"
	httphandler "github.com/yolla/server/internal/http"
	"github.com/yolla/server/internal/http/handlers"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/order"
	"github.com/yolla/server/internal/queue"
	"github.com/yolla/server/internal/repo"
)

const (
	// TestJWTSecret is long enough for the key ring's minimum
	TestJWTSecret = "test-jwt-secret-at-least-32-characters-long"
	TestOTPSalt   = "test-otp-salt"
)

// Stores are the durable stores behind the app: users, products and orders
type Stores struct {
	Users    repo.UserRepo
	Products repo.ProductRepo
	Orders   repo.OrderRepo
}

// MemoryStores seeds process-local stores
func MemoryStores(users []model.Principal, products []model.Product) Stores {
	return Stores{
		Users:    repo.NewMemoryUserRepo(users...),
		Products: repo.NewMemoryProductRepo(products...),
		Orders:   repo.NewMemoryOrderRepo(),
	}
}

// PostgresStores uses the SQL-backed stores on database
func PostgresStores(database *sql.DB) Stores {
	return Stores{
		Users:    repo.NewUserRepo(database),
		Products: repo.NewProductRepo(database),
		Orders:   repo.NewOrderRepo(database),
	}
}

// CapturingSender keeps the last code sent to each phone instead of delivering it
type CapturingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *CapturingSender) Send(_ context.Context, phoneNumber, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	s.codes[phoneNumber] = code
	return nil
}

// LastCode returns the most recent code sent to phoneNumber
func (s *CapturingSender) LastCode(phoneNumber string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phoneNumber]
}

// RecordingPublisher keeps every published order event
type RecordingPublisher struct {
	mu     sync.Mutex
	events []queue.OrderStatusChanged
}

func (p *RecordingPublisher) PublishOrderStatusChanged(_ context.Context, ev queue.OrderStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// Events returns a copy of the published events
func (p *RecordingPublisher) Events() []queue.OrderStatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.OrderStatusChanged(nil), p.events...)
}

// App is a fully wired router with observable delivery and event channels
type App struct {
	Handler http.Handler
	Sender  *CapturingSender
	Events  *RecordingPublisher
}

// NewApp wires the router the same way cmd/api does. A nil rdb selects the in-memory auth stores.
func NewApp(stores Stores, rdb *redis.Client) (*App, error) {
	clk := clock.NewSystem()

	var (
		otpRepo     repo.OtpRepo
		rateLimit   repo.RateLimitRepo
		revocations repo.RevocationRepo
	)
	if rdb != nil {
		otpRepo = repo.NewOtpRepo(rdb, clk)
		rateLimit = repo.NewRateLimitRepo(rdb, clk)
		revocations = repo.NewRevocationRepo(rdb, clk)
	} else {
		otpRepo = repo.NewMemoryOtpRepo(clk)
		rateLimit = repo.NewMemoryRateLimitRepo(clk)
		revocations = repo.NewMemoryRevocationRepo(clk)
	}

	keys, err := auth.NewKeyRing(auth.SigningKey{ID: "test", Secret: []byte(TestJWTSecret)})
	if err != nil {
		return nil, fmt.Errorf("key ring: %w", err)
	}

	sender := &CapturingSender{}
	events := &RecordingPublisher{}

	tokenService := auth.NewTokenService(keys, revocations, clk, auth.TokenConfig{})
	otpProvider := auth.NewOtpEngine(otpRepo, rateLimit, stores.Users, sender, clk, TestOTPSalt, auth.OtpConfig{})
	authService := auth.NewAuthService(otpProvider, tokenService, stores.Users)

	orderService := order.NewService(stores.Orders, stores.Products, events, clk)

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:   handlers.NewAuthHandler(authService, false),
		Orders: handlers.NewOrderHandler(orderService),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthCheck{
			"stores": func(context.Context) error { return nil },
		}),
		Resolver:  authService,
		RateLimit: rateLimit,
	})

	return &App{Handler: router, Sender: sender, Events: events}, nil
}

// TruncateTables empties the durable tables for a clean test state
func TruncateTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE order_items, orders, products, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// SeedUser inserts a user row
func SeedUser(ctx context.Context, database *sql.DB, u model.Principal) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO users (id, phone_number, role, active, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.PhoneNumber, string(u.Role), u.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	return nil
}

// SeedProduct inserts a product row and returns its id
func SeedProduct(ctx context.Context, database *sql.DB, p model.Product) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx,
		`INSERT INTO products (name, price, stock_quantity, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Price.String(), p.StockQuantity, p.Active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("seed product: %w", err)
	}
	return id, nil
}
