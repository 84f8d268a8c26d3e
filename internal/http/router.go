package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yolla/server/internal/http/handlers"
	"github.com/yolla/server/internal/middleware"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/repo"
)

// verify_otp is limited per IP on top of the per-challenge attempt cap
const (
	verifyIPLimit  = 20
	verifyIPWindow = 10 * time.Minute
)

// Deps are the handlers and collaborators the router wires together
type Deps struct {
	Auth      *handlers.AuthHandler
	Orders    *handlers.OrderHandler
	Health    *handlers.HealthHandler
	Resolver  middleware.PrincipalResolver
	RateLimit repo.RateLimitRepo
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", d.Health.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/request_otp", d.Auth.HandleRequestOTP)
		r.With(middleware.RateLimitMiddleware(d.RateLimit, verifyIPLimit, verifyIPWindow, middleware.KeyByRoute("verify_otp"))).
			Post("/verify_otp", d.Auth.HandleVerifyOTP)
		r.Post("/refresh", d.Auth.HandleRefresh)
		r.Post("/logout", d.Auth.HandleLogout)
		r.Get("/validate", d.Auth.HandleValidate)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Resolver))
		r.Get("/me", d.Auth.HandleMe)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", d.Orders.HandleCreate)
			r.Get("/", d.Orders.HandleList)
			r.Get("/{id}", d.Orders.HandleGet)
			r.Put("/{id}/confirm", d.Orders.HandleTransition(model.OrderConfirmed))
			r.Put("/{id}/ship", d.Orders.HandleTransition(model.OrderShipped))
			r.Put("/{id}/deliver", d.Orders.HandleTransition(model.OrderDelivered))
			r.Put("/{id}/cancel", d.Orders.HandleTransition(model.OrderCancelled))
		})
	})

	return r
}
