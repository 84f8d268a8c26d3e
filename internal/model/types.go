package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the authorization role of a principal
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RolePreparer Role = "PREPARER"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RolePreparer:
		return true
	}
	return false
}

// Principal is a user identity as seen by the auth core. Owned by the identity store.
type Principal struct {
	ID          uuid.UUID
	PhoneNumber string
	Role        Role
	Active      bool
	CreatedAt   time.Time
}

// OtpChallenge is a pending one-time code for a phone number. Only the code hash is kept.
type OtpChallenge struct {
	PhoneNumber       string
	CodeHash          []byte
	CreatedAt         time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	Consumed          bool
}

// Expired reports whether the challenge is past its expiry at now
func (c OtpChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Product is the read-only catalog view used when snapshotting order items
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no transition leaves s
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Order is a purchase order. TotalAmount is fixed at creation.
type Order struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Items       []OrderItem
}

// OrderItem is one snapshotted line of an order
type OrderItem struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// LineTotal returns quantity * unit price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
