// Package order implements order creation and the role-gated status state machine.
package order

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/clock"
	"github.com/yolla/server/internal/model"
	"github.com/yolla/server/internal/queue"
	"github.com/yolla/server/internal/repo"
)

const (
	maxNotesLength  = 500
	defaultPageSize = 20
	maxPageSize     = 100
	// order_items.quantity is an INTEGER column
	maxQuantity = math.MaxInt32
)

// ItemRequest is one requested order line
type ItemRequest struct {
	ProductID int64
	Quantity  int
}

// Service creates orders and moves them through the status graph
type Service struct {
	orders   repo.OrderRepo
	products repo.ProductRepo
	events   queue.Publisher
	clock    clock.Clock
}

// NewService creates a new order service
func NewService(orders repo.OrderRepo, products repo.ProductRepo, events queue.Publisher, clk clock.Clock) *Service {
	return &Service{
		orders:   orders,
		products: products,
		events:   events,
		clock:    clk,
	}
}

// Create prices the requested items from the catalog and stores a PENDING order owned by actor.
// Stock is only read here; reserving it is the catalog's concern.
func (s *Service) Create(ctx context.Context, actor model.Principal, items []ItemRequest, notes string) (model.Order, error) {
	ownerID := actor.ID
	if ownerID == uuid.Nil {
		return model.Order{}, apperr.New(apperr.KindValidation, "owner is required")
	}
	if !CanPlaceOrders(actor) {
		return model.Order{}, apperr.New(apperr.KindForbidden, fmt.Sprintf("role %s may not place orders", actor.Role))
	}
	if len(items) == 0 {
		return model.Order{}, apperr.New(apperr.KindValidation, "order must contain at least one item")
	}
	if len(notes) > maxNotesLength {
		return model.Order{}, apperr.New(apperr.KindValidation, fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}

	requested := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return model.Order{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("quantity for product %d must be positive", it.ProductID))
		}
		if it.Quantity > maxQuantity-requested[it.ProductID] {
			return model.Order{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("quantity for product %d must be at most %d", it.ProductID, maxQuantity))
		}
		requested[it.ProductID] += it.Quantity
	}

	products := make(map[int64]model.Product, len(requested))
	for id, qty := range requested {
		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			return model.Order{}, err
		}
		if !p.Active {
			return model.Order{}, apperr.New(apperr.KindValidation, fmt.Sprintf("product %d is not available", id))
		}
		if qty > p.StockQuantity {
			return model.Order{}, apperr.New(apperr.KindValidation,
				fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", id, qty, p.StockQuantity))
		}
		products[id] = p
	}

	lines := make([]model.OrderItem, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		line := model.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: products[it.ProductID].Price,
		}
		total = total.Add(line.LineTotal())
		lines = append(lines, line)
	}
	if !total.IsPositive() {
		return model.Order{}, apperr.New(apperr.KindValidation, "order total must be positive")
	}

	now := s.clock.Now()
	o := model.Order{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Status:      model.OrderPending,
		TotalAmount: total,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       lines,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return model.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	log.Printf("Order %s: created by %s, total %s", o.ID, ownerID, total.StringFixed(2))
	return o, nil
}

// Transition moves the order to target. The graph is checked before the guard, and both are
// evaluated against the status current inside the order's critical section.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target model.OrderStatus, actor model.Principal) (model.Order, error) {
	var from model.OrderStatus
	updated, err := s.orders.Update(ctx, id, func(o *model.Order) error {
		if !CanTransition(o.Status, target) {
			return apperr.New(apperr.KindInvalidTransition,
				fmt.Sprintf("cannot move order from %s to %s", o.Status, target))
		}
		if !Allowed(actor, *o, target) {
			return apperr.New(apperr.KindForbidden,
				fmt.Sprintf("role %s may not move this order to %s", actor.Role, target))
		}
		from = o.Status
		o.Status = target
		o.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	log.Printf("Order %s: %s -> %s by %s (%s)", id, from, target, actor.ID, actor.Role)

	event := queue.OrderStatusChanged{
		OrderID:   updated.ID,
		OwnerID:   updated.OwnerID,
		From:      from,
		To:        target,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		ChangedAt: updated.UpdatedAt,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		log.Printf("Order %s: failed to publish status change: %v", id, err)
	}
	return updated, nil
}

// Get returns an order visible to actor: its owner, or fulfilment staff
func (s *Service) Get(ctx context.Context, id uuid.UUID, actor model.Principal) (model.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	if actor.Role == model.RoleAdmin || actor.Role == model.RolePreparer || actor.ID == o.OwnerID {
		return o, nil
	}
	return model.Order{}, apperr.New(apperr.KindForbidden, "order belongs to another customer")
}

// ListByOwner pages through actor's own orders, newest first. limit 0 means the default page size.
func (s *Service) ListByOwner(ctx context.Context, actor model.Principal, offset, limit int) ([]model.Order, error) {
	if !CanPlaceOrders(actor) {
		return nil, apperr.New(apperr.KindForbidden, fmt.Sprintf("role %s has no orders of its own", actor.Role))
	}
	if offset < 0 {
		return nil, apperr.New(apperr.KindValidation, "offset must not be negative")
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit < 0 || limit > maxPageSize {
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	}
	return s.orders.ListByOwner(ctx, actor.ID, offset, limit)
}
