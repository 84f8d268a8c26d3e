package order

import (
	"github.com/yolla/server/internal/model"
)

// edges is the status graph. DELIVERED and CANCELLED have no way out.
var edges = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed: {model.OrderShipped, model.OrderCancelled},
	model.OrderShipped:   {model.OrderDelivered},
}

// Guard decides whether actor may move o into the guard's target status
type Guard func(actor model.Principal, o model.Order) bool

// guards is keyed by target status
var guards = map[model.OrderStatus]Guard{
	model.OrderConfirmed: ownerOrAdmin,
	model.OrderCancelled: ownerOrAdmin,
	model.OrderShipped:   fulfilmentStaff,
	model.OrderDelivered: fulfilmentStaff,
}

// CanTransition reports whether from -> to is an edge of the graph
func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Allowed reports whether actor passes the guard for moving o into target
func Allowed(actor model.Principal, o model.Order, target model.OrderStatus) bool {
	g, ok := guards[target]
	return ok && g(actor, o)
}

// CanPlaceOrders reports whether actor may create orders and list its own
func CanPlaceOrders(actor model.Principal) bool {
	return actor.Role == model.RoleAdmin || actor.Role == model.RoleCustomer
}

func ownerOrAdmin(actor model.Principal, o model.Order) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleCustomer:
		return actor.ID == o.OwnerID
	}
	return false
}

func fulfilmentStaff(actor model.Principal, _ model.Order) bool {
	return actor.Role == model.RoleAdmin || actor.Role == model.RolePreparer
}
