// Package queue publishes order domain events to RabbitMQ.
// Publishing is best effort: callers log failures and carry on.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yolla/server/internal/model"
)

// OrderStatusQueueName is the durable queue that receives OrderStatusChanged events
const OrderStatusQueueName = "order.status_changed"

// OrderStatusChanged is emitted after a successful order transition
type OrderStatusChanged struct {
	OrderID   uuid.UUID         `json:"order_id"`
	OwnerID   uuid.UUID         `json:"owner_id"`
	From      model.OrderStatus `json:"from"`
	To        model.OrderStatus `json:"to"`
	ActorID   uuid.UUID         `json:"actor_id"`
	ActorRole model.Role        `json:"actor_role"`
	ChangedAt time.Time         `json:"changed_at"`
}

// Publisher delivers order events
type Publisher interface {
	PublishOrderStatusChanged(ctx context.Context, event OrderStatusChanged) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishOrderStatusChanged(context.Context, OrderStatusChanged) error {
	return nil
}
