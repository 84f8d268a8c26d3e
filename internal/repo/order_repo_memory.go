package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]model.Order
}

// NewMemoryOrderRepo creates a process-local OrderRepo
func NewMemoryOrderRepo() OrderRepo {
	return &memoryOrderRepo{orders: make(map[uuid.UUID]model.Order)}
}

func cloneOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return o
}

func (r *memoryOrderRepo) Create(_ context.Context, order model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *memoryOrderRepo) GetByID(_ context.Context, id uuid.UUID) (model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return model.Order{}, apperr.New(apperr.KindNotFound, "order not found")
	}
	return cloneOrder(o), nil
}

func (r *memoryOrderRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, offset, limit int) ([]model.Order, error) {
	r.mu.Lock()
	var owned []model.Order
	for _, o := range r.orders {
		if o.OwnerID == ownerID {
			owned = append(owned, cloneOrder(o))
		}
	}
	r.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID.String() < owned[j].ID.String()
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (r *memoryOrderRepo) Update(_ context.Context, id uuid.UUID, fn func(o *model.Order) error) (model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[id]
	if !ok {
		return model.Order{}, apperr.New(apperr.KindNotFound, "order not found")
	}
	next := cloneOrder(current)
	if err := fn(&next); err != nil {
		return model.Order{}, err
	}
	// only mutable fields are written back
	current.Status = next.Status
	current.Notes = next.Notes
	current.UpdatedAt = next.UpdatedAt
	r.orders[id] = current
	return cloneOrder(current), nil
}
