package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

func newTestOrder(owner uuid.UUID, createdAt time.Time) model.Order {
	return model.Order{
		ID:          uuid.New(),
		OwnerID:     owner,
		Status:      model.OrderPending,
		TotalAmount: decimal.RequireFromString("19.98"),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Items: []model.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}
}

func TestMemoryOrderRepo_UpdateWritesOnlyMutableFields(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOrderRepo()
	o := newTestOrder(uuid.New(), testNow)
	require.NoError(t, r.Create(ctx, o))

	updated, err := r.Update(ctx, o.ID, func(cur *model.Order) error {
		cur.Status = model.OrderConfirmed
		cur.UpdatedAt = testNow.Add(time.Minute)
		cur.TotalAmount = decimal.NewFromInt(1)
		cur.Items[0].Quantity = 99
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, updated.Status)
	assert.True(t, updated.TotalAmount.Equal(decimal.RequireFromString("19.98")), "total is immutable")
	assert.Equal(t, 2, updated.Items[0].Quantity, "items are immutable")

	got, err := r.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderConfirmed, got.Status)
}

func TestMemoryOrderRepo_UpdateErrorLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOrderRepo()
	o := newTestOrder(uuid.New(), testNow)
	require.NoError(t, r.Create(ctx, o))

	boom := errors.New("guard failed")
	_, err := r.Update(ctx, o.ID, func(cur *model.Order) error {
		cur.Status = model.OrderCancelled
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := r.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)
}

func TestMemoryOrderRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOrderRepo()

	_, err := r.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = r.Update(ctx, uuid.New(), func(*model.Order) error { return nil })
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryOrderRepo_ListByOwnerPaginates(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryOrderRepo()
	owner := uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		o := newTestOrder(owner, testNow.Add(time.Duration(i)*time.Minute))
		ids = append(ids, o.ID)
		require.NoError(t, r.Create(ctx, o))
	}
	require.NoError(t, r.Create(ctx, newTestOrder(uuid.New(), testNow)))

	page, err := r.ListByOwner(ctx, owner, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID, "newest first")
	assert.Equal(t, ids[3], page[1].ID)

	page, err = r.ListByOwner(ctx, owner, 4, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	page, err = r.ListByOwner(ctx, owner, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
