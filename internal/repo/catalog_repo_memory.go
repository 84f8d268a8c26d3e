package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/yolla/server/internal/apperr"
	"github.com/yolla/server/internal/model"
)

// MemoryUserRepo is a process-local identity store. Put seeds or updates users.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.Principal
	byPhone map[string]uuid.UUID
}

// NewMemoryUserRepo creates a MemoryUserRepo holding users
func NewMemoryUserRepo(users ...model.Principal) *MemoryUserRepo {
	r := &MemoryUserRepo{
		byID:    make(map[uuid.UUID]model.Principal),
		byPhone: make(map[string]uuid.UUID),
	}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

func (r *MemoryUserRepo) Put(u model.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[u.ID]; ok {
		delete(r.byPhone, old.PhoneNumber)
	}
	r.byID[u.ID] = u
	r.byPhone[u.PhoneNumber] = u.ID
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return model.Principal{}, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u, nil
}

func (r *MemoryUserRepo) GetByPhone(_ context.Context, phone string) (model.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[phone]
	if !ok {
		return model.Principal{}, apperr.New(apperr.KindNotFound, "user not found")
	}
	return r.byID[id], nil
}

// MemoryProductRepo is a process-local catalog
type MemoryProductRepo struct {
	mu       sync.RWMutex
	products map[int64]model.Product
}

// NewMemoryProductRepo creates a MemoryProductRepo holding products
func NewMemoryProductRepo(products ...model.Product) *MemoryProductRepo {
	r := &MemoryProductRepo{products: make(map[int64]model.Product)}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

func (r *MemoryProductRepo) Put(p model.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

func (r *MemoryProductRepo) GetByID(_ context.Context, id int64) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return model.Product{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("product %d not found", id))
	}
	return p, nil
}
