package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hezron-sketch/cafe-backend/internal/domain"
)

// MemoryOrderRepository keeps orders in process memory with the same
// version check as the Postgres store. Used for local runs and tests.
type MemoryOrderRepository struct {
	mu         sync.RWMutex
	orders     map[uuid.UUID]*domain.Order
	byCheckout map[string]uuid.UUID
	history    map[uuid.UUID][]domain.StatusChange
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:     make(map[uuid.UUID]*domain.Order),
		byCheckout: make(map[string]uuid.UUID),
		history:    make(map[uuid.UUID][]domain.StatusChange),
	}
}

func (r *MemoryOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ConflictError("order already exists: %s", order.ID)
	}
	if order.IdempotencyKey != "" {
		for _, existing := range r.orders {
			if existing.OwnerID == order.OwnerID && existing.IdempotencyKey == order.IdempotencyKey {
				return domain.ConflictError("order already exists for this idempotency key")
			}
		}
	}

	r.history[order.ID] = append(r.history[order.ID], order.Changes...)
	order.Changes = nil
	r.orders[order.ID] = order.Clone()
	if order.CheckoutRequestID != "" {
		r.byCheckout[order.CheckoutRequestID] = order.ID
	}
	return nil
}

func (r *MemoryOrderRepository) UpdateOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.NotFoundError("order not found: %s", order.ID)
	}
	if stored.Version != order.Version {
		return domain.ConflictError("order %s was modified concurrently, reload and retry", order.ID)
	}
	if order.CheckoutRequestID != "" {
		if owner, taken := r.byCheckout[order.CheckoutRequestID]; taken && owner != order.ID {
			return domain.ConflictError("checkout request already linked to another order")
		}
		r.byCheckout[order.CheckoutRequestID] = order.ID
	}

	r.history[order.ID] = append(r.history[order.ID], order.Changes...)
	order.Changes = nil
	order.Version++
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *MemoryOrderRepository) GetOrderByID(_ context.Context, orderID uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.NotFoundError("order not found: %s", orderID)
	}
	return order.Clone(), nil
}

func (r *MemoryOrderRepository) GetOrderByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCheckout[checkoutRequestID]
	if !ok {
		return nil, domain.NotFoundError("no order for checkout request %s", checkoutRequestID)
	}
	return r.orders[id].Clone(), nil
}

func (r *MemoryOrderRepository) GetOrderByIdempotencyKey(_ context.Context, ownerID, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.OwnerID == ownerID && order.IdempotencyKey == key {
			return order.Clone(), nil
		}
	}
	return nil, domain.NotFoundError("no order for idempotency key")
}

func (r *MemoryOrderRepository) GetOrdersByOwnerID(_ context.Context, ownerID string, limit, offset int) ([]*domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var owned []*domain.Order
	for _, order := range r.orders {
		if order.OwnerID == ownerID {
			owned = append(owned, order.Clone())
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return owned[offset:end], total, nil
}

func (r *MemoryOrderRepository) GetOrdersByStatus(_ context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*domain.Order
	for _, order := range r.orders {
		if order.Status == status {
			orders = append(orders, order.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *MemoryOrderRepository) GetStatusHistory(_ context.Context, orderID uuid.UUID) ([]domain.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.StatusChange(nil), r.history[orderID]...), nil
}
