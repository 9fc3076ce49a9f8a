package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/hezron-sketch/cafe-backend/internal/domain"
)

// CatalogRepository reads menu items; menu CRUD lives elsewhere.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	item := &domain.MenuItem{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, available
		FROM menu_items
		WHERE id = $1`, id).Scan(&item.ID, &item.Name, &item.Price, &item.Available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("menu item not found: %s", id)
		}
		return nil, fmt.Errorf("menu item receive error: %w", err)
	}
	return item, nil
}

// MemoryCatalog is a fixed in-process menu.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]domain.MenuItem
}

func NewMemoryCatalog(items ...domain.MenuItem) *MemoryCatalog {
	c := &MemoryCatalog{items: make(map[string]domain.MenuItem, len(items))}
	for _, item := range items {
		c.items[item.ID] = item
	}
	return c
}

func (c *MemoryCatalog) Put(item domain.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

func (c *MemoryCatalog) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, domain.NotFoundError("menu item not found: %s", id)
	}
	return &item, nil
}
