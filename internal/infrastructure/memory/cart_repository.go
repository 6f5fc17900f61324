package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
)

// CartRepository keeps carts in a map; one mutex makes each operation atomic.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
	now   func() time.Time
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts: make(map[string]*domain.Cart),
		now:   time.Now,
	}
}

func (r *CartRepository) Insert(ctx context.Context, c *domain.Cart) error {
	_ = ctx
	if c == nil || c.ID == "" {
		return fmt.Errorf("cart repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.carts[c.ID]; exists {
		return fmt.Errorf("cart repository: duplicate id %q", c.ID)
	}
	r.carts[c.ID] = c.Clone()
	return nil
}

func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *CartRepository) PushItem(ctx context.Context, cartID string, item domain.Item) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(c *domain.Cart, now time.Time) error {
		if c.HasProduct(item.ProductID) {
			return domain.ErrDuplicateProduct
		}
		return c.AddItem(item, now)
	})
}

func (r *CartRepository) SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int, expected *int) (*domain.Cart, error) {
	return r.mutate(ctx, cartID, func(c *domain.Cart, now time.Time) error {
		if it, ok := c.Item(itemID); ok && expected != nil && it.Quantity != *expected {
			return domain.ErrQuantityChanged
		}
		_, err := c.SetQuantity(itemID, quantity, now)
		return err
	})
}

func (r *CartRepository) PullItem(ctx context.Context, cartID, itemID string) (*domain.Cart, domain.Item, error) {
	var removed domain.Item
	c, err := r.mutate(ctx, cartID, func(c *domain.Cart, now time.Time) error {
		var err error
		removed, err = c.RemoveItem(itemID, now)
		return err
	})
	if err != nil {
		return nil, domain.Item{}, err
	}
	return c, removed, nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) (*domain.Cart, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.carts, id)
	return c, nil
}

// mutate applies fn to a working copy and stores it only when fn succeeds.
func (r *CartRepository) mutate(ctx context.Context, cartID string, fn func(*domain.Cart, time.Time) error) (*domain.Cart, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.carts[cartID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := stored.Clone()
	if err := fn(next, r.now()); err != nil {
		return nil, err
	}
	r.carts[cartID] = next
	return next.Clone(), nil
}
