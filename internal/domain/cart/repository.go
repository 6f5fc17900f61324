package cart

import "context"

// Repository mutates a cart with single-document atomic updates. Every item
// mutation recomputes TotalPrice inside the same write and returns the cart
// as stored after it.
type Repository interface {
	Insert(ctx context.Context, c *Cart) error
	Get(ctx context.Context, id string) (*Cart, error)
	// PushItem appends item unless the cart already holds its product
	// (ErrDuplicateProduct).
	PushItem(ctx context.Context, cartID string, item Item) (*Cart, error)
	// SetItemQuantity sets the line's quantity. When expected is set the write
	// only succeeds if the stored quantity still equals it, else ErrQuantityChanged.
	SetItemQuantity(ctx context.Context, cartID, itemID string, quantity int, expected *int) (*Cart, error)
	// PullItem removes the line and also returns it as it was stored.
	PullItem(ctx context.Context, cartID, itemID string) (*Cart, Item, error)
	// Delete removes the cart and returns its final state.
	Delete(ctx context.Context, id string) (*Cart, error)
}
