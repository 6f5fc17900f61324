package cart

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	ErrNotFound         = errors.New("cart: not found")
	ErrItemNotFound     = errors.New("cart: item not found")
	ErrDuplicateProduct = errors.New("cart: product already in cart")
	ErrCurrencyMismatch = errors.New("cart: product currency differs from cart currency")
	ErrInvalidQuantity  = errors.New("cart: quantity must be at least 1")
	ErrInvalidPrice     = errors.New("cart: price must not be negative")
	ErrQuantityChanged  = errors.New("cart: item quantity changed since it was read")
)

// Snapshot freezes what the product looked like when it was added.
// It is never re-synced with the catalog.
type Snapshot struct {
	productName string
	price       decimal.Decimal
	currency    currency.Unit
}

func NewSnapshot(productName string, price decimal.Decimal, cur currency.Unit) (Snapshot, error) {
	if price.IsNegative() {
		return Snapshot{}, ErrInvalidPrice
	}
	return Snapshot{productName: productName, price: price, currency: cur}, nil
}

func (s Snapshot) ProductName() string     { return s.productName }
func (s Snapshot) Price() decimal.Decimal  { return s.price }
func (s Snapshot) Currency() currency.Unit { return s.currency }

func (s Snapshot) Equal(other Snapshot) bool {
	return s.productName == other.productName && s.price.Equal(other.price) && s.currency == other.currency
}

type Item struct {
	ID        string
	ProductID string
	Snapshot  Snapshot
	Quantity  int
}

func NewItem(id, productID string, snap Snapshot, quantity int) (Item, error) {
	if quantity < 1 {
		return Item{}, ErrInvalidQuantity
	}
	return Item{ID: id, ProductID: productID, Snapshot: snap, Quantity: quantity}, nil
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Snapshot.Price().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart keeps its lines in insertion order; TotalPrice is derived from them.
type Cart struct {
	ID         string
	Items      []Item
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func New(id string, now time.Time) *Cart {
	return &Cart{
		ID:         id,
		Items:      []Item{},
		TotalPrice: decimal.Zero,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

func (c *Cart) Item(itemID string) (Item, bool) {
	if i := c.indexOf(itemID); i >= 0 {
		return c.Items[i], true
	}
	return Item{}, false
}

func (c *Cart) HasProduct(productID string) bool {
	return slices.ContainsFunc(c.Items, func(it Item) bool { return it.ProductID == productID })
}

// Currency reports the currency of the existing lines, if any.
func (c *Cart) Currency() (currency.Unit, bool) {
	if len(c.Items) == 0 {
		return currency.Unit{}, false
	}
	return c.Items[0].Snapshot.Currency(), true
}

// CanAdd reports whether item may be appended without violating cart rules.
func (c *Cart) CanAdd(item Item) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if c.HasProduct(item.ProductID) {
		return ErrDuplicateProduct
	}
	if cur, ok := c.Currency(); ok && cur != item.Snapshot.Currency() {
		return ErrCurrencyMismatch
	}
	return nil
}

func (c *Cart) AddItem(item Item, now time.Time) error {
	if err := c.CanAdd(item); err != nil {
		return err
	}
	c.Items = append(c.Items, item)
	c.touch(now)
	return nil
}

// SetQuantity returns the quantity held before the change.
func (c *Cart) SetQuantity(itemID string, quantity int, now time.Time) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	i := c.indexOf(itemID)
	if i < 0 {
		return 0, ErrItemNotFound
	}
	prev := c.Items[i].Quantity
	c.Items[i].Quantity = quantity
	c.touch(now)
	return prev, nil
}

func (c *Cart) RemoveItem(itemID string, now time.Time) (Item, error) {
	i := c.indexOf(itemID)
	if i < 0 {
		return Item{}, ErrItemNotFound
	}
	removed := c.Items[i]
	c.Items = slices.Delete(c.Items, i, i+1)
	c.touch(now)
	return removed, nil
}

// Total sums price times quantity over every line.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (c *Cart) Recalculate() {
	c.TotalPrice = c.Total()
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = slices.Clone(c.Items)
	if clone.Items == nil {
		clone.Items = []Item{}
	}
	return &clone
}

func (c *Cart) indexOf(itemID string) int {
	return slices.IndexFunc(c.Items, func(it Item) bool { return it.ID == itemID })
}

func (c *Cart) touch(now time.Time) {
	c.Recalculate()
	c.UpdatedAt = now.UTC()
}
