package cart

import "time"

// Line is the stock-bearing part of a cart item.
type Line struct {
	ItemID    string
	ProductID string
	Quantity  int
}

// ItemRemovedEvent is emitted after a line leaves a cart; its units go back to stock.
type ItemRemovedEvent struct {
	CartID     string
	Line       Line
	OccurredAt time.Time
}

func (ItemRemovedEvent) EventName() string { return "cart.item_removed" }

func NewItemRemovedEvent(cartID string, item Item) ItemRemovedEvent {
	return ItemRemovedEvent{
		CartID:     cartID,
		Line:       Line{ItemID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity},
		OccurredAt: time.Now().UTC(),
	}
}

// CartDeletedEvent is emitted after a cart is deleted with the lines it still held.
type CartDeletedEvent struct {
	CartID     string
	Lines      []Line
	OccurredAt time.Time
}

func (CartDeletedEvent) EventName() string { return "cart.deleted" }

func NewCartDeletedEvent(c *Cart) CartDeletedEvent {
	lines := make([]Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, Line{ItemID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return CartDeletedEvent{
		CartID:     c.ID,
		Lines:      lines,
		OccurredAt: time.Now().UTC(),
	}
}
