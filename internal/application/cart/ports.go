package cart

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ProductSnapshot is the remote product state the workflow needs.
type ProductSnapshot struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Currency currency.Unit
	Stock    int
}

// ProductGateway is an outbound port to the product service.
// Errors are wrapped in the application error categories.
type ProductGateway interface {
	FetchProduct(ctx context.Context, productID string) (ProductSnapshot, error)
	// AdjustStock writes newStock only if the stored stock still equals
	// expectedStock; otherwise it fails with application.ErrConflict.
	AdjustStock(ctx context.Context, productID string, newStock, expectedStock int) error
}
