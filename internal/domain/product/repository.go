package product

import (
	"context"

	"github.com/shopspring/decimal"
)

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortName      SortField = "name"
	SortPrice     SortField = "price"
	SortStock     SortField = "stock"
)

func (f SortField) Valid() bool {
	switch f {
	case SortCreatedAt, SortName, SortPrice, SortStock:
		return true
	}
	return false
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query filters, sorts and pages a product listing.
type Query struct {
	Page     int
	Limit    int
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Active   *bool
	SortBy   SortField
	SortDesc bool
}

// Normalized fills defaults and clamps page bounds.
func (q Query) Normalized() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if !q.SortBy.Valid() {
		q.SortBy = SortCreatedAt
	}
	return q
}

func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

// Page is one slice of a listing plus the number of matching products.
type Page struct {
	Items []*Product
	Total int64
}

type Repository interface {
	Insert(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, q Query) (Page, error)
	// Update replaces the stored product. When expectedStock is set the write
	// only succeeds if the stored stock still equals it, else ErrStockConflict.
	Update(ctx context.Context, p *Product, expectedStock *int) error
	Delete(ctx context.Context, id string) error
}
