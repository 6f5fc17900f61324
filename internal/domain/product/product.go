package product

import (
	"errors"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	MaxNameLength        = 64
	MaxDescriptionLength = 2048
)

var (
	ErrNotFound           = errors.New("product: not found")
	ErrInvalidName        = errors.New("product: name must be 1..64 characters")
	ErrInvalidDescription = errors.New("product: description must be at most 2048 characters")
	ErrInvalidPrice       = errors.New("product: price must not be negative")
	ErrInvalidStock       = errors.New("product: stock must not be negative")
	ErrStockConflict      = errors.New("product: stock changed since it was read")
)

type Product struct {
	ID          string
	Name        string
	Description string
	Image       string
	Price       decimal.Decimal
	Currency    currency.Unit
	Stock       int
	IsActive    bool
	Categories  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Draft carries the caller-supplied fields of a new product.
type Draft struct {
	Name        string
	Description string
	Image       string
	Price       decimal.Decimal
	Currency    currency.Unit
	Stock       int
	IsActive    bool
	Categories  []string
}

func New(id string, d Draft, now time.Time) (*Product, error) {
	p := &Product{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Image:       d.Image,
		Price:       d.Price,
		Currency:    d.Currency,
		Stock:       d.Stock,
		IsActive:    d.IsActive,
		Categories:  slices.Clone(d.Categories),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Patch holds a partial update; nil members are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Image       *string
	Price       *decimal.Decimal
	Currency    *currency.Unit
	Stock       *int
	IsActive    *bool
	Categories  []string
}

// Apply mutates p only when the patched product is still valid.
func (p *Product) Apply(patch Patch, now time.Time) error {
	next := p.Clone()
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Image != nil {
		next.Image = *patch.Image
	}
	if patch.Price != nil {
		next.Price = *patch.Price
	}
	if patch.Currency != nil {
		next.Currency = *patch.Currency
	}
	if patch.Stock != nil {
		next.Stock = *patch.Stock
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if patch.Categories != nil {
		next.Categories = slices.Clone(patch.Categories)
	}
	if err := next.validate(); err != nil {
		return err
	}
	next.UpdatedAt = now.UTC()
	*p = *next
	return nil
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Categories = slices.Clone(p.Categories)
	return &c
}

func (p *Product) validate() error {
	if n := utf8.RuneCountInString(p.Name); n == 0 || n > MaxNameLength {
		return ErrInvalidName
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}
