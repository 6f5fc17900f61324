package product_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *product.Draft)
		wantErr error
	}{
		{name: "valid draft: ok"},
		{name: "zero price and stock: ok", mutate: func(d *product.Draft) {
			d.Price = decimal.Zero
			d.Stock = 0
		}},
		{name: "empty name: error", mutate: func(d *product.Draft) { d.Name = "" }, wantErr: product.ErrInvalidName},
		{name: "long name: error", mutate: func(d *product.Draft) { d.Name = strings.Repeat("a", 65) }, wantErr: product.ErrInvalidName},
		{name: "long description: error", mutate: func(d *product.Draft) {
			d.Description = strings.Repeat("a", 2049)
		}, wantErr: product.ErrInvalidDescription},
		{name: "negative price: error", mutate: func(d *product.Draft) { d.Price = decimal.NewFromInt(-1) }, wantErr: product.ErrInvalidPrice},
		{name: "negative stock: error", mutate: func(d *product.Draft) { d.Stock = -1 }, wantErr: product.ErrInvalidStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := randomDraft()
			if tt.mutate != nil {
				tt.mutate(&d)
			}

			p, err := product.New(gofakeit.UUID(), d, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, d.Name, p.Name)
			assert.Equal(t, now, p.CreatedAt)
			assert.Equal(t, now, p.UpdatedAt)
		})
	}
}

func TestProduct_Apply(t *testing.T) {
	p, err := product.New(gofakeit.UUID(), randomDraft(), now)
	require.NoError(t, err)

	name := "Renamed"
	stock := 3
	later := now.Add(time.Hour)
	require.NoError(t, p.Apply(product.Patch{Name: &name, Stock: &stock}, later))
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, later, p.UpdatedAt)

	negative := -5
	err = p.Apply(product.Patch{Name: &name, Stock: &negative}, later.Add(time.Hour))
	require.ErrorIs(t, err, product.ErrInvalidStock)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, later, p.UpdatedAt)
}

func TestQuery_Normalized(t *testing.T) {
	q := product.Query{Page: 0, Limit: 1000, SortBy: "password"}.Normalized()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, product.MaxLimit, q.Limit)
	assert.Equal(t, product.SortCreatedAt, q.SortBy)

	q = product.Query{Page: 3, Limit: 20, SortBy: product.SortPrice}.Normalized()
	assert.Equal(t, 40, q.Offset())
	assert.Equal(t, product.SortPrice, q.SortBy)
}

func randomDraft() product.Draft {
	return product.Draft{
		Name:        gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Price:       decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2),
		Currency:    currency.USD,
		Stock:       gofakeit.IntRange(0, 100),
		IsActive:    true,
		Categories:  []string{gofakeit.ProductCategory()},
	}
}
