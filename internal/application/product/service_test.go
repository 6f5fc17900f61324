package product_test

import (
	"context"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appproduct "github.com/Zhima-Mochi/minishop-cart/internal/application/product"
	domproduct "github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/text/currency"
)

type serviceSuite struct {
	suite.Suite
	svc   *appproduct.Service
	clock time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(serviceSuite))
}

func (s *serviceSuite) SetupTest() {
	s.clock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = appproduct.NewService(memory.NewProductRepository(), id.NewObjectIDGenerator(), appproduct.Options{
		DefaultCurrency: currency.EUR,
		Now: func() time.Time {
			s.clock = s.clock.Add(time.Second)
			return s.clock
		},
	}, nil)
}

func (s *serviceSuite) create(name, price string, stock int) *domproduct.Product {
	p, err := s.svc.Create(s.T().Context(), domproduct.Draft{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
	s.Require().NoError(err)
	return p
}

func (s *serviceSuite) TestCreate() {
	p := s.create("Coffee Mug", "29.99", 50)
	s.Len(p.ID, 24)
	s.Equal(currency.EUR, p.Currency, "missing currency falls back to the default")

	got, err := s.svc.Get(s.T().Context(), p.ID)
	s.Require().NoError(err)
	s.Equal(p, got)

	_, err = s.svc.Create(s.T().Context(), domproduct.Draft{Name: "", Price: decimal.NewFromInt(1)})
	s.ErrorIs(err, application.ErrInvalidArgument)
	s.ErrorIs(err, domproduct.ErrInvalidName)

	_, err = s.svc.Create(s.T().Context(), domproduct.Draft{Name: "x", Stock: -1})
	s.ErrorIs(err, application.ErrInvalidArgument)
}

func (s *serviceSuite) TestGetAndDelete() {
	ctx := s.T().Context()
	_, err := s.svc.Get(ctx, "invalid-product-id")
	s.ErrorIs(err, application.ErrInvalidArgument)

	_, err = s.svc.Get(ctx, id.NewObjectIDGenerator().NewID())
	s.ErrorIs(err, application.ErrNotFound)

	p := s.create("Lamp", "15", 2)
	s.Require().NoError(s.svc.Delete(ctx, p.ID))
	s.ErrorIs(s.svc.Delete(ctx, p.ID), application.ErrNotFound)
}

func (s *serviceSuite) TestUpdate() {
	ctx := s.T().Context()
	p := s.create("Pen", "1.50", 10)

	name := "Fountain pen"
	stock := 9
	expected := 10
	got, err := s.svc.Update(ctx, appproduct.UpdateCommand{
		ID:            p.ID,
		Patch:         domproduct.Patch{Name: &name, Stock: &stock},
		ExpectedStock: &expected,
	})
	s.Require().NoError(err)
	s.Equal("Fountain pen", got.Name)
	s.Equal(9, got.Stock)
	s.True(got.UpdatedAt.After(p.UpdatedAt))

	// the stock moved to 9, so a writer still expecting 10 loses
	stock = 8
	_, err = s.svc.Update(ctx, appproduct.UpdateCommand{
		ID:            p.ID,
		Patch:         domproduct.Patch{Stock: &stock},
		ExpectedStock: &expected,
	})
	s.ErrorIs(err, application.ErrConflict)

	negative := -3
	_, err = s.svc.Update(ctx, appproduct.UpdateCommand{ID: p.ID, Patch: domproduct.Patch{Stock: &negative}})
	s.ErrorIs(err, application.ErrInvalidArgument)

	stored, err := s.svc.Get(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(9, stored.Stock)
}

func (s *serviceSuite) TestListMeta() {
	for range 23 {
		s.create(gofakeit.ProductName(), decimal.NewFromFloat(gofakeit.Price(1, 100)).StringFixed(2), 1)
	}

	tests := []struct {
		name  string
		query domproduct.Query
		want  appproduct.Meta
	}{
		{
			name:  "defaults: first page of ten",
			query: domproduct.Query{},
			want:  appproduct.Meta{TotalItems: 23, ItemCount: 10, ItemsPerPage: 10, TotalPages: 3, CurrentPage: 1},
		},
		{
			name:  "last partial page",
			query: domproduct.Query{Page: 3, Limit: 10},
			want:  appproduct.Meta{TotalItems: 23, ItemCount: 3, ItemsPerPage: 10, TotalPages: 3, CurrentPage: 3},
		},
		{
			name:  "page past the end",
			query: domproduct.Query{Page: 9, Limit: 5},
			want:  appproduct.Meta{TotalItems: 23, ItemCount: 0, ItemsPerPage: 5, TotalPages: 5, CurrentPage: 9},
		},
		{
			name:  "limit clamped",
			query: domproduct.Query{Limit: 1000},
			want:  appproduct.Meta{TotalItems: 23, ItemCount: 23, ItemsPerPage: 100, TotalPages: 1, CurrentPage: 1},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			res, err := s.svc.List(s.T().Context(), tt.query)
			s.Require().NoError(err)
			s.Equal(tt.want, res.Meta)
			s.Len(res.Items, tt.want.ItemCount)
		})
	}
}

func TestService_ListRejectsInvertedPriceRange(t *testing.T) {
	svc := appproduct.NewService(memory.NewProductRepository(), id.NewObjectIDGenerator(), appproduct.Options{}, nil)
	lo, hi := decimal.NewFromInt(10), decimal.NewFromInt(5)

	_, err := svc.List(t.Context(), domproduct.Query{MinPrice: &lo, MaxPrice: &hi})
	require.ErrorIs(t, err, application.ErrInvalidArgument)

	res, err := svc.List(t.Context(), domproduct.Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Meta.TotalPages)
}

// racingRepo lands a guarded stock decrement right before each of the first
// races product writes, the way a cart add would between a read and a write.
type racingRepo struct {
	*memory.ProductRepository
	races   int
	updates int
}

func (r *racingRepo) Update(ctx context.Context, p *domproduct.Product, expectedStock *int) error {
	r.updates++
	if r.updates <= r.races {
		current, err := r.ProductRepository.Get(ctx, p.ID)
		if err != nil {
			return err
		}
		read := current.Stock
		current.Stock--
		if err := r.ProductRepository.Update(ctx, current, &read); err != nil {
			return err
		}
	}
	return r.ProductRepository.Update(ctx, p, expectedStock)
}

func TestService_UpdateKeepsConcurrentStockWrite(t *testing.T) {
	name := "Travel mug"
	expected := 50

	tests := []struct {
		name        string
		races       int
		cmd         func(id string) appproduct.UpdateCommand
		wantErr     error
		wantName    string
		wantStock   int
		wantUpdates int
	}{
		{
			name:  "name only patch after a stock write: ok",
			races: 1,
			cmd: func(id string) appproduct.UpdateCommand {
				return appproduct.UpdateCommand{ID: id, Patch: domproduct.Patch{Name: &name}}
			},
			wantName:    name,
			wantStock:   49,
			wantUpdates: 2,
		},
		{
			name:  "guarded patch after a stock write: error",
			races: 1,
			cmd: func(id string) appproduct.UpdateCommand {
				return appproduct.UpdateCommand{ID: id, Patch: domproduct.Patch{Name: &name}, ExpectedStock: &expected}
			},
			wantErr:     application.ErrConflict,
			wantName:    "Mug",
			wantStock:   49,
			wantUpdates: 1,
		},
		{
			name:  "stock keeps moving: error",
			races: 10,
			cmd: func(id string) appproduct.UpdateCommand {
				return appproduct.UpdateCommand{ID: id, Patch: domproduct.Patch{Name: &name}}
			},
			wantErr:     application.ErrConflict,
			wantName:    "Mug",
			wantStock:   47,
			wantUpdates: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &racingRepo{ProductRepository: memory.NewProductRepository()}
			svc := appproduct.NewService(repo, id.NewObjectIDGenerator(), appproduct.Options{}, nil)
			p, err := svc.Create(t.Context(), domproduct.Draft{Name: "Mug", Price: decimal.NewFromInt(8), Stock: 50, IsActive: true})
			require.NoError(t, err)
			repo.races = tt.races

			_, err = svc.Update(t.Context(), tt.cmd(p.ID))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			stored, err := svc.Get(t.Context(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, stored.Name)
			assert.Equal(t, tt.wantStock, stored.Stock)
			assert.Equal(t, tt.wantUpdates, repo.updates)
		})
	}
}
