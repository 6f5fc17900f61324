package mongostore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/mongostore"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"golang.org/x/text/currency"
)

func startMongo(ctx context.Context) (*mongodb.MongoDBContainer, string, error) {
	container, err := mongodb.Run(ctx, "mongo:7.0")
	if err != nil {
		return nil, "", fmt.Errorf("mongodb.Run: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("container.ConnectionString: %w", err)
	}

	return container, uri, nil
}

type storeSuite struct {
	suite.Suite

	container *mongodb.MongoDBContainer
	store     *mongostore.Store
	carts     cart.Repository
	products  product.Repository
	ids       id.ObjectIDGenerator
}

// entry point to run the tests in the suite
func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("store integration tests need docker")
	}
	suite.Run(t, new(storeSuite))
}

// before all tests in the suite
func (s *storeSuite) SetupSuite() {
	ctx := s.T().Context()

	container, uri, err := startMongo(ctx)
	s.Require().NoError(err)
	s.container = container

	s.store, err = mongostore.Connect(ctx, uri, "minishop_test", observability.Nop())
	s.Require().NoError(err)

	s.carts = s.store.Carts()
	s.products = s.store.Products()
	s.ids = id.NewObjectIDGenerator()
}

// after all tests in the suite
func (s *storeSuite) TearDownSuite() {
	ctx := context.Background()
	if s.store != nil {
		s.NoError(s.store.Close(ctx))
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(ctx))
	}
}

func (s *storeSuite) TestCartLifecycle() {
	t := s.T()
	ctx := t.Context()

	c := cart.New(s.ids.NewID(), time.Now().Truncate(time.Millisecond))
	require.NoError(t, s.carts.Insert(ctx, c))

	got, err := s.carts.Get(ctx, c.ID)
	require.NoError(t, err)
	assertCart(t, c, got)

	first := s.randomItem(t, "29.99")
	got, err = s.carts.PushItem(ctx, c.ID, first)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "29.99", got.TotalPrice.String())

	second := s.randomItem(t, "0.01")
	got, err = s.carts.PushItem(ctx, c.ID, second)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, []string{got.Items[0].ID, got.Items[1].ID})
	assert.True(t, decimal.RequireFromString("30").Equal(got.TotalPrice))

	got, err = s.carts.SetItemQuantity(ctx, c.ID, first.ID, 3, nil)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("89.98").Equal(got.TotalPrice), got.TotalPrice.String())
	assert.True(t, got.Total().Equal(got.TotalPrice))

	stale := 1
	_, err = s.carts.SetItemQuantity(ctx, c.ID, first.ID, 5, &stale)
	require.ErrorIs(t, err, cart.ErrQuantityChanged)
	_, err = s.carts.SetItemQuantity(ctx, c.ID, s.ids.NewID(), 5, &stale)
	require.ErrorIs(t, err, cart.ErrItemNotFound)
	current := 3
	got, err = s.carts.SetItemQuantity(ctx, c.ID, first.ID, 3, &current)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Items[0].Quantity)

	got, removed, err := s.carts.PullItem(ctx, c.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, removed.ID)
	assert.True(t, decimal.RequireFromString("89.97").Equal(got.TotalPrice))

	stored, err := s.carts.Get(ctx, c.ID)
	require.NoError(t, err)
	assertCart(t, got, stored)

	deleted, err := s.carts.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, deleted.Items, 1)

	_, err = s.carts.Get(ctx, c.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func (s *storeSuite) TestCartMisses() {
	t := s.T()
	ctx := t.Context()

	c := cart.New(s.ids.NewID(), time.Now())
	require.NoError(t, s.carts.Insert(ctx, c))
	item := s.randomItem(t, "5")
	_, err := s.carts.PushItem(ctx, c.ID, item)
	require.NoError(t, err)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{
			name: "push duplicate product: error",
			run: func() error {
				dup := item
				dup.ID = s.ids.NewID()
				_, err := s.carts.PushItem(ctx, c.ID, dup)
				return err
			},
			wantErr: cart.ErrDuplicateProduct,
		},
		{
			name: "push into missing cart: error",
			run: func() error {
				_, err := s.carts.PushItem(ctx, s.ids.NewID(), s.randomItem(t, "1"))
				return err
			},
			wantErr: cart.ErrNotFound,
		},
		{
			name: "set quantity of missing item: error",
			run: func() error {
				_, err := s.carts.SetItemQuantity(ctx, c.ID, s.ids.NewID(), 2, nil)
				return err
			},
			wantErr: cart.ErrItemNotFound,
		},
		{
			name: "pull from missing cart: error",
			run: func() error {
				_, _, err := s.carts.PullItem(ctx, s.ids.NewID(), item.ID)
				return err
			},
			wantErr: cart.ErrNotFound,
		},
		{
			name: "delete missing cart: error",
			run: func() error {
				_, err := s.carts.Delete(ctx, s.ids.NewID())
				return err
			},
			wantErr: cart.ErrNotFound,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			require.ErrorIs(s.T(), tt.run(), tt.wantErr)
		})
	}

	got, err := s.carts.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].Quantity)
}

func (s *storeSuite) TestProductStockCompareAndSet() {
	t := s.T()
	ctx := t.Context()

	p := s.randomProduct(t, "Widget", "10.00", 50)
	require.NoError(t, s.products.Insert(ctx, p))

	expected := 50
	p.Stock = 49
	require.NoError(t, s.products.Update(ctx, p, &expected))

	p.Stock = 48
	err := s.products.Update(ctx, p, &expected)
	require.ErrorIs(t, err, product.ErrStockConflict)

	got, err := s.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 49, got.Stock)

	missing := s.randomProduct(t, "Ghost", "1", 1)
	require.ErrorIs(t, s.products.Update(ctx, missing, nil), product.ErrNotFound)
	require.ErrorIs(t, s.products.Update(ctx, missing, &expected), product.ErrNotFound)

	require.NoError(t, s.products.Delete(ctx, p.ID))
	require.ErrorIs(t, s.products.Delete(ctx, p.ID), product.ErrNotFound)
}

func (s *storeSuite) TestProductList() {
	t := s.T()
	ctx := t.Context()

	tag := gofakeit.LetterN(12)
	for i, name := range []string{"Red Mug", "Blue Mug", "Green Plate"} {
		p := s.randomProduct(t, name, fmt.Sprintf("%d.50", i+1), i)
		p.Categories = []string{tag}
		require.NoError(t, s.products.Insert(ctx, p))
	}

	page, err := s.products.List(ctx, product.Query{
		Category: tag,
		Search:   "mug",
		SortBy:   product.SortPrice,
		SortDesc: true,
		Limit:    1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Blue Mug", page.Items[0].Name)

	minPrice := decimal.RequireFromString("2")
	page, err = s.products.List(ctx, product.Query{Category: tag, MinPrice: &minPrice, SortBy: product.SortName})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, "Blue Mug", page.Items[0].Name)
	assert.Equal(t, "Green Plate", page.Items[1].Name)
}

func (s *storeSuite) randomItem(t *testing.T, price string) cart.Item {
	t.Helper()

	snap, err := cart.NewSnapshot(gofakeit.ProductName(), decimal.RequireFromString(price), currency.USD)
	require.NoError(t, err)
	item, err := cart.NewItem(s.ids.NewID(), s.ids.NewID(), snap, 1)
	require.NoError(t, err)
	return item
}

func (s *storeSuite) randomProduct(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()

	p, err := product.New(s.ids.NewID(), product.Draft{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Currency:   currency.USD,
		Stock:      stock,
		IsActive:   true,
		Categories: []string{gofakeit.ProductCategory()},
	}, time.Now().Truncate(time.Millisecond))
	require.NoError(t, err)
	return p
}

func assertCart(t *testing.T, expected, actual *cart.Cart) {
	t.Helper()

	opts := cmp.Options{
		cmpopts.IgnoreFields(cart.Cart{}, "CreatedAt", "UpdatedAt"),
		cmpopts.EquateEmpty(),
	}
	assert.Empty(t, cmp.Diff(expected, actual, opts))
	assert.WithinDuration(t, expected.UpdatedAt, actual.UpdatedAt, time.Second)
}
