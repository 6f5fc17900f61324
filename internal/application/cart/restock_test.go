package cart_test

import (
	"fmt"
	"testing"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

func TestRestockUseCase_Execute(t *testing.T) {
	gw := newFakeGateway()
	mug := gw.add("Mug", "10", currency.USD, 5)
	pen := gw.add("Pen", "1", currency.USD, 0)
	gone := id.NewObjectIDGenerator().NewID()

	uc := appcart.NewRestockUseCase(gw, 0, nil)
	res, err := uc.Execute(t.Context(), appcart.RestockCommand{
		CartID: "cart",
		Reason: "cart.deleted",
		Lines: []domcart.Line{
			{ProductID: mug, Quantity: 3},
			{ProductID: pen, Quantity: 1},
			{ProductID: gone, Quantity: 2},
			{ProductID: mug, Quantity: 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, appcart.RestockResult{Restocked: 2, Skipped: 2}, *res)
	assert.Equal(t, 8, gw.stock(mug))
	assert.Equal(t, 1, gw.stock(pen))
}

func TestRestockUseCase_RetriesConflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts int
		wantErr   error
		wantStock int
		wantCalls int
	}{
		{name: "one lost race: ok", conflicts: 1, wantStock: 1 + 2, wantCalls: 2},
		{name: "two lost races: ok", conflicts: 2, wantStock: 2 + 2, wantCalls: 3},
		{name: "every attempt loses: conflict", conflicts: 3, wantErr: application.ErrConflict, wantStock: 3, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			pid := gw.add("Mug", "10", currency.USD, 0)
			gw.conflicts = tt.conflicts

			res, err := appcart.NewRestockUseCase(gw, 3, nil).Execute(t.Context(), appcart.RestockCommand{
				CartID: "cart",
				Lines:  []domcart.Line{{ProductID: pid, Quantity: 2}},
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 1, res.Failed)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, res.Restocked)
			}
			assert.Equal(t, tt.wantStock, gw.stock(pid))
			assert.Equal(t, tt.wantCalls, gw.adjustCalls)
		})
	}
}

func TestRestockUseCase_RemoteFailure(t *testing.T) {
	gw := newFakeGateway()
	pid := gw.add("Mug", "10", currency.USD, 4)
	gw.adjustErr = fmt.Errorf("%w: down", application.ErrRemoteUnavailable)

	res, err := appcart.NewRestockUseCase(gw, 3, nil).Execute(t.Context(), appcart.RestockCommand{
		Lines: []domcart.Line{{ProductID: pid, Quantity: 1}},
	})
	require.ErrorIs(t, err, application.ErrRemoteUnavailable)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, gw.adjustCalls, "only conflicts are retried")
	assert.Equal(t, 4, gw.stock(pid))
}
