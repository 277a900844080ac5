package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
)

func TestDecodeLegacyOrder(t *testing.T) {
	o, err := Decode(store.Document{ID: "o1", Data: []byte(`{
		"tableId": "3",
		"items": [{"productId":"1","name":"Cerveja","price":"15","quantity":"2"}],
		"status": "Pendente",
		"timestamp": 1700000000000,
		"total": 30
	}`)})
	require.NoError(t, err)
	assert.Equal(t, entity.TableID(3), o.TableID)
	assert.Equal(t, entity.OrderPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(30).Equal(o.Total))
	assert.Equal(t, int64(1700000000000), o.Timestamp.UnixMilli())
}

func TestCreateUpdateDelete(t *testing.T) {
	ctx := context.Background()
	backend, err := local.Open()
	require.NoError(t, err)
	repo := NewRepository(backend, nil)

	created, err := repo.Create(ctx, entity.Order{
		TableID:   5,
		Items:     []entity.OrderItem{{ProductID: "1", Name: "Agua", Price: decimal.NewFromInt(8), Quantity: 1}},
		Status:    entity.OrderPending,
		Timestamp: time.UnixMilli(1000),
		Total:     decimal.NewFromInt(8),
	})
	require.NoError(t, err)

	created.Status = entity.OrderDelivered
	require.NoError(t, repo.Update(ctx, created))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderDelivered, got.Status)

	require.NoError(t, repo.DeleteAll(ctx, []string{created.ID, "missing"}))
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Update(ctx, created), ErrNotFound)
}
