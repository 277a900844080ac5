package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
)

func TestArchiveMovesOrdersAtomically(t *testing.T) {
	ctx := context.Background()
	backend, err := local.Open()
	require.NoError(t, err)
	orders := order.NewRepository(backend, nil)
	repo := NewRepository(backend, nil)

	live, err := orders.Create(ctx, entity.Order{
		TableID: 2, Status: entity.OrderDelivered, Timestamp: time.UnixMilli(1000), Total: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	archived := live
	archived.Status = entity.OrderPaid
	rec := entity.ArchivedOrder{Order: archived, ArchivedAt: time.UnixMilli(5000), PreviousStatus: entity.OrderDelivered}
	ghost := entity.ArchivedOrder{Order: entity.Order{ID: "ghost", TableID: 2, Status: entity.OrderPaid}}

	err = repo.Archive(ctx, []entity.ArchivedOrder{rec, ghost})
	assert.ErrorIs(t, err, store.ErrConflict)
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, repo.Archive(ctx, []entity.ArchivedOrder{rec}))
	all, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, entity.OrderPaid, all[0].Status)
	assert.Equal(t, entity.OrderDelivered, all[0].PreviousStatus)
	assert.Equal(t, int64(5000), all[0].ArchivedAt.UnixMilli())

	_, err = orders.Get(ctx, live.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestRangeIsInclusiveOnArchiveTime(t *testing.T) {
	ctx := context.Background()
	backend, err := local.Open()
	require.NoError(t, err)
	repo := NewRepository(backend, nil)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	put := func(id string, ordered, archived time.Time) {
		body, err := Encode(entity.ArchivedOrder{
			Order:      entity.Order{ID: id, TableID: 1, Status: entity.OrderPaid, Timestamp: ordered},
			ArchivedAt: archived,
		})
		require.NoError(t, err)
		require.NoError(t, backend.Put(ctx, store.History, id, body))
	}
	put("start", day.Add(-time.Hour), day)
	put("end", day, day.Add(24*time.Hour))
	put("after", day, day.Add(24*time.Hour+time.Millisecond))
	put("legacy", day.Add(time.Hour), time.Time{})

	got, err := repo.Range(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"start", "end", "legacy"}, ids)
}
