package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/collaborator/textgen"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/history"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var day = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type scriptedNarrator struct {
	mu    sync.Mutex
	calls int
	reply string
	last  any
}

func (n *scriptedNarrator) SalesReport(_ context.Context, data any) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = data
	return n.reply
}

type fixture struct {
	svc      *Service
	backend  *local.Store
	narrator *scriptedNarrator
}

func newFixture(t *testing.T, c cache.Store) fixture {
	t.Helper()
	backend, err := local.Open()
	require.NoError(t, err)
	narrator := &scriptedNarrator{reply: "## Resumo"}
	svc := NewService(Params{
		History:  history.NewRepository(backend, nil),
		Narrator: narrator,
		Cache:    c,
		CacheTTL: time.Minute,
	})
	return fixture{svc: svc, backend: backend, narrator: narrator}
}

func (f fixture) archive(t *testing.T, id string, at time.Time, total int64, previous entity.OrderStatus) {
	t.Helper()
	items := []entity.OrderItem{{ProductID: "1", Name: "Cerveja Gelada 600ml", Price: decimal.NewFromInt(total), Quantity: 1}}
	body, err := history.Encode(entity.ArchivedOrder{
		Order: entity.Order{
			ID:        id,
			TableID:   3,
			Items:     items,
			Status:    entity.OrderPaid,
			Timestamp: at.Add(-time.Hour),
			Total:     entity.ItemsTotal(items),
		},
		ArchivedAt:     at,
		PreviousStatus: previous,
	})
	require.NoError(t, err)
	require.NoError(t, f.backend.Put(context.Background(), store.History, id, body))
}

func TestStatsOverRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.archive(t, "a", day.Add(10*time.Hour), 30, entity.OrderDelivered)
	f.archive(t, "b", day.Add(20*time.Hour), 15, entity.OrderPending)
	f.archive(t, "c", day.Add(21*time.Hour), 99, entity.OrderCanceled)
	f.archive(t, "d", day.Add(-time.Hour), 50, entity.OrderDelivered)

	stats, err := f.svc.Stats(ctx, day, day.Add(24*time.Hour-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OrderCount)
	assert.True(t, decimal.NewFromInt(45).Equal(stats.TotalRevenue), stats.TotalRevenue.String())
	assert.True(t, decimal.RequireFromString("22.5").Equal(stats.AverageTicket), stats.AverageTicket.String())
}

func TestAverageTicketIsZeroWithoutSales(t *testing.T) {
	f := newFixture(t, nil)
	stats, err := f.svc.Stats(context.Background(), day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.OrderCount)
	assert.True(t, stats.AverageTicket.IsZero())
	assert.True(t, stats.TotalRevenue.IsZero())
}

func TestRangeBoundariesAreInclusive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	start, end, err := DayRange("2025-06-01", "2025-06-01", time.UTC)
	require.NoError(t, err)
	f.archive(t, "first", start, 10, entity.OrderDelivered)
	f.archive(t, "last", end, 10, entity.OrderDelivered)
	f.archive(t, "next", end.Add(time.Millisecond), 10, entity.OrderDelivered)

	stats, err := f.svc.Stats(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.OrderCount)
}

func TestDayRange(t *testing.T) {
	start, end, err := DayRange("2025-06-01", "2025-06-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day, start)
	assert.Equal(t, day.Add(48*time.Hour-time.Millisecond), end)

	_, _, err = DayRange("2025-06-02", "2025-06-01", time.UTC)
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
	_, _, err = DayRange("junho", "2025-06-01", time.UTC)
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
}

func TestTopProducts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.archive(t, "a", day.Add(time.Hour), 15, entity.OrderDelivered)
	f.archive(t, "b", day.Add(2*time.Hour), 15, entity.OrderDelivered)

	top, err := f.svc.TopProducts(ctx, day, day.Add(24*time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Cerveja Gelada 600ml", top[0].Name)
	assert.Equal(t, 2, top[0].Quantity)
	assert.True(t, decimal.NewFromInt(30).Equal(top[0].Revenue))
}

func TestNarrativeWithoutSales(t *testing.T) {
	f := newFixture(t, nil)
	text, err := f.svc.Narrative(context.Background(), day, day.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, NoSalesMessage, text)
	assert.Zero(t, f.narrator.calls)
}

func TestNarrativeIsCached(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewRedis(client, "bar", time.Minute))
	f.archive(t, "a", day.Add(time.Hour), 30, entity.OrderDelivered)
	end := day.Add(24 * time.Hour)

	for i := 0; i < 2; i++ {
		text, err := f.svc.Narrative(ctx, day, end)
		require.NoError(t, err)
		assert.Equal(t, "## Resumo", text)
	}
	assert.Equal(t, 1, f.narrator.calls)

	sales, ok := f.narrator.last.([]Sale)
	require.True(t, ok)
	require.Len(t, sales, 1)
	assert.Equal(t, "2025-06-01", sales[0].Date)
	assert.Equal(t, []SaleItem{{Name: "Cerveja Gelada 600ml", Qty: 1}}, sales[0].Items)

	f.archive(t, "b", day.Add(2*time.Hour), 15, entity.OrderDelivered)
	_, err := f.svc.Narrative(ctx, day, end)
	require.NoError(t, err)
	assert.Equal(t, 2, f.narrator.calls, "new sales change the cache key")
}

func TestNarrativeFallbackIsNotCached(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewRedis(client, "bar", time.Minute))
	f.narrator.reply = textgen.FailureMessage
	f.archive(t, "a", day.Add(time.Hour), 30, entity.OrderDelivered)

	for i := 0; i < 2; i++ {
		text, err := f.svc.Narrative(ctx, day, day.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, textgen.FailureMessage, text)
	}
	assert.Equal(t, 2, f.narrator.calls)
}
