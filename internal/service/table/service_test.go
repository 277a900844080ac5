package table

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/history"
	orderrepo "github.com/Additional-Code/tableside/internal/repository/order"
	tablerepo "github.com/Additional-Code/tableside/internal/repository/table"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var archiveTime = time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	backend store.Backend
	orders  *orderrepo.Repository
	history *history.Repository
}

func newFixture(t *testing.T, wrap func(*local.Store) store.Backend) fixture {
	t.Helper()
	base, err := local.Open()
	require.NoError(t, err)
	var backend store.Backend = base
	if wrap != nil {
		backend = wrap(base)
	}
	orders := orderrepo.NewRepository(backend, nil)
	hist := history.NewRepository(backend, nil)
	svc, err := NewService(Params{
		Tables:  tablerepo.NewRepository(backend, nil),
		Orders:  orders,
		History: hist,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return archiveTime }
	return fixture{svc: svc, backend: backend, orders: orders, history: hist}
}

func (f fixture) order(t *testing.T, table entity.TableID, status entity.OrderStatus, price int64, qty int) entity.Order {
	t.Helper()
	items := []entity.OrderItem{{ProductID: "1", Name: "Cerveja Gelada 600ml", Price: decimal.NewFromInt(price), Quantity: qty}}
	o, err := f.orders.Create(context.Background(), entity.Order{
		TableID:   table,
		Items:     items,
		Status:    status,
		Timestamp: archiveTime.Add(-time.Hour),
		Total:     entity.ItemsTotal(items),
	})
	require.NoError(t, err)
	return o
}

func TestRequestCloseThenFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.order(t, 3, entity.OrderDelivered, 15, 2)
	second := f.order(t, 3, entity.OrderPending, 25, 1)
	other := f.order(t, 4, entity.OrderPending, 8, 1)

	session, err := f.svc.RequestClose(ctx, 3, entity.PaymentPix)
	require.NoError(t, err)
	assert.Equal(t, entity.TableClosingRequested, session.Status)

	got, err := f.svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPix, got.PaymentMethod)
	assert.True(t, got.Locked())

	outcome, err := f.svc.Finalize(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Count)
	assert.Empty(t, outcome.Warning)

	got, err = f.svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, entity.TableOpen, got.Status)

	live, err := f.orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, other.ID, live[0].ID)

	archived, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	ids := []string{archived[0].ID, archived[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
	for _, a := range archived {
		assert.Equal(t, entity.OrderPaid, a.Status)
		assert.Equal(t, archiveTime.UnixMilli(), a.ArchivedAt.UnixMilli())
	}
}

func TestFinalizeWithoutOrdersWarns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.RequestClose(ctx, 7, entity.PaymentCash)
	require.NoError(t, err)

	outcome, err := f.svc.Finalize(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, outcome.Count)
	assert.Equal(t, NoOrdersWarning, outcome.Warning)

	got, err := f.svc.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, entity.TableOpen, got.Status)
}

// staleOrders returns an order in listings that is already gone from storage,
// as if another operator archived it between the scan and the commit.
type staleOrders struct {
	store.Backend
	ghost []byte
}

func (s staleOrders) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	docs, err := s.Backend.List(ctx, coll)
	if err != nil || coll != store.Orders {
		return docs, err
	}
	return append(docs, store.Document{ID: "ghost", Data: s.ghost}), nil
}

func TestFinalizeConflictLeavesNothingPartiallyApplied(t *testing.T) {
	ctx := context.Background()
	ghost, err := orderrepo.Encode(entity.Order{TableID: 5, Status: entity.OrderPending, Total: decimal.NewFromInt(1)})
	require.NoError(t, err)
	f := newFixture(t, func(s *local.Store) store.Backend { return staleOrders{Backend: s, ghost: ghost} })
	kept := f.order(t, 5, entity.OrderDelivered, 10, 1)

	_, err = f.svc.Finalize(ctx, 5)
	assert.True(t, errorbank.Is(err, errorbank.KindConflict))

	archived, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)
	_, err = f.orders.Get(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestConcurrentFinalizeArchivesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.order(t, 2, entity.OrderDelivered, 10, 1)
	f.order(t, 2, entity.OrderDelivered, 10, 2)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.svc.Finalize(ctx, 2)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 2, outcomes[0].Count+outcomes[1].Count)

	archived, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Len(t, archived, 2)
}

func TestCancelledOrdersArchiveWithPreviousStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.order(t, 6, entity.OrderCanceled, 10, 1)

	_, err := f.svc.Finalize(ctx, 6)
	require.NoError(t, err)

	archived, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, entity.OrderPaid, archived[0].Status)
	assert.Equal(t, entity.OrderCanceled, archived[0].PreviousStatus)
	assert.False(t, archived[0].CountsAsRevenue())
}

func TestForceClearDeletesWithoutArchiving(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.order(t, 8, entity.OrderPending, 10, 1)
	f.order(t, 8, entity.OrderPreparing, 10, 1)
	_, err := f.svc.RequestClose(ctx, 8, entity.PaymentDebit)
	require.NoError(t, err)

	outcome, err := f.svc.ForceClear(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Count)
	assert.Contains(t, outcome.Message, "2 orders removed")

	live, err := f.orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
	archived, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, archived)

	outcome, err = f.svc.ForceClear(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, outcome.Count)
	assert.Contains(t, outcome.Message, "no orders found")
}

func TestHistoryRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.order(t, 1, entity.OrderDelivered, 10, 1)
	_, err := f.svc.Finalize(ctx, 1)
	require.NoError(t, err)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	inside, err := f.svc.History(ctx, day, day.Add(24*time.Hour-time.Millisecond))
	require.NoError(t, err)
	assert.Len(t, inside, 1)

	outside, err := f.svc.History(ctx, day.Add(-48*time.Hour), day.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, outside)

	_, err = f.svc.History(ctx, day, day.Add(-time.Second))
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
}

func TestBillAndReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.order(t, 9, entity.OrderPending, 15, 2)
	f.order(t, 9, entity.OrderDelivered, 15, 1)
	f.order(t, 9, entity.OrderCanceled, 15, 5)
	_, err := f.svc.RequestClose(ctx, 9, entity.PaymentCredit)
	require.NoError(t, err)

	bill, err := f.svc.Bill(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, bill.Orders, 2)
	assert.True(t, decimal.NewFromInt(45).Equal(bill.Total))
	assert.True(t, bill.Session.Locked())

	receipt, err := f.svc.Receipt(ctx, 9)
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)
	assert.Equal(t, 3, receipt.Lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(45).Equal(receipt.Lines[0].Total))
	assert.True(t, decimal.NewFromInt(45).Equal(receipt.Total))
	assert.Equal(t, entity.PaymentCredit, receipt.PaymentMethod)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.RequestClose(ctx, 0, entity.PaymentPix)
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
	_, err = f.svc.RequestClose(ctx, 1, entity.PaymentMethod("BITCOIN"))
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
	_, err = f.svc.Finalize(ctx, -1)
	assert.True(t, errorbank.Is(err, errorbank.KindValidation))
}
