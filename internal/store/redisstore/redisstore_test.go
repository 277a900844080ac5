package redisstore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "bar", WithCoalesceWindow(10*time.Millisecond)), mr
}

func TestPutGetList(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Put(ctx, store.Products, "b", []byte(`{"name":"B"}`)))
	require.NoError(t, s.Put(ctx, store.Products, "a", []byte(`{"name":"A"}`)))

	assert.Equal(t, `{"name":"A"}`, mr.HGet("bar:products", "a"))

	doc, err := s.Get(ctx, store.Products, "b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"B"}`, string(doc.Data))

	docs, err := s.List(ctx, store.Products)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
}

func TestGetAndUpdateMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.Get(ctx, store.Orders, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, store.Orders, "x", []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateExisting(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	doc, err := s.Create(ctx, store.Orders, []byte(`{"status":"PENDING"}`))
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, store.Orders, doc.ID, []byte(`{"status":"PREPARING"}`)))

	got, err := s.Get(ctx, store.Orders, doc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"PREPARING"}`, string(got.Data))
}

func TestCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	require.NoError(t, s.Put(ctx, store.Orders, "o1", []byte(`{}`)))

	batch := store.NewBatch().
		Put(store.History, "o1", []byte(`{}`)).
		DeleteExisting(store.Orders, "o1").
		Put(store.History, "o2", []byte(`{}`)).
		DeleteExisting(store.Orders, "o2")

	err := s.Commit(ctx, batch)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.False(t, mr.Exists("bar:orders_history"))
	assert.Equal(t, "{}", mr.HGet("bar:orders", "o1"))

	ok := store.NewBatch().
		Put(store.History, "o1", []byte(`{}`)).
		DeleteExisting(store.Orders, "o1")
	require.NoError(t, s.Commit(ctx, ok))
	assert.Equal(t, "{}", mr.HGet("bar:orders_history", "o1"))
	assert.Equal(t, "", mr.HGet("bar:orders", "o1"))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	snapshots := make(chan []store.Document, 10)
	unsub, err := s.Subscribe(ctx, store.Orders, func(docs []store.Document) { snapshots <- docs })
	require.NoError(t, err)
	defer unsub()

	select {
	case docs := <-snapshots:
		assert.Empty(t, docs)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Put(ctx, store.Products, "p1", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, store.Orders, "o1", []byte(`{}`)))

	select {
	case docs := <-snapshots:
		require.Len(t, docs, 1)
		assert.Equal(t, "o1", docs[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.List(context.Background(), store.Orders)
	require.Error(t, err)
	assert.True(t, store.IsBackendError(err))
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(config.Remote{Endpoint: "cache:6379", APIKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)

	opts, err = clientOptions(config.Remote{Endpoint: "redis://cache:6380/2", APIKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)

	_, err = clientOptions(config.Remote{})
	assert.Error(t, err)
}

func TestRunInTxReadsItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	require.NoError(t, s.Put(ctx, store.Products, "1", []byte(`{"stock":3}`)))

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Put(ctx, store.Products, "1", []byte(`{"stock":2}`)))
		doc, err := tx.Get(ctx, store.Products, "1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"stock":2}`, string(doc.Data))

		created, err := tx.Create(ctx, store.Orders, []byte(`{"tableId":1}`))
		require.NoError(t, err)
		docs, err := tx.List(ctx, store.Orders)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, created.ID, docs[0].ID)

		require.NoError(t, tx.Delete(ctx, store.Products, "1"))
		_, err = tx.Get(ctx, store.Products, "1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return tx.Put(ctx, store.Products, "1", []byte(`{"stock":1}`))
	})
	require.NoError(t, err)

	assert.Equal(t, `{"stock":1}`, mr.HGet("bar:products", "1"))
	orders, err := mr.HKeys("bar:orders")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	require.NoError(t, s.Put(ctx, store.Products, "1", []byte(`{"stock":3}`)))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Put(ctx, store.Products, "1", []byte(`{"stock":0}`)))
		_, err := tx.Create(ctx, store.Orders, []byte(`{}`))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `{"stock":3}`, mr.HGet("bar:products", "1"))
	assert.False(t, mr.Exists("bar:orders"))
}

func TestRunInTxRetriesConflictingWriters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(ctx, store.Products, "1", []byte(`0`)))

	const writers = 30
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				doc, err := tx.Get(ctx, store.Products, "1")
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(string(doc.Data))
				if err != nil {
					return err
				}
				return tx.Put(ctx, store.Products, "1", []byte(strconv.Itoa(n+1)))
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Get(ctx, store.Products, "1")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(writers), string(doc.Data))
}
