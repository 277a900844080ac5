package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/migration"
	"github.com/Additional-Code/tableside/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(
		config.Remote{Driver: "sqlite", Endpoint: "file:" + t.Name() + "?mode=memory&cache=shared"},
		config.Database{MaxOpenConns: 1},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migration.New(db, "sqlite", nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))

	return New(db, "bar", WithPollInterval(20*time.Millisecond))
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	assert.Equal(t, "sqlite", s.Name())
	assert.True(t, s.IsRemote())

	doc, err := s.Create(ctx, store.Products, []byte(`{"name":"Agua"}`))
	require.NoError(t, err)

	got, err := s.Get(ctx, store.Products, doc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Agua"}`, string(got.Data))

	require.NoError(t, s.Update(ctx, store.Products, doc.ID, []byte(`{"name":"Agua com gas"}`)))
	got, err = s.Get(ctx, store.Products, doc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Agua com gas"}`, string(got.Data))

	require.NoError(t, s.Delete(ctx, store.Products, doc.ID))
	require.NoError(t, s.Delete(ctx, store.Products, doc.ID))
	_, err = s.Get(ctx, store.Products, doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, store.Products, doc.ID, []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListIsScopedByCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, store.Orders, "b", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, store.Orders, "a", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, store.History, "c", []byte(`{}`)))

	docs, err := s.List(ctx, store.Orders)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestCommitRollsBackOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Put(ctx, store.Orders, "o1", []byte(`{}`)))

	err := s.Commit(ctx, store.NewBatch().
		Put(store.History, "o1", []byte(`{}`)).
		DeleteExisting(store.Orders, "o1").
		DeleteExisting(store.Orders, "missing"))
	assert.ErrorIs(t, err, store.ErrConflict)

	history, err := s.List(ctx, store.History)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, err = s.Get(ctx, store.Orders, "o1")
	assert.NoError(t, err)
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Create(ctx, store.Orders, []byte(`{}`))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	docs, err := s.List(ctx, store.Orders)
	require.NoError(t, err)
	assert.Empty(t, docs)

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Put(ctx, store.Orders, "o1", []byte(`{"total":1}`))
	})
	require.NoError(t, err)
	_, err = s.Get(ctx, store.Orders, "o1")
	assert.NoError(t, err)
}

func TestPutUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, store.Products, "1", []byte(`{"stock":10}`)))
	require.NoError(t, s.Put(ctx, store.Products, "1", []byte(`{"stock":9}`)))
	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, store.Products, "1")
		if err != nil {
			return err
		}
		assert.JSONEq(t, `{"stock":9}`, string(doc.Data))
		return tx.Put(ctx, store.Products, "1", []byte(`{"stock":8}`))
	})
	require.NoError(t, err)

	rows, err := s.db.NewSelect().
		Model((*documentRow)(nil)).
		Where("collection = ?", string(store.Products)).
		Where("id = ?", "1").
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	got, err := s.Get(ctx, store.Products, "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":8}`, string(got.Data))
}

func TestForwardNotificationsWakesMatchingCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifications := make(chan pgdriver.Notification)
	wake := store.NewSignal()
	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardNotifications(ctx, notifications, "bar_changes", store.Orders, wake)
	}()

	notifications <- pgdriver.Notification{Channel: "bar_changes", Payload: string(store.Tables)}
	notifications <- pgdriver.Notification{Channel: "other_changes", Payload: string(store.Orders)}
	select {
	case <-wake:
		t.Fatal("woken by an unrelated notification")
	default:
	}

	notifications <- pgdriver.Notification{Channel: "bar_changes", Payload: string(store.Orders)}
	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("matching notification did not wake the subscriber")
	}

	close(notifications)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop when the listener closed")
	}
}

func TestForwardNotificationsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardNotifications(ctx, make(chan pgdriver.Notification), "bar_changes", store.Orders, store.NewSignal())
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder ignored cancellation")
	}
}

func TestSubscribePollsForChanges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	snapshots := make(chan []store.Document, 10)
	unsub, err := s.Subscribe(ctx, store.Tables, func(docs []store.Document) { snapshots <- docs })
	require.NoError(t, err)
	defer unsub()

	select {
	case docs := <-snapshots:
		assert.Empty(t, docs)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Put(ctx, store.Tables, "3", []byte(`{"status":"CLOSING_REQUESTED"}`)))
	select {
	case docs := <-snapshots:
		require.Len(t, docs, 1)
		assert.Equal(t, "3", docs[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "bar_pos_changes", channelName("Bar-POS"))
	assert.Equal(t, "tableside_changes", channelName(""))
}
