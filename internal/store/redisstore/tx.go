package redisstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/store"
)

// txRetries bounds optimistic retries. Every failed attempt means another
// writer committed to a watched hash in between, so the budget only runs out
// under sustained contention from that many concurrent writers.
const (
	txRetries      = 64
	txBackoffLimit = 5 * time.Millisecond
)

// RunInTx runs fn as an optimistic transaction. Every collection fn reads is
// WATCHed first; staged writes are applied in one MULTI/EXEC and fn is rerun
// from scratch if a watched collection changed before EXEC.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 0; attempt < txRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *goredis.Tx) error {
			t := &redisTx{s: s, tx: rtx, watched: make(map[string]bool), staged: make(map[store.Collection]map[string][]byte)}
			if err := fn(ctx, t); err != nil {
				return err
			}
			return t.commit(ctx)
		})
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis transaction retried", zap.Int("attempt", attempt+1))

		wait := time.Duration(rand.Int64N(int64(txBackoffLimit)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return store.ErrConflict
}

// redisTx reads through the watched connection and stages writes so fn sees
// its own changes before they are committed.
type redisTx struct {
	s       *Store
	tx      *goredis.Tx
	watched map[string]bool
	staged  map[store.Collection]map[string][]byte
	batch   store.Batch
}

func (t *redisTx) watch(ctx context.Context, coll store.Collection) error {
	key := t.s.key(coll)
	if t.watched[key] {
		return nil
	}
	if err := t.tx.Watch(ctx, key).Err(); err != nil {
		return store.Wrap(backendName, "watch", coll, err)
	}
	t.watched[key] = true
	return nil
}

func (t *redisTx) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	if err := t.watch(ctx, coll); err != nil {
		return nil, err
	}
	values, err := t.tx.HGetAll(ctx, t.s.key(coll)).Result()
	if err != nil {
		return nil, store.Wrap(backendName, "list", coll, err)
	}
	merged := make(map[string][]byte, len(values))
	for id, body := range values {
		merged[id] = []byte(body)
	}
	for id, data := range t.staged[coll] {
		if data == nil {
			delete(merged, id)
			continue
		}
		merged[id] = data
	}
	docs := make([]store.Document, 0, len(merged))
	for id, data := range merged {
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	store.SortByID(docs)
	return docs, nil
}

func (t *redisTx) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	if data, ok := t.staged[coll][id]; ok {
		if data == nil {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{ID: id, Data: data}, nil
	}
	if err := t.watch(ctx, coll); err != nil {
		return store.Document{}, err
	}
	body, err := t.tx.HGet(ctx, t.s.key(coll), id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, store.Wrap(backendName, "get", coll, err)
	}
	return store.Document{ID: id, Data: body}, nil
}

func (t *redisTx) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := t.Put(ctx, coll, id, data); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

func (t *redisTx) Put(_ context.Context, coll store.Collection, id string, data []byte) error {
	t.stage(coll, id, data)
	t.batch.Put(coll, id, data)
	return nil
}

func (t *redisTx) Delete(_ context.Context, coll store.Collection, id string) error {
	t.stage(coll, id, nil)
	t.batch.Delete(coll, id)
	return nil
}

func (t *redisTx) stage(coll store.Collection, id string, data []byte) {
	m, ok := t.staged[coll]
	if !ok {
		m = make(map[string][]byte)
		t.staged[coll] = m
	}
	m[id] = data
}

func (t *redisTx) commit(ctx context.Context) error {
	if t.batch.Len() == 0 {
		return nil
	}
	_, err := t.tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, op := range t.batch.Ops() {
			switch op.Kind {
			case store.OpPut:
				pipe.HSet(ctx, t.s.key(op.Collection), op.ID, op.Data)
			case store.OpDelete:
				pipe.HDel(ctx, t.s.key(op.Collection), op.ID)
			}
		}
		for _, c := range t.batch.Collections() {
			pipe.Publish(ctx, t.s.channel(), string(c))
		}
		return nil
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return err
	}
	return store.Wrap(backendName, "commit", "", err)
}
