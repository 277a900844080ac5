// Package redisstore is the multi-client backend on Redis. Each collection is
// a hash keyed by document id; writers publish the collection name on a shared
// channel so subscribers can reload.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/store"
)

const (
	backendName = "redis"
	maxRetries  = 3
)

// Store implements store.Backend and store.Transactor on a redis client.
type Store struct {
	client    *goredis.Client
	projectID string
	window    time.Duration
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCoalesceWindow sets how long a subscriber waits after a change
// notification before reloading.
func WithCoalesceWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open builds a client from the remote credential set. Endpoint is either a
// host:port pair or a redis:// URL; the API key is the password.
func Open(remote config.Remote, opts ...Option) (*Store, error) {
	options, err := clientOptions(remote)
	if err != nil {
		return nil, err
	}
	return New(goredis.NewClient(options), remote.ProjectID, opts...), nil
}

// New wraps an existing client.
func New(client *goredis.Client, projectID string, opts ...Option) *Store {
	if projectID == "" {
		projectID = "tableside"
	}
	s := &Store{client: client, projectID: projectID, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clientOptions(remote config.Remote) (*goredis.Options, error) {
	endpoint := strings.TrimSpace(remote.Endpoint)
	if endpoint == "" {
		return nil, errors.New("redis endpoint is required")
	}
	if strings.HasPrefix(endpoint, "redis://") || strings.HasPrefix(endpoint, "rediss://") {
		options, err := goredis.ParseURL(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse redis endpoint: %w", err)
		}
		if options.Password == "" {
			options.Password = remote.APIKey
		}
		return options, nil
	}
	return &goredis.Options{Addr: endpoint, Password: remote.APIKey}, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return backendName }

// IsRemote is always true.
func (s *Store) IsRemote() bool { return true }

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap(backendName, "ping", "", s.client.Ping(ctx).Err())
}

func (s *Store) key(coll store.Collection) string {
	return s.projectID + ":" + string(coll)
}

func (s *Store) channel() string {
	return s.projectID + ":changes"
}

// List returns every document in coll ordered by id.
func (s *Store) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	values, err := s.client.HGetAll(ctx, s.key(coll)).Result()
	if err != nil {
		return nil, store.Wrap(backendName, "list", coll, err)
	}
	docs := make([]store.Document, 0, len(values))
	for id, body := range values {
		docs = append(docs, store.Document{ID: id, Data: []byte(body)})
	}
	store.SortByID(docs)
	return docs, nil
}

// Get returns one document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	body, err := s.client.HGet(ctx, s.key(coll), id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, store.Wrap(backendName, "get", coll, err)
	}
	return store.Document{ID: id, Data: body}, nil
}

// Create stores data under a generated id.
func (s *Store) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := s.write(ctx, "create", coll, func(pipe goredis.Pipeliner) {
		pipe.HSet(ctx, s.key(coll), id, data)
	}); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, coll store.Collection, id string, data []byte) error {
	return s.write(ctx, "put", coll, func(pipe goredis.Pipeliner) {
		pipe.HSet(ctx, s.key(coll), id, data)
	})
}

// Delete removes a document; missing ids are not an error.
func (s *Store) Delete(ctx context.Context, coll store.Collection, id string) error {
	return s.write(ctx, "delete", coll, func(pipe goredis.Pipeliner) {
		pipe.HDel(ctx, s.key(coll), id)
	})
}

func (s *Store) write(ctx context.Context, op string, coll store.Collection, fn func(goredis.Pipeliner)) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		fn(pipe)
		pipe.Publish(ctx, s.channel(), string(coll))
		return nil
	})
	return store.Wrap(backendName, op, coll, err)
}

// Update overwrites an existing document, failing with store.ErrNotFound when
// it is absent at write time.
func (s *Store) Update(ctx context.Context, coll store.Collection, id string, data []byte) error {
	key := s.key(coll)
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		exists, err := tx.HExists(ctx, key, id).Result()
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, id, data)
			pipe.Publish(ctx, s.channel(), string(coll))
			return nil
		})
		return err
	}, key)
	return store.Wrap(backendName, "update", coll, err)
}

// Commit applies the batch inside MULTI/EXEC. Documents marked MustExist are
// checked under WATCH; a concurrent change retries and eventually surfaces as
// store.ErrConflict.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	colls := batch.Collections()
	keys := make([]string, 0, len(colls))
	for _, c := range colls {
		keys = append(keys, s.key(c))
	}

	err := s.watch(ctx, func(tx *goredis.Tx) error {
		for _, op := range batch.Ops() {
			if !op.MustExist {
				continue
			}
			exists, err := tx.HExists(ctx, s.key(op.Collection), op.ID).Result()
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, store.ErrConflict)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, op := range batch.Ops() {
				switch op.Kind {
				case store.OpPut:
					pipe.HSet(ctx, s.key(op.Collection), op.ID, op.Data)
				case store.OpDelete:
					pipe.HDel(ctx, s.key(op.Collection), op.ID)
				}
			}
			for _, c := range colls {
				pipe.Publish(ctx, s.channel(), string(c))
			}
			return nil
		})
		return err
	}, keys...)
	return store.Wrap(backendName, "commit", "", err)
}

func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
		s.logger.Debug("redis transaction retried", zap.Strings("keys", keys), zap.Int("attempt", attempt+1))
	}
	return store.ErrConflict
}

// Subscribe delivers the full collection now and after every change
// notification for it.
func (s *Store) Subscribe(ctx context.Context, coll store.Collection, fn store.Handler) (store.Unsubscribe, error) {
	if fn == nil {
		return nil, errors.New("redisstore: nil handler")
	}
	ps := s.client.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, store.Wrap(backendName, "subscribe", coll, err)
	}

	messages := ps.Channel()
	return store.Go(ctx, func(ctx context.Context) {
		wake := store.NewSignal()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-messages:
					if !ok {
						return
					}
					if msg.Payload == string(coll) {
						wake.Notify()
					}
				}
			}
		}()

		store.Stream(ctx, store.StreamConfig{
			Load:    func(ctx context.Context) ([]store.Document, error) { return s.List(ctx, coll) },
			Wake:    wake,
			Window:  s.window,
			Deliver: fn,
			OnError: func(err error) {
				s.logger.Warn("redis snapshot reload failed", zap.String("collection", string(coll)), zap.Error(err))
			},
		})
		<-done
	}, func() { _ = ps.Close() }), nil
}
