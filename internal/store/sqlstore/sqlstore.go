// Package sqlstore keeps documents in a single SQL table through bun. On
// postgres subscribers are woken by LISTEN/NOTIFY; other dialects poll.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/store"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents"`

	Collection string `bun:"collection,pk"`
	ID         string `bun:"id,pk"`
	Body       string `bun:"body,notnull"`
	UpdatedAt  int64  `bun:"updated_at,notnull"`
}

// Store implements store.Backend and store.Transactor on a bun database.
type Store struct {
	db       *bun.DB
	name     string
	channel  string
	interval time.Duration
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets the reload cadence for dialects without notifications.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithCoalesceWindow sets how long a subscriber waits after a notification.
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

// New wraps db. projectID namespaces the notification channel.
func New(db *bun.DB, projectID string, opts ...Option) *Store {
	s := &Store{
		db:       db,
		name:     dialectName(db),
		channel:  channelName(projectID),
		interval: 2 * time.Second,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dialectName(db *bun.DB) string {
	switch db.Dialect().Name() {
	case dialect.PG:
		return "postgres"
	case dialect.MySQL:
		return "mysql"
	case dialect.SQLite:
		return "sqlite"
	default:
		return db.Dialect().Name().String()
	}
}

func channelName(projectID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(projectID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("tableside")
	}
	return b.String() + "_changes"
}

// Name identifies the backend.
func (s *Store) Name() string { return s.name }

// IsRemote is always true.
func (s *Store) IsRemote() bool { return true }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return store.Wrap(s.name, "ping", "", s.db.PingContext(ctx))
}

func (s *Store) notifies() bool {
	return s.db.Dialect().Name() == dialect.PG
}

// locksRows reports whether SELECT ... FOR UPDATE is available. sqlite has no
// row locks and serialises writers on the database lock instead.
func (s *Store) locksRows() bool {
	switch s.db.Dialect().Name() {
	case dialect.PG, dialect.MySQL:
		return true
	default:
		return false
	}
}

// List returns every document in coll ordered by id.
func (s *Store) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	docs, err := list(ctx, s.db.NewSelect(), coll)
	return docs, store.Wrap(s.name, "list", coll, err)
}

// Get returns one document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	doc, err := get(ctx, s.db.NewSelect(), coll, id)
	return doc, store.Wrap(s.name, "get", coll, err)
}

// Create stores data under a generated id.
func (s *Store) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, coll, id, data); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, coll store.Collection, id string, data []byte) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.put(ctx, tx, coll, id, data); err != nil {
			return err
		}
		return s.notify(ctx, tx, coll)
	})
	return store.Wrap(s.name, "put", coll, err)
}

// Update overwrites an existing document.
func (s *Store) Update(ctx context.Context, coll store.Collection, id string, data []byte) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*documentRow)(nil)).
			Where("collection = ?", string(coll)).
			Where("id = ?", id).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		if err := s.put(ctx, tx, coll, id, data); err != nil {
			return err
		}
		return s.notify(ctx, tx, coll)
	})
	return store.Wrap(s.name, "update", coll, err)
}

// Delete removes a document; missing ids are not an error.
func (s *Store) Delete(ctx context.Context, coll store.Collection, id string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := remove(ctx, tx, coll, id); err != nil {
			return err
		}
		return s.notify(ctx, tx, coll)
	})
	return store.Wrap(s.name, "delete", coll, err)
}

// Commit applies the batch in one transaction. A MustExist delete that removes
// nothing rolls everything back with store.ErrConflict.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, op := range batch.Ops() {
			switch op.Kind {
			case store.OpPut:
				if err := s.put(ctx, tx, op.Collection, op.ID, op.Data); err != nil {
					return err
				}
			case store.OpDelete:
				n, err := remove(ctx, tx, op.Collection, op.ID)
				if err != nil {
					return err
				}
				if op.MustExist && n == 0 {
					return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, store.ErrConflict)
				}
			}
		}
		for _, coll := range batch.Collections() {
			if err := s.notify(ctx, tx, coll); err != nil {
				return err
			}
		}
		return nil
	})
	return store.Wrap(s.name, "commit", "", err)
}

// RunInTx runs fn inside a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t := &sqlTx{s: s, tx: tx, touched: make(map[store.Collection]struct{})}
		if err := fn(ctx, t); err != nil {
			return err
		}
		for coll := range t.touched {
			if err := s.notify(ctx, tx, coll); err != nil {
				return store.Wrap(s.name, "notify", coll, err)
			}
		}
		return nil
	})
}

// put upserts in a single statement so concurrent writers of the same id
// never see it missing.
func (s *Store) put(ctx context.Context, db bun.IDB, coll store.Collection, id string, data []byte) error {
	row := &documentRow{Collection: string(coll), ID: id, Body: string(data), UpdatedAt: s.now().UnixMilli()}
	q := db.NewInsert().Model(row)
	if s.db.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE")
	} else {
		q = q.On("CONFLICT (collection, id) DO UPDATE")
	}
	_, err := q.Exec(ctx)
	return err
}

func (s *Store) notify(ctx context.Context, db bun.IDB, coll store.Collection) error {
	if !s.notifies() {
		return nil
	}
	_, err := db.NewRaw("SELECT pg_notify(?, ?)", s.channel, string(coll)).Exec(ctx)
	return err
}

func list(ctx context.Context, q *bun.SelectQuery, coll store.Collection) ([]store.Document, error) {
	var rows []documentRow
	err := q.
		Model(&rows).
		Where("collection = ?", string(coll)).
		Order("id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	docs := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, store.Document{ID: r.ID, Data: []byte(r.Body)})
	}
	return docs, nil
}

func get(ctx context.Context, q *bun.SelectQuery, coll store.Collection, id string) (store.Document, error) {
	row := new(documentRow)
	err := q.
		Model(row).
		Where("collection = ?", string(coll)).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: row.ID, Data: []byte(row.Body)}, nil
}

func remove(ctx context.Context, db bun.IDB, coll store.Collection, id string) (int64, error) {
	res, err := db.NewDelete().
		Model((*documentRow)(nil)).
		Where("collection = ?", string(coll)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Subscribe delivers the full collection now and again after each change.
func (s *Store) Subscribe(ctx context.Context, coll store.Collection, fn store.Handler) (store.Unsubscribe, error) {
	if fn == nil {
		return nil, errors.New("sqlstore: nil handler")
	}

	cfg := store.StreamConfig{
		Load:    func(ctx context.Context) ([]store.Document, error) { return s.List(ctx, coll) },
		Deliver: fn,
		Window:  s.window,
		OnError: func(err error) {
			s.logger.Warn("sql snapshot reload failed", zap.String("collection", string(coll)), zap.Error(err))
		},
	}

	if s.notifies() {
		ln := pgdriver.NewListener(s.db)
		if err := ln.Listen(ctx, s.channel); err != nil {
			_ = ln.Close()
			return nil, store.Wrap(s.name, "listen", coll, err)
		}
		notifications := ln.CreateChannel()
		return store.Go(ctx, func(ctx context.Context) {
			wake := store.NewSignal()
			go forwardNotifications(ctx, notifications, s.channel, coll, wake)
			cfg.Wake = wake
			store.Stream(ctx, cfg)
		}, func() { _ = ln.Close() }), nil
	}

	return store.Go(ctx, func(ctx context.Context) {
		wake := store.NewSignal()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					wake.Notify()
				}
			}
		}()
		cfg.Wake = wake
		cfg.Window = 0
		cfg.SkipUnchanged = true
		store.Stream(ctx, cfg)
	}), nil
}

// forwardNotifications wakes the subscriber of coll for every notification on
// channel that names it. It returns when ctx ends or the listener closes.
func forwardNotifications(ctx context.Context, notifications <-chan pgdriver.Notification,
	channel string, coll store.Collection, wake store.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n.Channel == channel && n.Payload == string(coll) {
				wake.Notify()
			}
		}
	}
}

type sqlTx struct {
	s       *Store
	tx      bun.Tx
	touched map[store.Collection]struct{}
}

// selectForUpdate locks the rows a transaction reads until it commits, so a
// read-modify-write cannot interleave with another one.
func (t *sqlTx) selectForUpdate() *bun.SelectQuery {
	q := t.tx.NewSelect()
	if t.s.locksRows() {
		q = q.For("UPDATE")
	}
	return q
}

func (t *sqlTx) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	docs, err := list(ctx, t.selectForUpdate(), coll)
	return docs, store.Wrap(t.s.name, "list", coll, err)
}

func (t *sqlTx) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	doc, err := get(ctx, t.selectForUpdate(), coll, id)
	return doc, store.Wrap(t.s.name, "get", coll, err)
}

func (t *sqlTx) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := t.Put(ctx, coll, id, data); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: data}, nil
}

func (t *sqlTx) Put(ctx context.Context, coll store.Collection, id string, data []byte) error {
	t.touched[coll] = struct{}{}
	return store.Wrap(t.s.name, "put", coll, t.s.put(ctx, t.tx, coll, id, data))
}

func (t *sqlTx) Delete(ctx context.Context, coll store.Collection, id string) error {
	t.touched[coll] = struct{}{}
	_, err := remove(ctx, t.tx, coll, id)
	return store.Wrap(t.s.name, "delete", coll, err)
}
