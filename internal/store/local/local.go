// Package local is the single-process backend: an in-memory document map,
// optionally mirrored to a JSON file, with poll-based subscriptions.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/store"
)

const backendName = "local"

// DefaultPollInterval is how often subscribers re-read their collection.
const DefaultPollInterval = 2 * time.Second

// Store implements store.Backend and store.Transactor.
type Store struct {
	mu       sync.RWMutex
	data     map[store.Collection]map[string][]byte
	versions map[store.Collection]uint64
	seeds    map[store.Collection][]store.Document
	path     string
	interval time.Duration
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPath mirrors the store to a JSON file. Empty keeps it in memory only.
func WithPath(path string) Option {
	return func(s *Store) { s.path = path }
}

// WithPollInterval overrides the subscription poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSeed provides documents written the first time an absent collection is read.
func WithSeed(coll store.Collection, docs []store.Document) Option {
	return func(s *Store) { s.seeds[coll] = docs }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open builds a Store, loading the backing file when one exists.
func Open(opts ...Option) (*Store, error) {
	s := &Store{
		data:     make(map[store.Collection]map[string][]byte),
		versions: make(map[store.Collection]uint64),
		seeds:    make(map[store.Collection][]store.Document),
		interval: DefaultPollInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return backendName }

// IsRemote is always false for the local store.
func (s *Store) IsRemote() bool { return false }

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// List returns every document in coll ordered by id.
func (s *Store) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureSeeded(coll); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(coll), nil
}

// Get returns one document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	if err := s.ensureSeeded(coll); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[coll][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: clone(data)}, nil
}

// Create stores data under a generated id.
func (s *Store) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, coll, id, data); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: clone(data)}, nil
}

// Put upserts a document.
func (s *Store) Put(ctx context.Context, coll store.Collection, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply([]store.Op{{Kind: store.OpPut, Collection: coll, ID: id, Data: data}})
}

// Update overwrites an existing document.
func (s *Store) Update(ctx context.Context, coll store.Collection, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[coll][id]; !ok {
		return store.ErrNotFound
	}
	return s.applyLocked([]store.Op{{Kind: store.OpPut, Collection: coll, ID: id, Data: data}})
}

// Delete removes a document; missing ids are not an error.
func (s *Store) Delete(ctx context.Context, coll store.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.apply([]store.Op{{Kind: store.OpDelete, Collection: coll, ID: id}})
}

// Commit applies the batch atomically.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.apply(batch.Ops())
}

// RunInTx runs fn with exclusive access; its writes land together or not at all.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for coll := range s.seeds {
		if err := s.ensureSeeded(coll); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &localTx{s: s, staged: make(map[store.Collection]map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}
	return s.applyLocked(tx.ops)
}

// Subscribe polls coll every interval and delivers the snapshot whenever the
// collection changed. The first snapshot is delivered immediately.
func (s *Store) Subscribe(ctx context.Context, coll store.Collection, fn store.Handler) (store.Unsubscribe, error) {
	if fn == nil {
		return nil, errors.New("local: nil handler")
	}
	if err := s.ensureSeeded(coll); err != nil {
		return nil, err
	}

	return store.Go(ctx, func(ctx context.Context) {
		var last uint64
		first := true
		poll := func() {
			s.mu.RLock()
			version := s.versions[coll]
			if !first && version == last {
				s.mu.RUnlock()
				return
			}
			docs := s.listLocked(coll)
			s.mu.RUnlock()
			if ctx.Err() != nil {
				return
			}
			first = false
			last = version
			fn(docs)
		}

		poll()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}), nil
}

func (s *Store) ensureSeeded(coll store.Collection) error {
	seed, ok := s.seeds[coll]
	if !ok {
		return nil
	}
	s.mu.RLock()
	_, present := s.data[coll]
	s.mu.RUnlock()
	if present {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, present := s.data[coll]; present {
		return nil
	}
	ops := make([]store.Op, 0, len(seed))
	for _, d := range seed {
		ops = append(ops, store.Op{Kind: store.OpPut, Collection: coll, ID: d.ID, Data: d.Data})
	}
	if len(ops) == 0 {
		s.data[coll] = make(map[string][]byte)
		return nil
	}
	if err := s.applyLocked(ops); err != nil {
		return err
	}
	s.logger.Info("seeded local collection", zap.String("collection", string(coll)), zap.Int("documents", len(ops)))
	return nil
}

func (s *Store) listLocked(coll store.Collection) []store.Document {
	docs := make([]store.Document, 0, len(s.data[coll]))
	for id, data := range s.data[coll] {
		docs = append(docs, store.Document{ID: id, Data: clone(data)})
	}
	store.SortByID(docs)
	return docs
}

func (s *Store) apply(ops []store.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ops)
}

type undo struct {
	coll    store.Collection
	id      string
	prev    []byte
	existed bool
	created bool
}

// applyLocked checks preconditions, applies ops and persists. A failed
// persist rolls the in-memory state back.
func (s *Store) applyLocked(ops []store.Op) error {
	for _, op := range ops {
		if op.Kind == store.OpDelete && op.MustExist {
			if _, ok := s.data[op.Collection][op.ID]; !ok {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, store.ErrConflict)
			}
		}
		if op.Kind == store.OpPut && !json.Valid(op.Data) {
			return fmt.Errorf("%s/%s: invalid json document", op.Collection, op.ID)
		}
	}

	undos := make([]undo, 0, len(ops))
	touched := make(map[store.Collection]struct{})
	for _, op := range ops {
		docs, ok := s.data[op.Collection]
		if !ok {
			docs = make(map[string][]byte)
			s.data[op.Collection] = docs
		}
		prev, existed := docs[op.ID]
		undos = append(undos, undo{coll: op.Collection, id: op.ID, prev: prev, existed: existed, created: !ok})
		switch op.Kind {
		case store.OpPut:
			docs[op.ID] = clone(op.Data)
		case store.OpDelete:
			delete(docs, op.ID)
		}
		touched[op.Collection] = struct{}{}
	}

	if err := s.persistLocked(); err != nil {
		for i := len(undos) - 1; i >= 0; i-- {
			u := undos[i]
			if u.created {
				delete(s.data, u.coll)
				continue
			}
			if u.existed {
				s.data[u.coll][u.id] = u.prev
			} else {
				delete(s.data[u.coll], u.id)
			}
		}
		return store.Wrap(backendName, "persist", "", err)
	}

	for coll := range touched {
		s.versions[coll]++
	}
	return nil
}

type fileImage struct {
	Collections map[store.Collection]map[string]json.RawMessage `json:"collections"`
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return store.Wrap(backendName, "load", "", err)
	}
	var img fileImage
	if err := json.Unmarshal(raw, &img); err != nil {
		return store.Wrap(backendName, "load", "", fmt.Errorf("decode %s: %w", s.path, err))
	}
	for coll, docs := range img.Collections {
		m := make(map[string][]byte, len(docs))
		for id, body := range docs {
			m[id] = []byte(body)
		}
		s.data[coll] = m
	}
	return nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	img := fileImage{Collections: make(map[store.Collection]map[string]json.RawMessage, len(s.data))}
	for coll, docs := range s.data {
		m := make(map[string]json.RawMessage, len(docs))
		for id, body := range docs {
			m[id] = json.RawMessage(body)
		}
		img.Collections[coll] = m
	}
	raw, err := json.Marshal(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// localTx stages writes on top of the locked store.
type localTx struct {
	s      *Store
	staged map[store.Collection]map[string][]byte
	ops    []store.Op
}

func (t *localTx) List(ctx context.Context, coll store.Collection) ([]store.Document, error) {
	merged := make(map[string][]byte, len(t.s.data[coll]))
	for id, data := range t.s.data[coll] {
		merged[id] = data
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
		docs = append(docs, store.Document{ID: id, Data: clone(data)})
	}
	store.SortByID(docs)
	return docs, nil
}

func (t *localTx) Get(ctx context.Context, coll store.Collection, id string) (store.Document, error) {
	if data, ok := t.staged[coll][id]; ok {
		if data == nil {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{ID: id, Data: clone(data)}, nil
	}
	data, ok := t.s.data[coll][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{ID: id, Data: clone(data)}, nil
}

func (t *localTx) Create(ctx context.Context, coll store.Collection, data []byte) (store.Document, error) {
	id := uuid.NewString()
	if err := t.Put(ctx, coll, id, data); err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: clone(data)}, nil
}

func (t *localTx) Put(ctx context.Context, coll store.Collection, id string, data []byte) error {
	t.stage(coll, id, clone(data))
	t.ops = append(t.ops, store.Op{Kind: store.OpPut, Collection: coll, ID: id, Data: data})
	return nil
}

func (t *localTx) Delete(ctx context.Context, coll store.Collection, id string) error {
	t.stage(coll, id, nil)
	t.ops = append(t.ops, store.Op{Kind: store.OpDelete, Collection: coll, ID: id})
	return nil
}

func (t *localTx) stage(coll store.Collection, id string, data []byte) {
	m, ok := t.staged[coll]
	if !ok {
		m = make(map[string][]byte)
		t.staged[coll] = m
	}
	m[id] = data
}
