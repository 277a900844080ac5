// Package store defines the document-level persistence contract shared by the
// local and remote backends. Every backend stores opaque JSON documents keyed by
// id inside named collections and delivers full collection snapshots to
// subscribers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Collection names a group of documents.
type Collection string

const (
	Products Collection = "products"
	Orders   Collection = "orders"
	History  Collection = "orders_history"
	Tables   Collection = "tables"
	Settings Collection = "settings"
)

// Document is one stored JSON body.
type Document struct {
	ID   string
	Data []byte
}

// Handler receives the complete current contents of a collection.
type Handler func([]Document)

// Unsubscribe stops a subscription and releases its listener or poller.
// It must not be called from inside the subscription's Handler.
type Unsubscribe func()

var (
	// ErrNotFound is returned when a document is missing.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a batch precondition no longer holds.
	ErrConflict = errors.New("document changed concurrently")
)

// Backend is the capability every persistence implementation provides.
type Backend interface {
	Subscribe(ctx context.Context, coll Collection, fn Handler) (Unsubscribe, error)
	List(ctx context.Context, coll Collection) ([]Document, error)
	Get(ctx context.Context, coll Collection, id string) (Document, error)
	Create(ctx context.Context, coll Collection, data []byte) (Document, error)
	Put(ctx context.Context, coll Collection, id string, data []byte) error
	Update(ctx context.Context, coll Collection, id string, data []byte) error
	Delete(ctx context.Context, coll Collection, id string) error
	Commit(ctx context.Context, batch *Batch) error
	Ping(ctx context.Context) error
	// IsRemote is for status display only.
	IsRemote() bool
	Name() string
}

// Tx is the read/write view handed to Transactor callbacks.
type Tx interface {
	List(ctx context.Context, coll Collection) ([]Document, error)
	Get(ctx context.Context, coll Collection, id string) (Document, error)
	Create(ctx context.Context, coll Collection, data []byte) (Document, error)
	Put(ctx context.Context, coll Collection, id string, data []byte) error
	Delete(ctx context.Context, coll Collection, id string) error
}

// Transactor is implemented by backends that can run read-modify-write
// sequences atomically. Callers type-assert for it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// BackendError wraps transport and permission failures.
type BackendError struct {
	Backend    string
	Op         string
	Collection Collection
	Err        error
}

func (e *BackendError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Wrap annotates err as a BackendError. Sentinels and context errors pass
// through untouched so callers can match them directly.
func Wrap(backend, op string, coll Collection, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: backend, Op: op, Collection: coll, Err: err}
}

// IsBackendError reports whether err came from the transport layer.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// SortByID orders documents deterministically.
func SortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
