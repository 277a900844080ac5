package store

import (
	"bytes"
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Signal is a coalescing wake-up: any number of Notify calls between two
// receives collapse into a single pending wake-up.
type Signal chan struct{}

// NewSignal allocates a Signal.
func NewSignal() Signal {
	return make(Signal, 1)
}

// Notify records a wake-up without blocking.
func (s Signal) Notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// StreamConfig drives a snapshot subscription.
type StreamConfig struct {
	Load    func(ctx context.Context) ([]Document, error)
	Wake    <-chan struct{}
	Window  time.Duration
	Deliver Handler
	OnError func(error)
	// SkipUnchanged suppresses deliveries whose snapshot is identical to the
	// previous one. Used by polling feeds that wake on a timer.
	SkipUnchanged bool
}

// Stream delivers one snapshot immediately and then one per wake-up. After a
// wake-up it waits Window so a burst of writes yields one delivery. It returns
// when ctx is done or Wake is closed.
func Stream(ctx context.Context, cfg StreamConfig) {
	var last uint64
	delivered := false

	deliver := func() {
		docs, err := cfg.Load(ctx)
		if err != nil {
			if ctx.Err() == nil && cfg.OnError != nil {
				cfg.OnError(err)
			}
			return
		}
		if cfg.SkipUnchanged {
			sum := fingerprint(docs)
			if delivered && sum == last {
				return
			}
			last = sum
		}
		if ctx.Err() != nil {
			return
		}
		delivered = true
		cfg.Deliver(docs)
	}

	deliver()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-cfg.Wake:
			if !ok {
				return
			}
			if cfg.Window > 0 {
				timer := time.NewTimer(cfg.Window)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				drain(cfg.Wake)
			}
			deliver()
		}
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func fingerprint(docs []Document) uint64 {
	h := fnv.New64a()
	for _, d := range docs {
		_, _ = h.Write([]byte(d.ID))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(bytes.TrimSpace(d.Data))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Go runs fn on its own goroutine with a cancellable child context and returns
// an idempotent Unsubscribe that cancels it, runs cleanup and waits for exit.
func Go(ctx context.Context, fn func(ctx context.Context), cleanup ...func()) Unsubscribe {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(runCtx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			for _, c := range cleanup {
				c()
			}
			<-done
		})
	}
}
