package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
)

// Alert is a transient new-order signal. It is never persisted.
type Alert struct {
	NewOrders int       `json:"newOrders"`
	Pending   int       `json:"pending"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Alerter turns successive order snapshots into alerts. Use one per
// subscription: the first snapshot it sees only primes the baseline.
type Alerter struct {
	mu     sync.Mutex
	primed bool
	last   int
	now    func() time.Time
}

// NewAlerter returns an unprimed Alerter.
func NewAlerter() *Alerter {
	return &Alerter{now: time.Now}
}

// Observe records a snapshot and reports an alert when the PENDING count grew
// since the previous one.
func (a *Alerter) Observe(orders []entity.Order) (Alert, bool) {
	pending := PendingCount(orders)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.primed {
		a.primed = true
		a.last = pending
		return Alert{}, false
	}
	delta := pending - a.last
	a.last = pending
	if delta <= 0 {
		return Alert{}, false
	}
	return Alert{
		NewOrders: delta,
		Pending:   pending,
		Message:   fmt.Sprintf("%d new order(s)", delta),
		At:        a.now(),
	}, true
}

// PendingCount counts orders still waiting for the kitchen.
func PendingCount(orders []entity.Order) int {
	n := 0
	for _, o := range orders {
		if o.Status == entity.OrderPending {
			n++
		}
	}
	return n
}
