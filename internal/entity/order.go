package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is a snapshot of a product at ordering time.
type OrderItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a set of items placed for one table. Items and Total never change
// after creation; Status is the only mutable field.
type Order struct {
	ID          string
	TableID     TableID
	Items       []OrderItem
	Status      OrderStatus
	Timestamp   time.Time
	Total       decimal.Decimal
	Observation string
}

// ItemsTotal sums the item subtotals.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ArchivedOrder is a history record written when a table is finalized.
// Order.Status is always PAID; PreviousStatus keeps the live status so a
// cancelled order never counts as revenue.
type ArchivedOrder struct {
	Order
	ArchivedAt     time.Time
	PreviousStatus OrderStatus
}

// CountsAsRevenue reports whether the record belongs in financial stats.
func (a ArchivedOrder) CountsAsRevenue() bool {
	return a.PreviousStatus != OrderCanceled
}

// EffectiveTime is the archive time, or the order time for records written
// before archive timestamps existed.
func (a ArchivedOrder) EffectiveTime() time.Time {
	if a.ArchivedAt.IsZero() {
		return a.Timestamp
	}
	return a.ArchivedAt
}
