package entity

import (
	"fmt"
	"strings"
)

// Category groups products on the menu.
type Category string

const (
	CategoryDrinks   Category = "BEBIDAS"
	CategorySnacks   Category = "TIRA_GOSTO"
	CategoryMeals    Category = "REFEICOES"
	CategoryDesserts Category = "SOBREMESAS"
)

var categoryLabels = map[Category]string{
	CategoryDrinks:   "Bebidas",
	CategorySnacks:   "Tira Gostos",
	CategoryMeals:    "Refeições",
	CategoryDesserts: "Sobremesas",
}

// OrderStatus is the kitchen-facing state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPreparing OrderStatus = "PREPARING"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCanceled  OrderStatus = "CANCELED"
	OrderPaid      OrderStatus = "PAID"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderPending:   "Pendente",
	OrderPreparing: "Em Preparo",
	OrderDelivered: "Entregue",
	OrderCanceled:  "Cancelado",
	OrderPaid:      "Pago/Finalizado",
}

// TableStatus is the billing state of a table.
type TableStatus string

const (
	TableOpen             TableStatus = "OPEN"
	TableClosingRequested TableStatus = "CLOSING_REQUESTED"
	TableClosed           TableStatus = "CLOSED"
)

var tableStatusLabels = map[TableStatus]string{
	TableOpen:             "Aberta",
	TableClosingRequested: "Fechamento Solicitado",
	TableClosed:           "Fechada",
}

// PaymentMethod is how a table intends to settle its bill.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "DINHEIRO"
	PaymentCredit PaymentMethod = "CARTAO_CREDITO"
	PaymentDebit  PaymentMethod = "CARTAO_DEBITO"
	PaymentPix    PaymentMethod = "PIX"
)

var paymentMethodLabels = map[PaymentMethod]string{
	PaymentCash:   "Dinheiro",
	PaymentCredit: "Cartão de Crédito",
	PaymentDebit:  "Cartão de Débito",
	PaymentPix:    "PIX",
}

var foldAccents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u",
	"ç", "c",
)

func normalizeLabel(s string) string {
	return foldAccents.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// parseEnum accepts a canonical code or its display label.
func parseEnum[T ~string](kind, raw string, labels map[T]string) (T, error) {
	trimmed := strings.TrimSpace(raw)
	want := normalizeLabel(trimmed)
	for code, label := range labels {
		if strings.EqualFold(trimmed, string(code)) || want == normalizeLabel(label) {
			return code, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, raw)
}

// ParseCategory accepts codes and legacy labels such as "Bebidas".
func ParseCategory(raw string) (Category, error) {
	return parseEnum("category", raw, categoryLabels)
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display text.
func (c Category) Label() string { return categoryLabels[c] }

func (c Category) MarshalText() ([]byte, error) { return []byte(c), nil }

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseOrderStatus accepts codes and legacy labels such as "Pendente".
func ParseOrderStatus(raw string) (OrderStatus, error) {
	return parseEnum("order status", raw, orderStatusLabels)
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

// Label returns the display text.
func (s OrderStatus) Label() string { return orderStatusLabels[s] }

// Active reports whether the order still counts toward the table's bill.
func (s OrderStatus) Active() bool {
	return s != OrderPaid && s != OrderCanceled
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPreparing, OrderCanceled},
	OrderPreparing: {OrderDelivered, OrderCanceled},
}

// CanTransitionTo describes the kitchen workflow. Status writes do not
// enforce it; it exists for clients that want to offer only sensible moves.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s), nil }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	v, err := ParseOrderStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseTableStatus accepts codes and legacy labels.
func ParseTableStatus(raw string) (TableStatus, error) {
	return parseEnum("table status", raw, tableStatusLabels)
}

// Valid reports whether s is a known table status.
func (s TableStatus) Valid() bool {
	_, ok := tableStatusLabels[s]
	return ok
}

// Label returns the display text.
func (s TableStatus) Label() string { return tableStatusLabels[s] }

func (s TableStatus) MarshalText() ([]byte, error) { return []byte(s), nil }

func (s *TableStatus) UnmarshalText(b []byte) error {
	v, err := ParseTableStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParsePaymentMethod accepts codes and legacy labels such as "Cartão de Crédito".
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	return parseEnum("payment method", raw, paymentMethodLabels)
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	_, ok := paymentMethodLabels[m]
	return ok
}

// Label returns the display text.
func (m PaymentMethod) Label() string { return paymentMethodLabels[m] }

func (m PaymentMethod) MarshalText() ([]byte, error) { return []byte(m), nil }

func (m *PaymentMethod) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = ""
		return nil
	}
	v, err := ParsePaymentMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
