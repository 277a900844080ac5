package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnumsAcceptLegacyLabels(t *testing.T) {
	cases := []struct {
		raw  string
		want any
		fn   func(string) (any, error)
	}{
		{"Pendente", OrderPending, func(s string) (any, error) { return ParseOrderStatus(s) }},
		{"em preparo", OrderPreparing, func(s string) (any, error) { return ParseOrderStatus(s) }},
		{"Pago/Finalizado", OrderPaid, func(s string) (any, error) { return ParseOrderStatus(s) }},
		{"canceled", OrderCanceled, func(s string) (any, error) { return ParseOrderStatus(s) }},
		{"Bebidas", CategoryDrinks, func(s string) (any, error) { return ParseCategory(s) }},
		{"Refeicoes", CategoryMeals, func(s string) (any, error) { return ParseCategory(s) }},
		{"Cartão de Crédito", PaymentCredit, func(s string) (any, error) { return ParsePaymentMethod(s) }},
		{"PIX", PaymentPix, func(s string) (any, error) { return ParsePaymentMethod(s) }},
		{"Fechamento Solicitado", TableClosingRequested, func(s string) (any, error) { return ParseTableStatus(s) }},
	}
	for _, tc := range cases {
		got, err := tc.fn(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}

	_, err := ParseOrderStatus("LOST")
	assert.Error(t, err)
}

func TestEnumJSONRoundTripsToCodes(t *testing.T) {
	var doc struct {
		Status OrderStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Entregue"}`), &doc))
	assert.Equal(t, OrderDelivered, doc.Status)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"DELIVERED"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"status":"nope"}`), &doc))
}

func TestTableIDDecodesNumbersAndStrings(t *testing.T) {
	var doc struct {
		TableID TableID `json:"tableId"`
	}
	for _, raw := range []string{`{"tableId":3}`, `{"tableId":"3"}`, `{"tableId":" 3 "}`, `{"tableId":3.0}`} {
		require.NoError(t, json.Unmarshal([]byte(raw), &doc), raw)
		assert.Equal(t, TableID(3), doc.TableID, raw)
	}
	assert.Error(t, json.Unmarshal([]byte(`{"tableId":"mesa"}`), &doc))
	assert.Error(t, json.Unmarshal([]byte(`{"tableId":0}`), &doc))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tableId":3}`, string(out))
}

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderPending.CanTransitionTo(OrderPreparing))
	assert.True(t, OrderPreparing.CanTransitionTo(OrderDelivered))
	assert.False(t, OrderDelivered.CanTransitionTo(OrderPending))
	assert.False(t, OrderPaid.CanTransitionTo(OrderCanceled))
	assert.True(t, OrderPending.Active())
	assert.False(t, OrderCanceled.Active())
}

func TestDisplayImage(t *testing.T) {
	assert.Equal(t, PlaceholderImage, Product{}.DisplayImage())
	assert.Equal(t, PlaceholderImage, Product{ImageURL: "http"}.DisplayImage())
	assert.Equal(t, "https://x.io/a.png", Product{ImageURL: "https://x.io/a.png"}.DisplayImage())
}

func TestItemsTotal(t *testing.T) {
	items := []OrderItem{
		{Price: decimal.RequireFromString("15.00"), Quantity: 2},
		{Price: decimal.RequireFromString("8.50"), Quantity: 1},
	}
	assert.True(t, decimal.RequireFromString("38.50").Equal(ItemsTotal(items)))
}

func TestArchivedOrderEffectiveTime(t *testing.T) {
	ordered := time.UnixMilli(1_000)
	archived := time.UnixMilli(2_000)

	a := ArchivedOrder{Order: Order{Timestamp: ordered}, ArchivedAt: archived}
	assert.Equal(t, archived, a.EffectiveTime())

	legacy := ArchivedOrder{Order: Order{Timestamp: ordered}}
	assert.Equal(t, ordered, legacy.EffectiveTime())
	assert.True(t, legacy.CountsAsRevenue())
	assert.False(t, ArchivedOrder{PreviousStatus: OrderCanceled}.CountsAsRevenue())
}
