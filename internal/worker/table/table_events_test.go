package table

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	tablesvc "github.com/Additional-Code/tableside/internal/service/table"
)

func envelope(t *testing.T, eventType string, data any) messaging.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return messaging.Envelope{Type: eventType, Data: raw}
}

func TestCloseRequestedUsesPaymentLabel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := NewCloseRequestedHandler(zap.New(core))

	env := envelope(t, messaging.EventTableCloseRequested, tablesvc.CloseRequestedEvent{TableID: 3, PaymentMethod: entity.PaymentCredit})
	require.NoError(t, reg.Handler(context.Background(), env))

	entries := logs.FilterMessage("table waiting for payment").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Cartão de Crédito", entries[0].ContextMap()["payment_method"])
}

func TestFinalizedWarnsOnEmptyTables(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reg := NewFinalizedHandler(zap.New(core))

	require.NoError(t, reg.Handler(context.Background(), envelope(t, messaging.EventTableFinalized, tablesvc.Outcome{TableID: 3, Count: 2})))
	require.NoError(t, reg.Handler(context.Background(), envelope(t, messaging.EventTableFinalized,
		tablesvc.Outcome{TableID: 4, Warning: tablesvc.NoOrdersWarning})))

	assert.Equal(t, 1, logs.FilterMessage("table closed").Len())
	assert.Equal(t, 1, logs.FilterMessage("table closed without orders").Len())
}

func TestForceClearedRejectsGarbage(t *testing.T) {
	reg := NewForceClearedHandler(zap.NewNop())
	assert.Error(t, reg.Handler(context.Background(), messaging.Envelope{Data: []byte(`{"tableId":"mesa"}`)}))
}
