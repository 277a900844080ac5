package table

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/messaging"
	tablesvc "github.com/Additional-Code/tableside/internal/service/table"
	"github.com/Additional-Code/tableside/internal/worker"
)

// Module registers table workflow handlers.
var Module = fx.Module("worker_table",
	fx.Provide(
		fx.Annotate(NewCloseRequestedHandler, fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(NewFinalizedHandler, fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(NewForceClearedHandler, fx.ResultTags(`group:"worker.handlers"`)),
	),
)

// NewCloseRequestedHandler tells the cashier a table is waiting to pay.
func NewCloseRequestedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventTableCloseRequested,
		Handler: func(ctx context.Context, env messaging.Envelope) error {
			var event tablesvc.CloseRequestedEvent
			if err := json.Unmarshal(env.Data, &event); err != nil {
				return err
			}
			logger.Info("table waiting for payment",
				zap.Int("table_id", int(event.TableID)),
				zap.String("payment_method", event.PaymentMethod.Label()))
			return nil
		},
	}
}

// NewFinalizedHandler records archived tables for the cash audit.
func NewFinalizedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventTableFinalized,
		Handler: func(ctx context.Context, env messaging.Envelope) error {
			var outcome tablesvc.Outcome
			if err := json.Unmarshal(env.Data, &outcome); err != nil {
				return err
			}
			fields := []zap.Field{
				zap.Int("table_id", int(outcome.TableID)),
				zap.Int("archived", outcome.Count),
				zap.Time("occurred_at", env.OccurredAt),
			}
			if outcome.Warning != "" {
				logger.Warn("table closed without orders", append(fields, zap.String("warning", outcome.Warning))...)
				return nil
			}
			logger.Info("table closed", fields...)
			return nil
		},
	}
}

// NewForceClearedHandler flags discarded orders; they never reach history.
func NewForceClearedHandler(logger *zap.Logger) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventTableForceCleared,
		Handler: func(ctx context.Context, env messaging.Envelope) error {
			var outcome tablesvc.Outcome
			if err := json.Unmarshal(env.Data, &outcome); err != nil {
				return err
			}
			logger.Warn("table force cleared",
				zap.Int("table_id", int(outcome.TableID)),
				zap.Int("discarded", outcome.Count),
				zap.Time("occurred_at", env.OccurredAt))
			return nil
		},
	}
}
