package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/messaging"
	ordersvc "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/tableside/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewStatusChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// KitchenTicket renders the plain-text ticket the kitchen works from.
func KitchenTicket(event ordersvc.CreatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TABLE %d  #%s  %s\n", int(event.TableID), shortID(event.ID), event.CreatedAt.Format("15:04"))
	for _, it := range event.Items {
		fmt.Fprintf(&b, "%3dx %s\n", it.Quantity, it.Name)
	}
	if obs := strings.TrimSpace(event.Observation); obs != "" {
		fmt.Fprintf(&b, "OBS: %s\n", obs)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}

// NewOrderCreatedHandler logs a kitchen ticket for every new order.
func NewOrderCreatedHandler(logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, env messaging.Envelope) error {
		_, span := workerTracer.Start(ctx, "worker.orders.ticket", trace.WithAttributes(
			attribute.String("event.type", env.Type),
		))
		defer span.End()

		var event ordersvc.CreatedEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			logger.Error("failed to decode order created", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("order.id", event.ID), attribute.Int("order.table_id", int(event.TableID)))

		logger.Info("kitchen ticket",
			zap.String("order_id", event.ID),
			zap.Int("table_id", int(event.TableID)),
			zap.String("total", event.Total),
			zap.String("ticket", KitchenTicket(event)),
		)

		return nil
	}

	return worker.HandlerRegistration{
		EventType: messaging.EventOrderCreated,
		Handler:   handler,
	}
}

// NewStatusChangedHandler records status overwrites for the kitchen log.
func NewStatusChangedHandler(logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, env messaging.Envelope) error {
		var event ordersvc.StatusChangedEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			logger.Error("failed to decode status change", zap.Error(err))
			return err
		}
		logger.Info("order status changed",
			zap.String("order_id", event.ID),
			zap.Int("table_id", int(event.TableID)),
			zap.String("from", string(event.From)),
			zap.String("to", string(event.To)),
		)
		return nil
	}

	return worker.HandlerRegistration{
		EventType: messaging.EventOrderStatusChanged,
		Handler:   handler,
	}
}
