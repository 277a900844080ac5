package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/messaging"
)

const (
	handlerTimeout    = 30 * time.Second
	minConsumeBackoff = time.Second
	maxConsumeBackoff = 30 * time.Second
)

var (
	workerTracer = otel.Tracer("github.com/Additional-Code/tableside/worker")
	workerMeter  = otel.Meter("github.com/Additional-Code/tableside/worker")
)

// EventHandler processes one decoded domain event.
type EventHandler func(context.Context, messaging.Envelope) error

// HandlerRegistration binds a domain event type to a handler.
type HandlerRegistration struct {
	EventType string
	Handler   EventHandler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine runs a pool of consumers over the event topic and routes each
// envelope to the handlers registered for its type.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	cfg      config.Config
	handlers map[string][]EventHandler
	handled  metric.Int64Counter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

// NewEngine constructs the worker Engine. Several handlers may share an
// event type; they run in registration order.
func NewEngine(p Params) *Engine {
	handlers := make(map[string][]EventHandler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.EventType == "" || r.Handler == nil {
			continue
		}
		handlers[r.EventType] = append(handlers[r.EventType], r.Handler)
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handled, err := workerMeter.Int64Counter("tableside.worker.events_handled",
		metric.WithDescription("Domain events processed by the worker, by type and outcome."))
	if err != nil {
		logger.Warn("worker metric unavailable", zap.Error(err))
	}
	return &Engine{
		client:   p.Client,
		logger:   logger,
		cfg:      p.Config,
		handlers: handlers,
		handled:  handled,
	}
}

func (e *Engine) start(context.Context) error {
	switch {
	case !e.cfg.Messaging.Enabled || !e.cfg.Messaging.Workers.Enabled:
		e.logger.Info("worker engine disabled")
		return nil
	case len(e.handlers) == 0:
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	workers := max(e.cfg.Messaging.Workers.Concurrency, 1)
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	for id := range workers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeLoop(runCtx, id)
		}()
	}

	e.logger.Info("worker engine started",
		zap.Int("workers", workers),
		zap.String("topic", e.client.Topic()),
		zap.Int("event_types", len(e.handlers)))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

// Dispatch decodes msg and runs the handlers registered for its type.
// Undecodable messages and unknown types are acknowledged so they do not
// block the partition.
func (e *Engine) Dispatch(ctx context.Context, msg messaging.Message) error {
	env, err := messaging.DecodeEnvelope(msg)
	if err != nil {
		e.logger.Warn("dropping undecodable message", zap.Int64("offset", msg.Offset), zap.Error(err))
		e.count(ctx, "unknown", "undecodable")
		return nil
	}
	handlers, ok := e.handlers[env.Type]
	if !ok {
		e.logger.Debug("no handler for event", zap.String("type", env.Type))
		e.count(ctx, env.Type, "ignored")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	ctx, span := workerTracer.Start(ctx, "worker.dispatch", trace.WithAttributes(
		attribute.String("event.type", env.Type),
		attribute.String("event.key", string(msg.Key)),
		attribute.Int64("event.offset", msg.Offset)))
	defer span.End()

	for _, handler := range handlers {
		if err := handler(ctx, env); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			e.count(ctx, env.Type, "failed")
			return err
		}
	}
	e.count(ctx, env.Type, "ok")
	return nil
}

func (e *Engine) count(ctx context.Context, eventType, outcome string) {
	if e.handled == nil {
		return
	}
	e.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("outcome", outcome)))
}

// consumeLoop restarts Consume after transport failures with exponential
// backoff until ctx ends.
func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	backoff := minConsumeBackoff
	for ctx.Err() == nil {
		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			e.logger.Debug("processing event", zap.ByteString("key", msg.Key), zap.Int("worker", workerID))
			return e.Dispatch(msgCtx, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Int("worker", workerID), zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, maxConsumeBackoff)
	}
}
