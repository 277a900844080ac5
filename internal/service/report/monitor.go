package report

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/store"
)

// OrderStream delivers live order snapshots.
type OrderStream interface {
	Subscribe(ctx context.Context, fn func([]entity.Order)) (store.Unsubscribe, error)
}

// Monitor watches the live order stream and raises new-order alerts.
type Monitor struct {
	orders OrderStream
	hub    *Hub
	logger *zap.Logger
	alerts metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  store.Unsubscribe
}

// MonitorParams defines dependencies for constructing Monitor.
type MonitorParams struct {
	fx.In

	Orders OrderStream
	Hub    *Hub
	Logger *zap.Logger
}

// NewMonitor wires a Monitor.
func NewMonitor(p MonitorParams) (*Monitor, error) {
	alerts, err := serviceMeter.Int64Counter("tableside.alerts.emitted",
		metric.WithDescription("New-order alerts raised"))
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := p.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Monitor{orders: p.Orders, hub: hub, logger: logger, alerts: alerts}, nil
}

// Start subscribes with a fresh Alerter so a restart never reports the
// existing backlog as new orders.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		return errors.New("monitor already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	alerter := NewAlerter()
	unsub, err := m.orders.Subscribe(ctx, func(orders []entity.Order) {
		alert, ok := alerter.Observe(orders)
		if !ok {
			return
		}
		m.alerts.Add(ctx, int64(alert.NewOrders))
		delivered := m.hub.Publish(alert)
		m.logger.Info("new orders",
			zap.Int("new", alert.NewOrders),
			zap.Int("pending", alert.Pending),
			zap.Int("listeners", delivered))
	})
	if err != nil {
		cancel()
		return err
	}
	m.cancel = cancel
	m.unsub = unsub
	m.logger.Info("order monitor started")
	return nil
}

// Stop ends the subscription. It is a no-op when not started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub == nil {
		return
	}
	m.unsub()
	m.cancel()
	m.unsub = nil
	m.cancel = nil
	m.logger.Info("order monitor stopped")
}

// Hub exposes the alert fan-out.
func (m *Monitor) Hub() *Hub { return m.hub }

// RegisterMonitor ties the monitor to the app lifecycle.
func RegisterMonitor(lc fx.Lifecycle, m *Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start() },
		OnStop: func(context.Context) error {
			m.Stop()
			return nil
		},
	})
}
