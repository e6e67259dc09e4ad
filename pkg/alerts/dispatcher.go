package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Dispatcher fans an alert out to all configured notifiers. Each channel
// is attempted exactly once; one channel failing never prevents delivery
// on the others.
type Dispatcher struct {
	notifiers []Notifier
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(notifiers []Notifier, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithClock(notifiers, logger, clockwork.NewRealClock())
}

// NewDispatcherWithClock creates a dispatcher with an injected clock.
func NewDispatcherWithClock(notifiers []Notifier, logger *slog.Logger, clock clockwork.Clock) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifiers: notifiers, clock: clock, logger: logger}
}

// Channels returns the names of the configured notifiers.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch sends the alert on every channel concurrently and returns one
// delivery attempt per channel. The returned slice preserves notifier
// order regardless of completion order.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) []model.DeliveryAttempt {
	attempts := make([]model.DeliveryAttempt, len(d.notifiers))

	var wg sync.WaitGroup
	for i, n := range d.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()

			attempt := model.DeliveryAttempt{
				ID:          uuid.New().String(),
				AlertID:     alert.ID,
				Channel:     n.Name(),
				AttemptedAt: d.clock.Now().UTC(),
			}

			if err := n.Send(ctx, alert); err != nil {
				err = fmt.Errorf("%w: %v", model.ErrDeliveryFailure, err)
				attempt.Error = err.Error()
				d.logger.Error("alert delivery failed",
					"channel", n.Name(),
					"district", alert.District,
					"alert_level", alert.Level,
					"error", err)
			} else {
				attempt.Success = true
				d.logger.Info("alert delivered",
					"channel", n.Name(),
					"district", alert.District,
					"alert_level", alert.Level)
			}

			attempts[i] = attempt
		}(i, n)
	}
	wg.Wait()

	return attempts
}
