package alerts

import (
	"context"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Notifier sends flood alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use
	// and must respect context cancellation.
	Send(ctx context.Context, alert model.Alert) error
}
