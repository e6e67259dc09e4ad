// Package store persists alerts and their delivery attempts, and encodes the
// de-duplication and cool-down policy that keeps districts from being
// re-notified about the same risk.
package store

import (
	"context"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Filter narrows alert listings.
type Filter struct {
	District model.District
	Level    model.AlertLevel
	Since    time.Time
	Limit    int
}

// Store is the persistence layer for alert state. Alert records are owned
// exclusively by the store: callers mutate them only through MarkNotified and
// RecordAttempt, and records are never deleted, only superseded.
type Store interface {
	// Record persists an alert, idempotent on (district, level, as_of_date):
	// recording the same tuple twice returns the original row with
	// created=false and must not trigger duplicate notifications.
	Record(ctx context.Context, alert *model.Alert) (stored *model.Alert, created bool, err error)

	// Latest returns the most recent alert for a district, or nil when the
	// district has never alerted.
	Latest(ctx context.Context, district model.District) (*model.Alert, error)

	// ShouldNotify applies the cool-down policy: a district notified within
	// cooldown is suppressed unless level is a severity escalation over the
	// last notified alert.
	ShouldNotify(ctx context.Context, district model.District, level model.AlertLevel, cooldown time.Duration) (bool, error)

	// MarkNotified flips the alert's notified flag.
	MarkNotified(ctx context.Context, alertID string) error

	// RecordAttempt appends one channel delivery attempt for an alert.
	RecordAttempt(ctx context.Context, attempt *model.DeliveryAttempt) error

	// Attempts lists the delivery attempts for an alert, oldest first.
	Attempts(ctx context.Context, alertID string) ([]model.DeliveryAttempt, error)

	// List returns alerts matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]model.Alert, error)

	// Current returns the latest alert per district, the state a dashboard
	// reads.
	Current(ctx context.Context) ([]model.Alert, error)

	// CountByLevel aggregates alert counts per level since the given time.
	CountByLevel(ctx context.Context, since time.Time) (map[model.AlertLevel]int64, error)

	// Close releases resources.
	Close() error
}
