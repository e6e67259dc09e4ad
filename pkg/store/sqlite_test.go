package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/store"
)

func newTestStore(t *testing.T) (*store.SQLite, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC))
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewSQLiteWithClock(dbPath, clock)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func testAlert(district model.District, level model.AlertLevel) *model.Alert {
	return &model.Alert{
		District:   district,
		Level:      level,
		Confidence: 0.85,
		Latitude:   10.0827,
		Longitude:  76.2711,
		AsOfDate:   time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_Record(t *testing.T) {
	db, _ := newTestStore(t)
	ctx := context.Background()

	stored, created, err := db.Record(ctx, testAlert("Ernakulam", model.LevelRed))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.Notified)
}

func TestSQLite_Record_Idempotent(t *testing.T) {
	db, _ := newTestStore(t)
	ctx := context.Background()

	first, created, err := db.Record(ctx, testAlert("Ernakulam", model.LevelRed))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := db.Record(ctx, testAlert("Ernakulam", model.LevelRed))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	alerts, err := db.List(ctx, store.Filter{District: "Ernakulam"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSQLite_Record_InvalidLevel(t *testing.T) {
	db, _ := newTestStore(t)

	_, _, err := db.Record(context.Background(), testAlert("Ernakulam", "Purple"))
	assert.Error(t, err)
}

func TestSQLite_Latest(t *testing.T) {
	db, clock := newTestStore(t)
	ctx := context.Background()

	latest, err := db.Latest(ctx, "Idukki")
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, _, err = db.Record(ctx, testAlert("Idukki", model.LevelYellow))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	orange := testAlert("Idukki", model.LevelOrange)
	orange.AsOfDate = orange.AsOfDate.AddDate(0, 0, 1)
	_, _, err = db.Record(ctx, orange)
	require.NoError(t, err)

	latest, err = db.Latest(ctx, "Idukki")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.LevelOrange, latest.Level)
}

func TestSQLite_ShouldNotify_Cooldown(t *testing.T) {
	db, clock := newTestStore(t)
	ctx := context.Background()
	cooldown := time.Hour

	// No alerts yet: always notify.
	ok, err := db.ShouldNotify(ctx, "Thrissur", model.LevelOrange, cooldown)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, _, err := db.Record(ctx, testAlert("Thrissur", model.LevelOrange))
	require.NoError(t, err)
	require.NoError(t, db.MarkNotified(ctx, stored.ID))

	// Same severity 10 minutes later: suppressed.
	clock.Advance(10 * time.Minute)
	ok, err = db.ShouldNotify(ctx, "Thrissur", model.LevelOrange, cooldown)
	require.NoError(t, err)
	assert.False(t, ok)

	// Downgrade inside the cool-down: also suppressed.
	ok, err = db.ShouldNotify(ctx, "Thrissur", model.LevelYellow, cooldown)
	require.NoError(t, err)
	assert.False(t, ok)

	// Escalation inside the cool-down: fires immediately.
	ok, err = db.ShouldNotify(ctx, "Thrissur", model.LevelRed, cooldown)
	require.NoError(t, err)
	assert.True(t, ok)

	// After the cool-down elapses, same severity may notify again.
	clock.Advance(time.Hour)
	ok, err = db.ShouldNotify(ctx, "Thrissur", model.LevelOrange, cooldown)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_ShouldNotify_IgnoresUnnotifiedAlerts(t *testing.T) {
	db, _ := newTestStore(t)
	ctx := context.Background()

	// Recorded but never notified: no cool-down applies.
	_, _, err := db.Record(ctx, testAlert("Kollam", model.LevelOrange))
	require.NoError(t, err)

	ok, err := db.ShouldNotify(ctx, "Kollam", model.LevelOrange, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_MarkNotified(t *testing.T) {
	db, _ := newTestStore(t)
	ctx := context.Background()

	stored, _, err := db.Record(ctx, testAlert("Wayanad", model.LevelRed))
	require.NoError(t, err)

	require.NoError(t, db.MarkNotified(ctx, stored.ID))

	latest, err := db.Latest(ctx, "Wayanad")
	require.NoError(t, err)
	assert.True(t, latest.Notified)

	assert.Error(t, db.MarkNotified(ctx, "no-such-id"))
}

func TestSQLite_Attempts(t *testing.T) {
	db, _ := newTestStore(t)
	ctx := context.Background()

	stored, _, err := db.Record(ctx, testAlert("Kannur", model.LevelRed))
	require.NoError(t, err)

	require.NoError(t, db.RecordAttempt(ctx, &model.DeliveryAttempt{
		AlertID: stored.ID, Channel: "slack", Success: true,
	}))
	require.NoError(t, db.RecordAttempt(ctx, &model.DeliveryAttempt{
		AlertID: stored.ID, Channel: "webhook", Success: false, Error: "status 503",
	}))

	attempts, err := db.Attempts(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "slack", attempts[0].Channel)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "status 503", attempts[1].Error)
}

func TestSQLite_Current(t *testing.T) {
	db, clock := newTestStore(t)
	ctx := context.Background()

	_, _, err := db.Record(ctx, testAlert("Alappuzha", model.LevelYellow))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	red := testAlert("Alappuzha", model.LevelRed)
	red.AsOfDate = red.AsOfDate.AddDate(0, 0, 1)
	_, _, err = db.Record(ctx, red)
	require.NoError(t, err)

	_, _, err = db.Record(ctx, testAlert("Palakkad", model.LevelOrange))
	require.NoError(t, err)

	current, err := db.Current(ctx)
	require.NoError(t, err)
	require.Len(t, current, 2)

	// Sorted by district; the latest record wins per district.
	assert.Equal(t, model.District("Alappuzha"), current[0].District)
	assert.Equal(t, model.LevelRed, current[0].Level)
	assert.Equal(t, model.District("Palakkad"), current[1].District)
}

func TestSQLite_List_Filters(t *testing.T) {
	db, clock := newTestStore(t)
	ctx := context.Background()

	_, _, err := db.Record(ctx, testAlert("Ernakulam", model.LevelYellow))
	require.NoError(t, err)
	_, _, err = db.Record(ctx, testAlert("Ernakulam", model.LevelRed))
	require.NoError(t, err)
	_, _, err = db.Record(ctx, testAlert("Idukki", model.LevelRed))
	require.NoError(t, err)

	byDistrict, err := db.List(ctx, store.Filter{District: "Ernakulam"})
	require.NoError(t, err)
	assert.Len(t, byDistrict, 2)

	byLevel, err := db.List(ctx, store.Filter{Level: model.LevelRed})
	require.NoError(t, err)
	assert.Len(t, byLevel, 2)

	since, err := db.List(ctx, store.Filter{Since: clock.Now().Add(time.Minute)})
	require.NoError(t, err)
	assert.Empty(t, since)

	limited, err := db.List(ctx, store.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_CountByLevel(t *testing.T) {
	db, clock := newTestStore(t)
	ctx := context.Background()

	_, _, err := db.Record(ctx, testAlert("Ernakulam", model.LevelRed))
	require.NoError(t, err)
	_, _, err = db.Record(ctx, testAlert("Idukki", model.LevelRed))
	require.NoError(t, err)
	_, _, err = db.Record(ctx, testAlert("Kollam", model.LevelYellow))
	require.NoError(t, err)

	counts, err := db.CountByLevel(ctx, clock.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.LevelRed])
	assert.Equal(t, int64(1), counts[model.LevelYellow])
	assert.Zero(t, counts[model.LevelOrange])
}
