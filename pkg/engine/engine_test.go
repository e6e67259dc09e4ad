package engine_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keralanet/floodwatch/pkg/classifier"
	"github.com/keralanet/floodwatch/pkg/engine"
	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/store"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	fail     bool
	dispatch int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, alert model.Alert) []model.DeliveryAttempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatch++
	return []model.DeliveryAttempt{{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		Channel:     "test",
		Success:     !d.fail,
		AttemptedAt: alert.CreatedAt,
	}}
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatch
}

func newTestEngine(t *testing.T, cfg engine.Config, disp engine.Dispatcher) (*engine.Engine, *clockwork.FakeClock, store.Store) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC))
	db, err := store.NewSQLiteWithClock(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if cfg.Thresholds == nil {
		cfg.Thresholds = map[model.AlertLevel]float64{
			model.LevelYellow: 0.5,
			model.LevelOrange: 0.6,
			model.LevelRed:    0.7,
		}
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 6 * time.Hour
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 7
	}

	eng, err := engine.NewWithClock(classifier.NewHeuristic(), db, disp, cfg, nil, clock)
	require.NoError(t, err)
	return eng, clock, db
}

func prediction(t *testing.T, district model.District, probs model.Probabilities) *model.Prediction {
	t.Helper()
	pred, err := model.NewPrediction(district, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC), probs)
	require.NoError(t, err)
	return pred
}

func TestEngine_Decide_BelowThresholdStaysQuiet(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, _, db := newTestEngine(t, engine.Config{}, disp)
	ctx := context.Background()

	// Red at 0.45 confidence, threshold 0.7.
	out, err := eng.Decide(ctx, prediction(t, "Idukki", model.Probabilities{0.30, 0.25, 0.45}))
	require.NoError(t, err)
	assert.Nil(t, out.Alert)
	assert.False(t, out.Notified)
	assert.Zero(t, disp.count())

	latest, err := db.Latest(ctx, "Idukki")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestEngine_Decide_ThresholdEqualityQualifies(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, _, _ := newTestEngine(t, engine.Config{}, disp)

	// Exactly at the Red threshold of 0.7.
	out, err := eng.Decide(context.Background(), prediction(t, "Idukki", model.Probabilities{0.15, 0.15, 0.70}))
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.Equal(t, model.LevelRed, out.Alert.Level)
	assert.True(t, out.Notified)
	assert.Equal(t, 1, disp.count())
}

func TestEngine_Decide_CooldownSuppressesSameSeverity(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, clock, _ := newTestEngine(t, engine.Config{
		Thresholds: map[model.AlertLevel]float64{
			model.LevelYellow: 0.6,
			model.LevelOrange: 0.6,
			model.LevelRed:    0.6,
		},
		Cooldown: time.Hour,
	}, disp)
	ctx := context.Background()

	out, err := eng.Decide(ctx, prediction(t, "Wayanad", model.Probabilities{0.10, 0.75, 0.15}))
	require.NoError(t, err)
	assert.True(t, out.Notified)

	// Same severity ten minutes later stays suppressed.
	clock.Advance(10 * time.Minute)
	out, err = eng.Decide(ctx, prediction(t, "Wayanad", model.Probabilities{0.10, 0.78, 0.12}))
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.True(t, out.Suppressed)
	assert.False(t, out.Notified)
	assert.Equal(t, 1, disp.count())
}

func TestEngine_Decide_EscalationOverridesCooldown(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, clock, _ := newTestEngine(t, engine.Config{
		Thresholds: map[model.AlertLevel]float64{
			model.LevelYellow: 0.6,
			model.LevelOrange: 0.6,
			model.LevelRed:    0.6,
		},
		Cooldown: time.Hour,
	}, disp)
	ctx := context.Background()

	out, err := eng.Decide(ctx, prediction(t, "Wayanad", model.Probabilities{0.75, 0.15, 0.10}))
	require.NoError(t, err)
	assert.Equal(t, model.LevelYellow, out.Alert.Level)
	assert.True(t, out.Notified)

	// Yellow to Red inside the cooldown must fire immediately.
	clock.Advance(10 * time.Minute)
	out, err = eng.Decide(ctx, prediction(t, "Wayanad", model.Probabilities{0.10, 0.15, 0.75}))
	require.NoError(t, err)
	assert.Equal(t, model.LevelRed, out.Alert.Level)
	assert.False(t, out.Suppressed)
	assert.True(t, out.Notified)
	assert.Equal(t, 2, disp.count())
}

func TestEngine_Decide_DowngradeRecordedNotNotified(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, clock, db := newTestEngine(t, engine.Config{
		Thresholds: map[model.AlertLevel]float64{
			model.LevelYellow: 0.6,
			model.LevelOrange: 0.6,
			model.LevelRed:    0.6,
		},
		Cooldown: time.Hour,
	}, disp)
	ctx := context.Background()

	_, err := eng.Decide(ctx, prediction(t, "Alappuzha", model.Probabilities{0.10, 0.15, 0.75}))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	out, err := eng.Decide(ctx, prediction(t, "Alappuzha", model.Probabilities{0.75, 0.15, 0.10}))
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.True(t, out.Suppressed)
	assert.Equal(t, 1, disp.count())

	// The downgrade is still the district's latest recorded state.
	latest, err := db.Latest(ctx, "Alappuzha")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.LevelYellow, latest.Level)
	assert.False(t, latest.Notified)
}

func TestEngine_Decide_IdempotentRecordSingleDispatch(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, _, db := newTestEngine(t, engine.Config{}, disp)
	ctx := context.Background()

	pred := prediction(t, "Kottayam", model.Probabilities{0.05, 0.10, 0.85})
	first, err := eng.Decide(ctx, pred)
	require.NoError(t, err)
	second, err := eng.Decide(ctx, pred)
	require.NoError(t, err)

	assert.Equal(t, first.Alert.ID, second.Alert.ID)
	assert.Equal(t, 1, disp.count())

	alerts, err := db.List(ctx, store.Filter{District: "Kottayam"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEngine_Decide_FailedDeliveryRetriesNextCycle(t *testing.T) {
	disp := &recordingDispatcher{fail: true}
	eng, _, db := newTestEngine(t, engine.Config{}, disp)
	ctx := context.Background()

	pred := prediction(t, "Thrissur", model.Probabilities{0.05, 0.10, 0.85})
	out, err := eng.Decide(ctx, pred)
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.False(t, out.Notified)
	require.Len(t, out.Attempts, 1)
	assert.False(t, out.Attempts[0].Success)

	// Nothing was marked notified, so the next cycle re-attempts.
	disp.fail = false
	out, err = eng.Decide(ctx, pred)
	require.NoError(t, err)
	assert.True(t, out.Notified)
	assert.Equal(t, 2, disp.count())

	attempts, err := db.Attempts(ctx, out.Alert.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestEngine_Evaluate_EndToEnd(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, _, _ := newTestEngine(t, engine.Config{
		WindowSize: 3,
		Coordinates: map[model.District]model.Coordinates{
			"Ernakulam": {Latitude: 9.9816, Longitude: 76.2999},
		},
	}, disp)

	// Five days of severe conditions: enough for warm-up plus a 3-day window.
	obs := make([]model.Observation, 0, 5)
	for i := 0; i < 5; i++ {
		obs = append(obs, model.Observation{
			District:        "Ernakulam",
			Date:            time.Date(2025, 8, 16+i, 0, 0, 0, 0, time.UTC),
			WaterLevelM:     7.2,
			PrecipitationMM: 210,
		})
	}

	out, err := eng.Evaluate(context.Background(), "Ernakulam", obs, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.Equal(t, model.LevelRed, out.Alert.Level)
	assert.InDelta(t, 0.85, out.Alert.Confidence, 1e-9)
	assert.Equal(t, 9.9816, out.Alert.Latitude)
	assert.True(t, out.Notified)
}

func TestEngine_Evaluate_InsufficientHistory(t *testing.T) {
	disp := &recordingDispatcher{}
	eng, _, _ := newTestEngine(t, engine.Config{WindowSize: 3}, disp)

	obs := []model.Observation{{
		District:        "Ernakulam",
		Date:            time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
		WaterLevelM:     2,
		PrecipitationMM: 10,
	}}

	_, err := eng.Evaluate(context.Background(), "Ernakulam", obs, time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, model.ErrInsufficientHistory)
}

func TestEngine_New_RejectsBadConfig(t *testing.T) {
	_, err := engine.New(classifier.NewHeuristic(), nil, nil, engine.Config{
		Thresholds: map[model.AlertLevel]float64{
			model.LevelYellow: 0.5,
			model.LevelOrange: 0.6,
		},
		WindowSize: 7,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Red")

	_, err = engine.New(classifier.NewHeuristic(), nil, nil, engine.Config{
		Thresholds: map[model.AlertLevel]float64{
			model.LevelYellow: 0.5,
			model.LevelOrange: 0.6,
			model.LevelRed:    1.5,
		},
		WindowSize: 7,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
