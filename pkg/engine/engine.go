// Package engine turns classifier predictions into actionable alerts. It
// applies per-level confidence thresholds, the cool-down policy, and drives
// notification dispatch, serializing work per district.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/keralanet/floodwatch/pkg/classifier"
	"github.com/keralanet/floodwatch/pkg/features"
	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/store"
)

// Dispatcher fans an alert out to notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert model.Alert) []model.DeliveryAttempt
}

// Config holds the decision parameters. All fields are read-only after
// construction.
type Config struct {
	// Thresholds maps each alert level to the minimum confidence required
	// to act on it.
	Thresholds map[model.AlertLevel]float64

	// Cooldown suppresses repeat notifications for a district unless the
	// severity escalates.
	Cooldown time.Duration

	// WindowSize is the sequence window length fed to the classifier.
	WindowSize int

	// Coordinates locates each district on outbound alerts.
	Coordinates map[model.District]model.Coordinates
}

// Outcome describes what one district evaluation decided.
type Outcome struct {
	District   model.District
	Prediction *model.Prediction

	// Alert is set when the prediction cleared its threshold.
	Alert *model.Alert

	// Suppressed is true when the alert was recorded but notification was
	// withheld by the cool-down policy.
	Suppressed bool

	// Notified is true when at least one channel delivered.
	Notified bool

	Attempts []model.DeliveryAttempt
}

// Engine is the alert decision engine. Safe for concurrent use; evaluations
// for the same district are serialized.
type Engine struct {
	classifier classifier.Classifier
	store      store.Store
	dispatcher Dispatcher
	cfg        Config
	clock      clockwork.Clock
	logger     *slog.Logger

	mu       sync.Mutex
	perDistr map[model.District]*sync.Mutex
}

// New creates an engine.
func New(c classifier.Classifier, s store.Store, d Dispatcher, cfg Config, logger *slog.Logger) (*Engine, error) {
	return NewWithClock(c, s, d, cfg, logger, clockwork.NewRealClock())
}

// NewWithClock creates an engine with an injected clock.
func NewWithClock(c classifier.Classifier, s store.Store, d Dispatcher, cfg Config, logger *slog.Logger, clock clockwork.Clock) (*Engine, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("window size must be positive, got %d", cfg.WindowSize)
	}
	for _, level := range model.Levels {
		th, ok := cfg.Thresholds[level]
		if !ok {
			return nil, fmt.Errorf("missing threshold for level %s", level)
		}
		if th < 0 || th > 1 {
			return nil, fmt.Errorf("threshold for %s out of range: %v", level, th)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: c,
		store:      s,
		dispatcher: d,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		perDistr:   make(map[model.District]*sync.Mutex),
	}, nil
}

// Evaluate runs one district through the full pipeline: features, window,
// classification, threshold decision, persistence and dispatch. The
// observations must be the district's chronological history ending at asOf.
func (e *Engine) Evaluate(ctx context.Context, district model.District, obs []model.Observation, asOf time.Time) (*Outcome, error) {
	lock := e.districtLock(district)
	lock.Lock()
	defer lock.Unlock()

	vectors, err := features.Compute(obs)
	if err != nil {
		return nil, fmt.Errorf("compute features for %s: %w", district, err)
	}

	window, err := features.BuildWindow(vectors, district, asOf, e.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("build window for %s: %w", district, err)
	}

	probs, err := e.classifier.Classify(ctx, window)
	if err != nil {
		if errors.Is(err, model.ErrInferenceFailure) {
			e.logger.Error("classifier produced an invalid distribution",
				"district", district, "classifier", e.classifier.Name(), "error", err)
		}
		return nil, fmt.Errorf("classify %s: %w", district, err)
	}

	pred, err := model.NewPrediction(district, asOf, probs)
	if err != nil {
		return nil, fmt.Errorf("derive prediction for %s: %w", district, err)
	}

	return e.decide(ctx, pred)
}

// Decide applies the threshold and cool-down policy to a prediction that was
// produced elsewhere. Exposed for one-shot evaluation paths.
func (e *Engine) Decide(ctx context.Context, pred *model.Prediction) (*Outcome, error) {
	lock := e.districtLock(pred.District)
	lock.Lock()
	defer lock.Unlock()
	return e.decide(ctx, pred)
}

func (e *Engine) decide(ctx context.Context, pred *model.Prediction) (*Outcome, error) {
	out := &Outcome{District: pred.District, Prediction: pred}

	// Qualification is >=, equality with the threshold acts.
	if pred.Confidence < e.cfg.Thresholds[pred.PredictedAlert] {
		e.logger.Debug("prediction below threshold",
			"district", pred.District,
			"alert_level", pred.PredictedAlert,
			"confidence", pred.Confidence)
		return out, nil
	}

	coords := e.cfg.Coordinates[pred.District]
	alert := &model.Alert{
		ID:         uuid.New().String(),
		District:   pred.District,
		Level:      pred.PredictedAlert,
		Confidence: pred.Confidence,
		Latitude:   coords.Latitude,
		Longitude:  coords.Longitude,
		AsOfDate:   model.DayKey(pred.AsOfDate),
		CreatedAt:  e.clock.Now().UTC(),
	}

	stored, created, err := e.store.Record(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("record alert for %s: %w", pred.District, err)
	}
	out.Alert = stored

	notify, err := e.store.ShouldNotify(ctx, pred.District, pred.PredictedAlert, e.cfg.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("check cooldown for %s: %w", pred.District, err)
	}
	if !notify {
		out.Suppressed = true
		e.logger.Info("alert suppressed by cooldown",
			"district", pred.District,
			"alert_level", pred.PredictedAlert,
			"created", created)
		return out, nil
	}

	attempts := e.dispatcher.Dispatch(ctx, *stored)
	out.Attempts = attempts

	delivered := false
	for i := range attempts {
		if err := e.store.RecordAttempt(ctx, &attempts[i]); err != nil {
			e.logger.Error("failed to record delivery attempt",
				"alert_id", stored.ID, "channel", attempts[i].Channel, "error", err)
		}
		if attempts[i].Success {
			delivered = true
		}
	}

	// An alert with no successful channel stays unnotified so the next
	// cycle re-attempts delivery.
	if delivered {
		if err := e.store.MarkNotified(ctx, stored.ID); err != nil {
			return nil, fmt.Errorf("mark alert notified: %w", err)
		}
		stored.Notified = true
		out.Notified = true
	}

	e.logger.Info("alert processed",
		"district", pred.District,
		"alert_level", pred.PredictedAlert,
		"confidence", pred.Confidence,
		"notified", out.Notified)
	return out, nil
}

func (e *Engine) districtLock(d model.District) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.perDistr[d]
	if !ok {
		m = &sync.Mutex{}
		e.perDistr[d] = m
	}
	return m
}
