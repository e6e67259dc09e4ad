// Package monitor drives periodic end-to-end evaluation of every configured
// district.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/keralanet/floodwatch/internal/observability"
	"github.com/keralanet/floodwatch/pkg/engine"
	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/source"
)

// Evaluator runs one district through the prediction-to-alert pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, district model.District, obs []model.Observation, asOf time.Time) (*engine.Outcome, error)
}

// Failure records one district that could not be evaluated this cycle.
type Failure struct {
	District model.District
	Err      error
}

// CycleResult summarizes one monitoring cycle.
type CycleResult struct {
	StartedAt   time.Time
	Duration    time.Duration
	Evaluations []engine.Outcome
	Failures    []Failure
}

// Config holds the loop parameters.
type Config struct {
	// Districts to evaluate each cycle.
	Districts []model.District

	// Interval between cycle starts.
	Interval time.Duration

	// Lookback bounds the observation history fetched per district. Must
	// cover the warm-up days plus the window length.
	Lookback time.Duration
}

// Runner evaluates all districts on a timer. One goroutine per district per
// cycle; districts share no state outside the store.
type Runner struct {
	evaluator Evaluator
	provider  source.Provider
	cfg       Config
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
	trigger   chan struct{}
}

// NewRunner creates a monitoring loop runner.
func NewRunner(ev Evaluator, p source.Provider, cfg Config, m *observability.Metrics, logger *slog.Logger) *Runner {
	return NewRunnerWithClock(ev, p, cfg, m, logger, clockwork.NewRealClock())
}

// NewRunnerWithClock creates a runner with an injected clock.
func NewRunnerWithClock(ev Evaluator, p source.Provider, cfg Config, m *observability.Metrics, logger *slog.Logger, clock clockwork.Clock) *Runner {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if m == nil {
		m = observability.NewMetricsForTesting()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		evaluator: ev,
		provider:  p,
		cfg:       cfg,
		clock:     clock,
		metrics:   m,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate cycle. An in-flight cycle is never
// interrupted; only the wait before the next one is cut short.
func (r *Runner) TriggerNow() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run executes cycles until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		result := r.RunCycle(ctx)
		r.logger.Info("cycle complete",
			"evaluated", len(result.Evaluations),
			"failed", len(result.Failures),
			"duration", result.Duration)

		timer := r.clock.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.trigger:
			timer.Stop()
			r.logger.Info("manual trigger received")
		case <-timer.Chan():
		}
	}
}

// RunCycle evaluates every configured district once, in parallel. Failures
// for one district never abort the others.
func (r *Runner) RunCycle(ctx context.Context) CycleResult {
	started := r.clock.Now()
	result := CycleResult{StartedAt: started.UTC()}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, district := range r.cfg.Districts {
		wg.Add(1)
		go func(district model.District) {
			defer wg.Done()

			outcome, err := r.evaluateDistrict(ctx, district)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, Failure{District: district, Err: err})
				r.metrics.EvaluationsTotal.WithLabelValues(string(district), "error").Inc()
				r.logger.Warn("district evaluation failed", "district", district, "error", err)
				return
			}
			result.Evaluations = append(result.Evaluations, *outcome)
			r.metrics.EvaluationsTotal.WithLabelValues(string(district), outcomeLabel(outcome)).Inc()
			if outcome.Alert != nil {
				r.metrics.AlertsTotal.WithLabelValues(string(outcome.Alert.Level)).Inc()
			}
			for _, attempt := range outcome.Attempts {
				label := "failure"
				if attempt.Success {
					label = "success"
				}
				r.metrics.DeliveriesTotal.WithLabelValues(attempt.Channel, label).Inc()
			}
		}(district)
	}
	wg.Wait()

	sort.Slice(result.Evaluations, func(i, j int) bool {
		return result.Evaluations[i].District < result.Evaluations[j].District
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].District < result.Failures[j].District
	})

	result.Duration = r.clock.Since(started)
	r.metrics.CyclesTotal.Inc()
	r.metrics.CycleDuration.Observe(result.Duration.Seconds())
	return result
}

func (r *Runner) evaluateDistrict(ctx context.Context, district model.District) (*engine.Outcome, error) {
	now := r.clock.Now().UTC()
	obs, err := r.provider.Observations(ctx, district, now.Add(-r.cfg.Lookback), now)
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("fetch observations: %w: no data for %s", model.ErrInsufficientHistory, district)
	}

	asOf := obs[len(obs)-1].Date
	return r.evaluator.Evaluate(ctx, district, obs, asOf)
}

func outcomeLabel(o *engine.Outcome) string {
	switch {
	case o.Notified:
		return "notified"
	case o.Suppressed:
		return "suppressed"
	case o.Alert != nil:
		return "recorded"
	default:
		return "quiet"
	}
}
