package model

import (
	"fmt"
	"math"
	"time"
)

// District identifies one of the monitored geographic regions.
type District string

// AlertLevel is the flood risk severity, ordered Yellow < Orange < Red.
type AlertLevel string

const (
	LevelYellow AlertLevel = "Yellow" // Low risk
	LevelOrange AlertLevel = "Orange" // Medium risk
	LevelRed    AlertLevel = "Red"    // High risk
)

// Levels lists all alert levels in ascending severity order.
// This is also the probability vector order used by classifiers.
var Levels = [3]AlertLevel{LevelYellow, LevelOrange, LevelRed}

// Severity returns the numeric rank of a level (Yellow=0, Orange=1, Red=2).
// Unknown levels rank below Yellow.
func (l AlertLevel) Severity() int {
	switch l {
	case LevelYellow:
		return 0
	case LevelOrange:
		return 1
	case LevelRed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether l is one of the three known levels.
func (l AlertLevel) Valid() bool {
	return l.Severity() >= 0
}

// ParseAlertLevel converts a string into an AlertLevel.
func ParseAlertLevel(s string) (AlertLevel, error) {
	l := AlertLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown alert level %q", s)
	}
	return l, nil
}

// Observation is a single daily reading for one district.
// Observations are immutable once recorded.
type Observation struct {
	District        District  `json:"district"`
	Date            time.Time `json:"date"`
	WaterLevelM     float64   `json:"water_level_m"`
	PrecipitationMM float64   `json:"precipitation_mm"`
}

// FeatureCount is the fixed width of a FeatureVector.
const FeatureCount = 11

// FeatureNames lists the feature columns in their fixed order. Training and
// inference must use this exact order; any mismatch silently degrades
// predictions.
var FeatureNames = [FeatureCount]string{
	"water_level_m", "precipitation_mm", "day_of_year", "month",
	"is_monsoon", "water_level_ma3", "precipitation_ma3",
	"water_level_lag1", "precipitation_lag1",
	"water_level_change", "precipitation_change",
}

// FeatureVector holds the derived features for one district-day.
type FeatureVector struct {
	District District  `json:"district"`
	Date     time.Time `json:"date"`

	WaterLevel    float64 `json:"water_level_m"`
	Precipitation float64 `json:"precipitation_mm"`
	DayOfYear     float64 `json:"day_of_year"`
	Month         float64 `json:"month"`
	IsMonsoon     float64 `json:"is_monsoon"`
	WaterLevelMA3 float64 `json:"water_level_ma3"`
	PrecipMA3     float64 `json:"precipitation_ma3"`
	WaterLevelLag float64 `json:"water_level_lag1"`
	PrecipLag     float64 `json:"precipitation_lag1"`
	WaterLevelChg float64 `json:"water_level_change"`
	PrecipChg     float64 `json:"precipitation_change"`
}

// Values returns the feature values in the fixed FeatureNames order.
func (f FeatureVector) Values() [FeatureCount]float64 {
	return [FeatureCount]float64{
		f.WaterLevel, f.Precipitation, f.DayOfYear, f.Month,
		f.IsMonsoon, f.WaterLevelMA3, f.PrecipMA3,
		f.WaterLevelLag, f.PrecipLag,
		f.WaterLevelChg, f.PrecipChg,
	}
}

// SequenceWindow is an immutable trailing sequence of exactly N consecutive
// daily feature vectors for one district, ready for classification.
type SequenceWindow struct {
	district District
	asOf     time.Time
	vectors  []FeatureVector
}

// NewSequenceWindow copies vectors into an immutable window. Callers are
// expected to have validated length and continuity (see features.BuildWindow).
func NewSequenceWindow(district District, asOf time.Time, vectors []FeatureVector) *SequenceWindow {
	vs := make([]FeatureVector, len(vectors))
	copy(vs, vectors)
	return &SequenceWindow{district: district, asOf: asOf, vectors: vs}
}

func (w *SequenceWindow) District() District { return w.district }
func (w *SequenceWindow) AsOf() time.Time    { return w.asOf }
func (w *SequenceWindow) Len() int           { return len(w.vectors) }

// Vectors returns a copy of the window's feature vectors.
func (w *SequenceWindow) Vectors() []FeatureVector {
	vs := make([]FeatureVector, len(w.vectors))
	copy(vs, w.vectors)
	return vs
}

// probSumTolerance is the allowed deviation of a probability vector's sum from 1.
const probSumTolerance = 1e-6

// tieTolerance is the near-tie band for argmax. Within this band the
// higher-severity class wins, biasing classification toward caution.
const tieTolerance = 0.01

// Probabilities is a distribution over alert levels in Levels order.
type Probabilities [3]float64

// Get returns the probability mass assigned to a level.
func (p Probabilities) Get(l AlertLevel) float64 {
	if s := l.Severity(); s >= 0 {
		return p[s]
	}
	return 0
}

// Sum returns the total probability mass.
func (p Probabilities) Sum() float64 {
	return p[0] + p[1] + p[2]
}

// Validate rejects degenerate distributions: NaN or infinite entries,
// negative entries, or a sum outside 1 ± 1e-6.
func (p Probabilities) Validate() error {
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite probability %v for %s", ErrInferenceFailure, v, Levels[i])
		}
		if v < 0 {
			return fmt.Errorf("%w: negative probability %v for %s", ErrInferenceFailure, v, Levels[i])
		}
	}
	if sum := p.Sum(); math.Abs(sum-1) > probSumTolerance {
		return fmt.Errorf("%w: probabilities sum to %v", ErrInferenceFailure, sum)
	}
	return nil
}

// Top returns the predicted level and its confidence. When a class is within
// tieTolerance of the maximum, the higher-severity class is preferred, so
// [0.34, 0.33, 0.33] resolves to Red rather than Yellow.
func (p Probabilities) Top() (AlertLevel, float64) {
	max := p[0]
	for _, v := range p[1:] {
		if v > max {
			max = v
		}
	}
	for i := len(p) - 1; i >= 0; i-- {
		if max-p[i] <= tieTolerance {
			return Levels[i], p[i]
		}
	}
	return LevelYellow, p[0] // unreachable: max is always within tolerance of itself
}

// Prediction is the classifier output for one district window.
// Predictions are read-only once produced.
type Prediction struct {
	District       District      `json:"district"`
	AsOfDate       time.Time     `json:"as_of_date"`
	PredictedAlert AlertLevel    `json:"predicted_alert"`
	Confidence     float64       `json:"confidence"`
	Probabilities  Probabilities `json:"probabilities"`
}

// NewPrediction derives a Prediction from a validated probability vector.
func NewPrediction(district District, asOf time.Time, probs Probabilities) (*Prediction, error) {
	if err := probs.Validate(); err != nil {
		return nil, err
	}
	level, confidence := probs.Top()
	return &Prediction{
		District:       district,
		AsOfDate:       asOf,
		PredictedAlert: level,
		Confidence:     confidence,
		Probabilities:  probs,
	}, nil
}

// Alert is a persisted, actionable flood warning for a district. Alerts are
// never deleted; a newer alert for the same district supersedes older ones.
type Alert struct {
	ID         string     `json:"id" db:"id"`
	District   District   `json:"district" db:"district"`
	Level      AlertLevel `json:"alert_level" db:"alert_level"`
	Confidence float64    `json:"confidence" db:"confidence"`
	Latitude   float64    `json:"latitude" db:"latitude"`
	Longitude  float64    `json:"longitude" db:"longitude"`
	AsOfDate   time.Time  `json:"as_of_date" db:"as_of_date"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	Notified   bool       `json:"notified" db:"notified"`

	Attempts []DeliveryAttempt `json:"attempts,omitempty"`
}

// DeliveryAttempt records one notification delivery try on one channel.
// Attempts are appended, never retried within the same monitoring cycle.
type DeliveryAttempt struct {
	ID          string    `json:"id" db:"id"`
	AlertID     string    `json:"alert_id" db:"alert_id"`
	Channel     string    `json:"channel" db:"channel"`
	Success     bool      `json:"success" db:"success"`
	Error       string    `json:"error,omitempty" db:"error"`
	AttemptedAt time.Time `json:"attempted_at" db:"attempted_at"`
}

// Coordinates is a district's geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
}

// DayKey truncates a time to its calendar day in UTC. Observations and
// alerts are keyed at day precision.
func DayKey(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
