// Package features derives model input features from raw daily observations
// and assembles them into fixed-length sequence windows.
//
// Feature computation is deterministic and shared between training-time and
// inference-time paths: the rolling, lag, and delta features always use the
// same warm-up policy, so the two sides can never drift apart.
package features

import (
	"fmt"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

const (
	// rollingDays is the rolling-average span for water level and precipitation.
	rollingDays = 3

	// warmupDays is the number of leading observations consumed before the
	// first feature vector is defined: the 3-day rolling mean needs two prior
	// days, which also covers the 1-day lag and delta terms.
	warmupDays = rollingDays - 1

	// MinHistory is the smallest observation count that yields any features.
	MinHistory = warmupDays + 1
)

// monsoon months in Kerala run June through September.
func isMonsoon(m time.Month) bool {
	return m >= time.June && m <= time.September
}

// Compute derives one FeatureVector per observation day, dropping the first
// warmupDays days where rolling and lag terms are undefined. The input must
// be a single district's observations in chronological order with no gaps.
//
// Returns ErrInsufficientHistory when fewer than MinHistory observations
// exist, and a plain error on unordered or gapped input.
func Compute(obs []model.Observation) ([]model.FeatureVector, error) {
	if len(obs) < MinHistory {
		return nil, fmt.Errorf("%w: have %d observations, need at least %d",
			model.ErrInsufficientHistory, len(obs), MinHistory)
	}

	district := obs[0].District
	for i := 1; i < len(obs); i++ {
		if obs[i].District != district {
			return nil, fmt.Errorf("mixed districts in observation series: %s and %s",
				district, obs[i].District)
		}
		gap := model.DayKey(obs[i].Date).Sub(model.DayKey(obs[i-1].Date))
		if gap != 24*time.Hour {
			return nil, fmt.Errorf("observations for %s not daily-consecutive at %s",
				district, obs[i].Date.Format("2006-01-02"))
		}
	}

	vectors := make([]model.FeatureVector, 0, len(obs)-warmupDays)
	for i := warmupDays; i < len(obs); i++ {
		cur, prev := obs[i], obs[i-1]
		date := model.DayKey(cur.Date)

		var wlSum, prSum float64
		for j := i - rollingDays + 1; j <= i; j++ {
			wlSum += obs[j].WaterLevelM
			prSum += obs[j].PrecipitationMM
		}

		monsoon := 0.0
		if isMonsoon(date.Month()) {
			monsoon = 1.0
		}

		vectors = append(vectors, model.FeatureVector{
			District:      district,
			Date:          date,
			WaterLevel:    cur.WaterLevelM,
			Precipitation: cur.PrecipitationMM,
			DayOfYear:     float64(date.YearDay()),
			Month:         float64(date.Month()),
			IsMonsoon:     monsoon,
			WaterLevelMA3: wlSum / rollingDays,
			PrecipMA3:     prSum / rollingDays,
			WaterLevelLag: prev.WaterLevelM,
			PrecipLag:     prev.PrecipitationMM,
			WaterLevelChg: cur.WaterLevelM - prev.WaterLevelM,
			PrecipChg:     cur.PrecipitationMM - prev.PrecipitationMM,
		})
	}

	return vectors, nil
}

// BuildWindow returns the trailing n-day window of feature vectors ending at
// asOf. Fails with ErrIncompleteWindow when the series is shorter than n,
// asOf is absent, or any day inside the window is missing. The returned
// window is an immutable snapshot.
func BuildWindow(vectors []model.FeatureVector, district model.District, asOf time.Time, n int) (*model.SequenceWindow, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", n)
	}

	asOf = model.DayKey(asOf)
	end := -1
	for i := len(vectors) - 1; i >= 0; i-- {
		if model.DayKey(vectors[i].Date).Equal(asOf) {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: no features for %s on %s",
			model.ErrIncompleteWindow, district, asOf.Format("2006-01-02"))
	}
	if end+1 < n {
		return nil, fmt.Errorf("%w: %s has %d feature days before %s, need %d",
			model.ErrIncompleteWindow, district, end+1, asOf.Format("2006-01-02"), n)
	}

	window := vectors[end+1-n : end+1]
	for i := 1; i < len(window); i++ {
		gap := model.DayKey(window[i].Date).Sub(model.DayKey(window[i-1].Date))
		if gap != 24*time.Hour {
			return nil, fmt.Errorf("%w: %s missing day before %s",
				model.ErrIncompleteWindow, district, window[i].Date.Format("2006-01-02"))
		}
		if window[i].District != district {
			return nil, fmt.Errorf("%w: window mixes districts %s and %s",
				model.ErrIncompleteWindow, district, window[i].District)
		}
	}

	return model.NewSequenceWindow(district, asOf, window), nil
}
