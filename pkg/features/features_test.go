package features_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keralanet/floodwatch/pkg/features"
	"github.com/keralanet/floodwatch/pkg/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series(district model.District, start time.Time, levels, precip []float64) []model.Observation {
	obs := make([]model.Observation, len(levels))
	for i := range levels {
		obs[i] = model.Observation{
			District:        district,
			Date:            start.AddDate(0, 0, i),
			WaterLevelM:     levels[i],
			PrecipitationMM: precip[i],
		}
	}
	return obs
}

func TestCompute_Values(t *testing.T) {
	obs := series("Ernakulam", day(2025, time.July, 1),
		[]float64{2.0, 3.0, 4.0, 6.0},
		[]float64{10, 20, 30, 90},
	)

	vectors, err := features.Compute(obs)
	require.NoError(t, err)
	require.Len(t, vectors, 2) // first two days are warm-up

	first := vectors[0] // July 3
	assert.Equal(t, day(2025, time.July, 3), first.Date)
	assert.InDelta(t, 4.0, first.WaterLevel, 1e-9)
	assert.InDelta(t, 30.0, first.Precipitation, 1e-9)
	assert.InDelta(t, 184, first.DayOfYear, 1e-9)
	assert.InDelta(t, 7, first.Month, 1e-9)
	assert.InDelta(t, 1.0, first.IsMonsoon, 1e-9)
	assert.InDelta(t, 3.0, first.WaterLevelMA3, 1e-9)  // (2+3+4)/3
	assert.InDelta(t, 20.0, first.PrecipMA3, 1e-9)     // (10+20+30)/3
	assert.InDelta(t, 3.0, first.WaterLevelLag, 1e-9)
	assert.InDelta(t, 20.0, first.PrecipLag, 1e-9)
	assert.InDelta(t, 1.0, first.WaterLevelChg, 1e-9)
	assert.InDelta(t, 10.0, first.PrecipChg, 1e-9)

	second := vectors[1] // July 4
	assert.InDelta(t, 13.0/3.0, second.WaterLevelMA3, 1e-9)
	assert.InDelta(t, 2.0, second.WaterLevelChg, 1e-9)
	assert.InDelta(t, 60.0, second.PrecipChg, 1e-9)
}

func TestCompute_MonsoonFlag(t *testing.T) {
	obs := series("Kollam", day(2025, time.January, 10),
		[]float64{2, 2, 2}, []float64{5, 5, 5})
	vectors, err := features.Compute(obs)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, vectors[0].IsMonsoon, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	obs := series("Idukki", day(2025, time.June, 1),
		[]float64{3.1, 4.2, 5.3, 6.4, 7.5},
		[]float64{100, 120, 140, 160, 180},
	)

	a, err := features.Compute(obs)
	require.NoError(t, err)
	b, err := features.Compute(obs)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCompute_InsufficientHistory(t *testing.T) {
	obs := series("Thrissur", day(2025, time.June, 1),
		[]float64{3, 4}, []float64{10, 20})
	_, err := features.Compute(obs)
	assert.ErrorIs(t, err, model.ErrInsufficientHistory)
}

func TestCompute_RejectsGaps(t *testing.T) {
	obs := series("Thrissur", day(2025, time.June, 1),
		[]float64{3, 4, 5}, []float64{10, 20, 30})
	obs[2].Date = obs[2].Date.AddDate(0, 0, 3) // introduce a gap

	_, err := features.Compute(obs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not daily-consecutive")
}

func TestCompute_RejectsMixedDistricts(t *testing.T) {
	obs := series("Thrissur", day(2025, time.June, 1),
		[]float64{3, 4, 5}, []float64{10, 20, 30})
	obs[1].District = "Palakkad"

	_, err := features.Compute(obs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed districts")
}

func TestBuildWindow(t *testing.T) {
	obs := series("Wayanad", day(2025, time.August, 1),
		[]float64{2, 2, 3, 4, 5, 6, 7, 8, 7, 6, 5, 4},
		[]float64{50, 50, 60, 70, 80, 90, 100, 110, 100, 90, 80, 70},
	)
	vectors, err := features.Compute(obs)
	require.NoError(t, err)

	w, err := features.BuildWindow(vectors, "Wayanad", day(2025, time.August, 12), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, w.Len())
	assert.Equal(t, model.District("Wayanad"), w.District())
	assert.Equal(t, day(2025, time.August, 12), w.AsOf())
	assert.Equal(t, day(2025, time.August, 6), w.Vectors()[0].Date)
	assert.Equal(t, day(2025, time.August, 12), w.Vectors()[6].Date)
}

func TestBuildWindow_ShortSeries(t *testing.T) {
	obs := series("Wayanad", day(2025, time.August, 1),
		[]float64{2, 2, 3, 4}, []float64{50, 50, 60, 70})
	vectors, err := features.Compute(obs)
	require.NoError(t, err)

	_, err = features.BuildWindow(vectors, "Wayanad", day(2025, time.August, 4), 7)
	assert.ErrorIs(t, err, model.ErrIncompleteWindow)
}

func TestBuildWindow_MissingAsOfDay(t *testing.T) {
	obs := series("Wayanad", day(2025, time.August, 1),
		[]float64{2, 2, 3, 4, 5, 6, 7, 8, 9}, make([]float64, 9))
	vectors, err := features.Compute(obs)
	require.NoError(t, err)

	_, err = features.BuildWindow(vectors, "Wayanad", day(2025, time.August, 20), 7)
	assert.ErrorIs(t, err, model.ErrIncompleteWindow)
}

func TestBuildWindow_GapInsideWindow(t *testing.T) {
	obs := series("Kannur", day(2025, time.August, 1),
		[]float64{2, 2, 3, 4, 5, 6, 7, 8, 9, 8}, make([]float64, 10))
	vectors, err := features.Compute(obs)
	require.NoError(t, err)

	// Remove a mid-window day from the derived series.
	gapped := append(append([]model.FeatureVector{}, vectors[:3]...), vectors[4:]...)

	_, err = features.BuildWindow(gapped, "Kannur", day(2025, time.August, 10), 7)
	assert.ErrorIs(t, err, model.ErrIncompleteWindow)
}
