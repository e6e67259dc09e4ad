package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

// levelRange is a district's typical water-level band in meters.
type levelRange struct {
	lo, hi float64
}

// defaultLevelRanges mirror the bands observed in the historical dataset.
var defaultLevelRanges = map[model.District]levelRange{
	"Thiruvananthapuram": {2.5, 6},
	"Kollam":             {3, 7},
	"Alappuzha":          {2, 6.5},
	"Kottayam":           {2, 7.5},
	"Ernakulam":          {2, 8},
	"Thrissur":           {2, 8},
	"Palakkad":           {1.5, 6},
	"Malappuram":         {2.5, 8.5},
	"Kozhikode":          {2.5, 8},
	"Wayanad":            {3, 7},
	"Kannur":             {2.5, 7.5},
	"Kasaragod":          {2.3, 7},
	"Pathanamthitta":     {2, 7},
	"Idukki":             {2.5, 9},
}

// Precipitation is gaussian around a monsoon-dependent mean, floored at zero.
const (
	monsoonMeanPrecipMM   = 180.0
	drySeasonMeanPrecipMM = 120.0
	precipStddevMM        = 40.0
)

// Synthetic generates plausible daily observations for demos and tests.
// A fixed seed makes generation fully deterministic.
type Synthetic struct {
	byDistrict map[model.District][]model.Observation
}

// NewSynthetic generates observations for every district in coords over the
// inclusive date range, using the given seed.
func NewSynthetic(coords map[model.District]model.Coordinates, from, to time.Time, seed int64) *Synthetic {
	rng := rand.New(rand.NewSource(seed))

	districts := make([]model.District, 0, len(coords))
	for d := range coords {
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i] < districts[j] })

	s := &Synthetic{byDistrict: make(map[model.District][]model.Observation, len(districts))}
	for day := model.DayKey(from); !day.After(model.DayKey(to)); day = day.AddDate(0, 0, 1) {
		mean := drySeasonMeanPrecipMM
		if m := day.Month(); m >= time.June && m <= time.August {
			mean = monsoonMeanPrecipMM
		}
		for _, district := range districts {
			band, ok := defaultLevelRanges[district]
			if !ok {
				band = levelRange{2, 8}
			}
			wl := band.lo + rng.Float64()*(band.hi-band.lo)
			pr := rng.NormFloat64()*precipStddevMM + mean
			if pr < 0 {
				pr = 0
			}
			s.byDistrict[district] = append(s.byDistrict[district], model.Observation{
				District:        district,
				Date:            day,
				WaterLevelM:     round2(wl),
				PrecipitationMM: round2(pr),
			})
		}
	}
	return s
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func (s *Synthetic) Observations(_ context.Context, district model.District, from, to time.Time) ([]model.Observation, error) {
	all, ok := s.byDistrict[district]
	if !ok {
		return nil, fmt.Errorf("no observations for district %s", district)
	}

	from, to = model.DayKey(from), model.DayKey(to)
	var out []model.Observation
	for _, o := range all {
		if o.Date.Before(from) || o.Date.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Synthetic) Districts(_ context.Context) ([]model.District, error) {
	districts := make([]model.District, 0, len(s.byDistrict))
	for d := range s.byDistrict {
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i] < districts[j] })
	return districts, nil
}

// WriteCSV dumps the generated data in the flood-data CSV layout, including
// the rule-based alert flag column used to label training data.
func (s *Synthetic) WriteCSV(w io.Writer, coords map[model.District]model.Coordinates) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "city", "latitude", "longitude", "water_level_m", "precipitation_mm", "flood_alert_flag"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	districts, _ := s.Districts(context.Background())
	if len(districts) == 0 {
		cw.Flush()
		return cw.Error()
	}

	for i := range s.byDistrict[districts[0]] {
		for _, district := range districts {
			o := s.byDistrict[district][i]
			c := coords[district]
			if err := cw.Write([]string{
				o.Date.Format("2006-01-02"),
				string(district),
				strconv.FormatFloat(c.Latitude, 'f', 4, 64),
				strconv.FormatFloat(c.Longitude, 'f', 4, 64),
				strconv.FormatFloat(o.WaterLevelM, 'f', 2, 64),
				strconv.FormatFloat(o.PrecipitationMM, 'f', 2, 64),
				string(ruleFlag(o.WaterLevelM, o.PrecipitationMM)),
			}); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ruleFlag labels a day with the operational alert rule:
// Red when wl>=7 or pr>=200, Orange when wl>=5 and pr>=150, else Yellow.
func ruleFlag(wl, pr float64) model.AlertLevel {
	switch {
	case wl >= 7 || pr >= 200:
		return model.LevelRed
	case wl >= 5 && pr >= 150:
		return model.LevelOrange
	default:
		return model.LevelYellow
	}
}
