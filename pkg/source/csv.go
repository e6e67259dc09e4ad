package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

// csvColumns is the expected header of an observations file. The layout
// matches the historical flood dataset: extra columns after the first six
// are ignored.
var csvColumns = []string{"date", "city", "latitude", "longitude", "water_level_m", "precipitation_mm"}

// CSV serves observations from a flood-data CSV loaded fully into memory.
// Records are immutable once loaded, so reads need no locking.
type CSV struct {
	byDistrict map[model.District][]model.Observation
}

// LoadCSV reads an observations file into an in-memory provider.
func LoadCSV(path string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observations file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read observations header: %w", err)
	}
	if len(header) < len(csvColumns) {
		return nil, fmt.Errorf("observations file has %d columns, want at least %d", len(header), len(csvColumns))
	}
	for i, want := range csvColumns {
		if header[i] != want {
			return nil, fmt.Errorf("observations column %d is %q, want %q", i, header[i], want)
		}
	}

	p := &CSV{byDistrict: make(map[model.District][]model.Observation)}
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read observations line %d: %w", line+1, err)
		}
		line++

		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q: %w", line, record[0], err)
		}
		wl, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad water level %q: %w", line, record[4], err)
		}
		pr, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad precipitation %q: %w", line, record[5], err)
		}

		district := model.District(record[1])
		p.byDistrict[district] = append(p.byDistrict[district], model.Observation{
			District:        district,
			Date:            model.DayKey(date),
			WaterLevelM:     wl,
			PrecipitationMM: pr,
		})
	}

	for district := range p.byDistrict {
		obs := p.byDistrict[district]
		sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	}

	return p, nil
}

func (p *CSV) Observations(_ context.Context, district model.District, from, to time.Time) ([]model.Observation, error) {
	all, ok := p.byDistrict[district]
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

func (p *CSV) Districts(_ context.Context) ([]model.District, error) {
	districts := make([]model.District, 0, len(p.byDistrict))
	for d := range p.byDistrict {
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i] < districts[j] })
	return districts, nil
}
