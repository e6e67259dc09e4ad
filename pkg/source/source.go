// Package source supplies raw daily observations to the monitoring pipeline.
//
// Providers return a district's observations in chronological order. The
// pipeline treats gaps in the series as a hard error downstream; providers
// never repair or interpolate missing days.
package source

import (
	"context"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Provider is the input collaborator feeding the pipeline.
type Provider interface {
	// Observations returns the district's readings in the inclusive date
	// range, ordered by date ascending.
	Observations(ctx context.Context, district model.District, from, to time.Time) ([]model.Observation, error)

	// Districts lists the districts the provider has data for.
	Districts(ctx context.Context) ([]model.District, error)
}
