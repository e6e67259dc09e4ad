package classifier

import (
	"context"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Heuristic is the demo fallback classifier. It applies the operational rule
// base to the most recent day of the window: Red when water level reaches 7m
// or precipitation reaches 200mm, Orange when both 5m and 150mm are reached,
// Yellow otherwise. Substituting it for the trained model is the caller's
// decision; the pipeline core itself requires an artifact.
type Heuristic struct{}

// Rule thresholds match the alert flagging used to label the training data.
const (
	redWaterLevelM        = 7.0
	redPrecipitationMM    = 200.0
	orangeWaterLevelM     = 5.0
	orangePrecipitationMM = 150.0
)

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) Classify(_ context.Context, window *model.SequenceWindow) (model.Probabilities, error) {
	var zero model.Probabilities
	if window.Len() == 0 {
		return zero, model.ErrIncompleteWindow
	}

	latest := window.Vectors()[window.Len()-1]
	wl, pr := latest.WaterLevel, latest.Precipitation

	switch {
	case wl >= redWaterLevelM || pr >= redPrecipitationMM:
		return model.Probabilities{0.05, 0.10, 0.85}, nil
	case wl >= orangeWaterLevelM && pr >= orangePrecipitationMM:
		return model.Probabilities{0.15, 0.70, 0.15}, nil
	default:
		return model.Probabilities{0.75, 0.18, 0.07}, nil
	}
}
