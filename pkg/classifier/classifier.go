// Package classifier turns sequence windows into probability distributions
// over flood alert levels.
//
// The production path loads a model artifact exported from training: fixed
// per-district feature scaling constants and a softmax head over the
// time-pooled window. The artifact is loaded once at startup and read-only
// afterwards, so a single classifier is safe for concurrent use across all
// district evaluations.
package classifier

import (
	"context"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Classifier produces a probability distribution over {Yellow, Orange, Red}
// for one sequence window. Implementations are stateless per call.
type Classifier interface {
	// Name returns the classifier identifier.
	Name() string

	// Classify scores a window. The returned distribution sums to 1 with no
	// negative entries; degenerate outputs are surfaced as
	// model.ErrInferenceFailure, never coerced to a default class.
	Classify(ctx context.Context, window *model.SequenceWindow) (model.Probabilities, error)
}
