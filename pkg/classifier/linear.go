package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Linear scores windows with the artifact's softmax head: each window row is
// min-max scaled with the district's training-time constants, rows are mean-
// pooled over time, and the pooled vector goes through the per-class linear
// weights. All parameters are fixed at load time.
type Linear struct {
	artifact *Artifact
}

// NewLinear creates a classifier from a loaded artifact.
func NewLinear(artifact *Artifact) *Linear {
	return &Linear{artifact: artifact}
}

// NewLinearFromFile loads the artifact at path and wraps it.
func NewLinearFromFile(path string) (*Linear, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewLinear(a), nil
}

func (l *Linear) Name() string { return "linear" }

// SequenceLength returns the window length the artifact was trained with.
func (l *Linear) SequenceLength() int { return l.artifact.SequenceLength }

func (l *Linear) Classify(_ context.Context, window *model.SequenceWindow) (model.Probabilities, error) {
	var zero model.Probabilities

	if window.Len() != l.artifact.SequenceLength {
		return zero, fmt.Errorf("%w: window has %d days, model expects %d",
			model.ErrInferenceFailure, window.Len(), l.artifact.SequenceLength)
	}

	scaler, ok := l.artifact.Scaling[string(window.District())]
	if !ok {
		return zero, fmt.Errorf("%w: no scaling constants for district %s",
			model.ErrInferenceFailure, window.District())
	}

	// Scale each row, then mean-pool over time.
	var pooled [model.FeatureCount]float64
	vectors := window.Vectors()
	for _, v := range vectors {
		values := v.Values()
		for i := range values {
			span := scaler.Max[i] - scaler.Min[i]
			if span == 0 {
				continue // constant feature scales to 0
			}
			pooled[i] += (values[i] - scaler.Min[i]) / span
		}
	}
	for i := range pooled {
		pooled[i] /= float64(len(vectors))
	}

	// Softmax over class logits, max-subtracted for numerical stability.
	var logits [3]float64
	for c, level := range model.Levels {
		w := l.artifact.Weights[string(level)]
		z := w.Bias
		for i := range pooled {
			z += w.Coef[i] * pooled[i]
		}
		logits[c] = z
	}

	maxLogit := math.Max(logits[0], math.Max(logits[1], logits[2]))
	var probs model.Probabilities
	var sum float64
	for c := range logits {
		probs[c] = math.Exp(logits[c] - maxLogit)
		sum += probs[c]
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return zero, fmt.Errorf("%w: degenerate softmax normalizer %v", model.ErrInferenceFailure, sum)
	}
	for c := range probs {
		probs[c] /= sum
	}

	if err := probs.Validate(); err != nil {
		return zero, err
	}
	return probs, nil
}
