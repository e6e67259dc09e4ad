package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/keralanet/floodwatch/pkg/model"
)

// Artifact is the on-disk model description: scaling constants captured at
// training time plus the per-class softmax weights. Absence or invalidity of
// the artifact is a fatal startup condition for the pipeline core.
type Artifact struct {
	Version        int                     `yaml:"version"`
	SequenceLength int                     `yaml:"sequence_length"`
	Features       []string                `yaml:"features"`
	Scaling        map[string]Scaler       `yaml:"scaling"`
	Weights        map[string]ClassWeights `yaml:"weights"`
}

// Scaler holds per-feature min-max bounds fitted on one district's training data.
type Scaler struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

// ClassWeights is one class's linear head over the pooled feature vector.
type ClassWeights struct {
	Bias float64   `yaml:"bias"`
	Coef []float64 `yaml:"coef"`
}

// LoadArtifact reads and validates a YAML model artifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w", path, err)
	}

	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	if a.SequenceLength <= 0 {
		return fmt.Errorf("sequence_length must be positive, got %d", a.SequenceLength)
	}
	if len(a.Features) != model.FeatureCount {
		return fmt.Errorf("expected %d features, got %d", model.FeatureCount, len(a.Features))
	}
	for i, name := range a.Features {
		if name != model.FeatureNames[i] {
			return fmt.Errorf("feature order mismatch at %d: artifact has %q, runtime expects %q",
				i, name, model.FeatureNames[i])
		}
	}
	if len(a.Scaling) == 0 {
		return fmt.Errorf("no district scalers defined")
	}
	for district, s := range a.Scaling {
		if len(s.Min) != model.FeatureCount || len(s.Max) != model.FeatureCount {
			return fmt.Errorf("scaler for %s has wrong width", district)
		}
	}
	for _, level := range model.Levels {
		w, ok := a.Weights[string(level)]
		if !ok {
			return fmt.Errorf("missing weights for class %s", level)
		}
		if len(w.Coef) != model.FeatureCount {
			return fmt.Errorf("weights for %s have %d coefficients, want %d",
				level, len(w.Coef), model.FeatureCount)
		}
	}
	return nil
}
