// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

import "context"

// Detector is the common interface for batch anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on a batch.
	// data is a 2D slice where each row is a sample and each column is a feature.
	// Fit returns ctx.Err() if the context ends before training completes.
	Fit(ctx context.Context, data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// Threshold returns the score above which a sample is anomalous.
	Threshold() float64
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// Trees is the ensemble size.
	Trees int
	// SampleSize is the subsample drawn for each tree.
	SampleSize int
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.05,
		Trees:         100,
		SampleSize:    256,
		RandomSeed:    42,
	}
}
