// Package scoring labels traffic batches with an isolation forest.
//
// Every call to Score retrains the model on the full batch. Without WithSeed
// the model is seeded from the clock, so labels can differ between runs on the
// same batch; pass a fixed seed when results must be reproducible.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hed1ad/secureflow/pkg/detectors"
	"github.com/hed1ad/secureflow/pkg/detectors/iforest"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

const (
	// DefaultContamination is the expected anomaly fraction.
	DefaultContamination = 0.05
	// DefaultTimeout bounds a single model fit.
	DefaultTimeout = 30 * time.Second
	// MinReliableSize is the batch size below which labels are low confidence.
	MinReliableSize = 10
)

// Engine fits an outlier model per batch and applies Normal/Threat labels.
type Engine struct {
	contamination float64
	trees         int
	sampleSize    int
	workers       int
	timeout       time.Duration
	seed          *int64
	newDetector   func(cfg detectors.Config, workers int) detectors.Detector
}

// Option configures an Engine.
type Option func(*Engine)

// WithContamination sets the expected anomaly fraction, in (0, 0.5].
func WithContamination(c float64) Option {
	return func(e *Engine) {
		e.contamination = c
	}
}

// WithSeed fixes the model's random seed.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.seed = &seed
	}
}

// WithTrees sets the ensemble size.
func WithTrees(n int) Option {
	return func(e *Engine) {
		e.trees = n
	}
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) Option {
	return func(e *Engine) {
		e.sampleSize = n
	}
}

// WithWorkers bounds concurrent tree building; zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithTimeout bounds model fitting. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithDetector replaces the isolation forest with another detector.
func WithDetector(factory func(cfg detectors.Config, workers int) detectors.Detector) Option {
	return func(e *Engine) {
		e.newDetector = factory
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	def := detectors.DefaultConfig()
	e := &Engine{
		contamination: DefaultContamination,
		trees:         def.Trees,
		sampleSize:    def.SampleSize,
		timeout:       DefaultTimeout,
		newDetector:   newIsolationForest,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func newIsolationForest(cfg detectors.Config, workers int) detectors.Detector {
	return iforest.New(
		iforest.WithTrees(cfg.Trees),
		iforest.WithSampleSize(cfg.SampleSize),
		iforest.WithContamination(cfg.Contamination),
		iforest.WithSeed(cfg.RandomSeed),
		iforest.WithWorkers(workers),
	)
}

// Contamination returns the configured anomaly fraction.
func (e *Engine) Contamination() float64 {
	return e.contamination
}

// Score fits the model on the scorable records of batch and labels them in
// place. Records missing a feature keep telemetry.LabelNone. The same batch
// is returned.
func (e *Engine) Score(ctx context.Context, batch *telemetry.Batch) (*telemetry.Batch, error) {
	if e.contamination <= 0 || e.contamination > 0.5 {
		return nil, fmt.Errorf("%w: contamination %.3f outside (0, 0.5]",
			telemetry.ErrInvalidConfiguration, e.contamination)
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: no batch", telemetry.ErrInsufficientFeatures)
	}

	packets, latencies := batch.FiniteCounts()
	if packets == 0 || latencies == 0 {
		return nil, fmt.Errorf("%w: packet_size has %d finite values, latency_ms has %d",
			telemetry.ErrInsufficientFeatures, packets, latencies)
	}

	var (
		data    [][]float64
		indices []int
	)
	for i, r := range batch.Records {
		if r.Scorable() {
			data = append(data, r.Features())
			indices = append(indices, i)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no record has both features", telemetry.ErrInsufficientFeatures)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	detector := e.newDetector(detectors.Config{
		Contamination: e.contamination,
		Trees:         e.trees,
		SampleSize:    e.sampleSize,
		RandomSeed:    e.seedValue(),
	}, e.workers)

	if err := detector.Fit(ctx, data); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: model fit on %d records: %v", telemetry.ErrScoringTimeout, len(data), err)
		}
		return nil, fmt.Errorf("fit model: %w", err)
	}

	scores, err := detector.Predict(data)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	threshold := detector.Threshold()
	for i := range batch.Records {
		batch.Records[i].Label = telemetry.LabelNone
		batch.Records[i].Score = 0
	}
	for j, idx := range indices {
		rec := &batch.Records[idx]
		rec.Score = scores[j]
		if scores[j] > threshold {
			rec.Label = telemetry.LabelThreat
		} else {
			rec.Label = telemetry.LabelNormal
		}
	}
	batch.Scored = true

	return batch, nil
}

func (e *Engine) seedValue() int64 {
	if e.seed != nil {
		return *e.seed
	}
	return rand.Int63()
}

// LowConfidence reports whether batch is too small for stable labels.
func LowConfidence(batch *telemetry.Batch) bool {
	n := 0
	for _, r := range batch.Records {
		if r.Scorable() {
			n++
		}
	}
	return n < MinReliableSize
}
