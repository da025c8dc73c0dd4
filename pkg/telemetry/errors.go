package telemetry

import "errors"

// Error kinds shared by the generator, ingestion gate and scoring engine.
var (
	// ErrInvalidConfiguration reports bad generator or engine parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSchemaMismatch reports a required column missing from external input.
	// The ingestion gate recovers from it by substituting the fallback batch.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrParse reports malformed raw input.
	ErrParse = errors.New("parse error")

	// ErrInsufficientFeatures reports a batch that has no finite value in a
	// required feature column.
	ErrInsufficientFeatures = errors.New("insufficient features")

	// ErrScoringTimeout reports a model fit that exceeded its time budget.
	ErrScoringTimeout = errors.New("scoring timeout")
)
