// Package io provides input/output utilities for data ingestion.
package io

import "github.com/hed1ad/secureflow/pkg/telemetry"

// TableReader reads raw tabular traffic data from a source.
type TableReader interface {
	// ReadTable returns the complete dataset as raw cells.
	ReadTable() (*telemetry.Table, error)

	// Close releases resources.
	Close() error
}

// BatchWriter exports scored batches.
type BatchWriter interface {
	// WriteBatch outputs every record of the batch.
	WriteBatch(batch *telemetry.Batch) error

	// Close releases resources.
	Close() error
}
