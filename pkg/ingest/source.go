// Package ingest validates and normalizes traffic input before scoring.
package ingest

import (
	"fmt"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// Source selects the data a session scores.
type Source interface {
	isSource()
}

// Synthetic selects the session's cached synthetic batch.
type Synthetic struct{}

// External carries externally supplied rows.
type External struct {
	Table *telemetry.Table
}

// Stream reads its rows when the gate asks for them. A Read error is
// reported as a Rejected outcome like any other malformed input.
type Stream struct {
	Read func() (*telemetry.Table, error)
}

func (Synthetic) isSource() {}
func (External) isSource()  {}
func (Stream) isSource()    {}

// OutcomeKind classifies an ingestion result.
type OutcomeKind int

const (
	// Accepted means the requested data is active.
	Accepted OutcomeKind = iota
	// AcceptedWithFallback means the fallback batch replaced invalid input.
	AcceptedWithFallback
	// Rejected means the input was malformed and nothing is active.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case AcceptedWithFallback:
		return "accepted_with_fallback"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	for _, kind := range []OutcomeKind{Accepted, AcceptedWithFallback, Rejected} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Outcome describes what the gate did with a source.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
	// Cause is the error kind behind a fallback or rejection.
	Cause error `json:"-"`
	// TimestampsSynthesized is set when the timestamp column was missing or
	// unparsable and per-minute timestamps were assigned instead.
	TimestampsSynthesized bool `json:"timestamps_synthesized,omitempty"`
}

// Notify reports whether the outcome must be surfaced to the user.
func (o Outcome) Notify() bool {
	return o.Kind != Accepted
}
