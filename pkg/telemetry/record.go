// Package telemetry defines the traffic records, batches and alert entries
// that flow through the anomaly detection pipeline.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Column names of the external tabular input.
const (
	ColumnTimestamp      = "timestamp"
	ColumnPacketSize     = "packet_size"
	ColumnLatencyMs      = "latency_ms"
	ColumnRequestsPerSec = "requests_per_sec"
)

// Label is the scoring verdict of a record.
type Label int

const (
	// LabelNone marks a record that has not been scored.
	LabelNone Label = iota
	LabelNormal
	LabelThreat
)

// String returns the display name of the label.
func (l Label) String() string {
	switch l {
	case LabelNormal:
		return "Normal"
	case LabelThreat:
		return "Threat"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(text []byte) error {
	switch string(text) {
	case "":
		*l = LabelNone
	case "Normal":
		*l = LabelNormal
	case "Threat":
		*l = LabelThreat
	default:
		return fmt.Errorf("unknown label %q", text)
	}
	return nil
}

// TrafficRecord is one traffic observation. Missing numeric values are NaN.
//
// Label and Score are written by the scoring engine only.
type TrafficRecord struct {
	Timestamp      time.Time
	PacketSize     float64
	LatencyMs      float64
	RequestsPerSec float64
	Label          Label
	Score          float64
}

// Scorable reports whether both scoring features are finite.
func (r TrafficRecord) Scorable() bool {
	return isFinite(r.PacketSize) && isFinite(r.LatencyMs)
}

// Features returns the scoring feature vector (packet_size, latency_ms).
func (r TrafficRecord) Features() []float64 {
	return []float64{r.PacketSize, r.LatencyMs}
}

type recordJSON struct {
	Timestamp      time.Time `json:"timestamp"`
	PacketSize     *float64  `json:"packet_size"`
	LatencyMs      *float64  `json:"latency_ms"`
	RequestsPerSec *float64  `json:"requests_per_sec,omitempty"`
	Label          string    `json:"label,omitempty"`
	Score          *float64  `json:"score,omitempty"`
}

// MarshalJSON encodes missing values as null.
func (r TrafficRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Timestamp:      r.Timestamp,
		PacketSize:     finitePtr(r.PacketSize),
		LatencyMs:      finitePtr(r.LatencyMs),
		RequestsPerSec: finitePtr(r.RequestsPerSec),
		Label:          r.Label.String(),
	}
	if r.Label != LabelNone {
		out.Score = finitePtr(r.Score)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null or absent numeric values as NaN.
func (r *TrafficRecord) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var label Label
	if err := label.UnmarshalText([]byte(in.Label)); err != nil {
		return err
	}

	*r = TrafficRecord{
		Timestamp:      in.Timestamp,
		PacketSize:     valueOrNaN(in.PacketSize),
		LatencyMs:      valueOrNaN(in.LatencyMs),
		RequestsPerSec: valueOrNaN(in.RequestsPerSec),
		Label:          label,
	}
	if in.Score != nil {
		r.Score = *in.Score
	}
	return nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func finitePtr(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
