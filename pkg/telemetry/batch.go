package telemetry

import (
	"math"
	"time"
)

// SourceKind identifies where a batch came from.
type SourceKind string

const (
	SourceSynthetic SourceKind = "synthetic"
	SourceExternal  SourceKind = "external"
)

// Batch is an ordered set of records processed by a single scoring run.
type Batch struct {
	Records   []TrafficRecord `json:"records"`
	Source    SourceKind      `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	// Scored is set once the scoring engine has labeled the batch.
	Scored bool `json:"scored"`
}

// Len returns the number of records.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// Threats returns the number of records labeled Threat.
func (b *Batch) Threats() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, r := range b.Records {
		if r.Label == LabelThreat {
			n++
		}
	}
	return n
}

// FiniteCounts returns how many records carry a finite packet size and a
// finite latency.
func (b *Batch) FiniteCounts() (packetSize, latency int) {
	if b == nil {
		return 0, 0
	}
	for _, r := range b.Records {
		if isFinite(r.PacketSize) {
			packetSize++
		}
		if isFinite(r.LatencyMs) {
			latency++
		}
	}
	return packetSize, latency
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Records = make([]TrafficRecord, len(b.Records))
	copy(out.Records, b.Records)
	return &out
}

// SynthesizeTimestamps assigns decreasing per-minute timestamps anchored at
// now: the first record gets now, the next now-1m and so on.
func SynthesizeTimestamps(records []TrafficRecord, now time.Time) {
	for i := range records {
		records[i].Timestamp = now.Add(-time.Duration(i) * time.Minute)
	}
}

// NaN is the marker for a missing numeric value.
func NaN() float64 {
	return math.NaN()
}
