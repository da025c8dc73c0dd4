// Package alerts projects scored batches into the alert feed shown to operators.
package alerts

import (
	"math"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// DefaultMaxAlerts is the feed length of the dashboard.
const DefaultMaxAlerts = 5

// Extract returns the last maxCount Threat records of batch, most recent
// first. Recency follows batch order: a later position is more recent.
// The batch is not modified.
func Extract(batch *telemetry.Batch, maxCount int) []telemetry.AlertEntry {
	out := make([]telemetry.AlertEntry, 0)
	if batch == nil || maxCount <= 0 {
		return out
	}

	for i := len(batch.Records) - 1; i >= 0 && len(out) < maxCount; i-- {
		r := batch.Records[i]
		if r.Label != telemetry.LabelThreat {
			continue
		}
		out = append(out, telemetry.AlertEntry{
			Timestamp:  r.Timestamp,
			LatencyMs:  r.LatencyMs,
			PacketSize: r.PacketSize,
			Score:      r.Score,
			Position:   i,
		})
	}

	return out
}

// Summary is the headline metrics row for a scored batch.
type Summary struct {
	Records       int     `json:"records"`
	Scored        int     `json:"scored"`
	Threats       int     `json:"threats"`
	ThreatRatio   float64 `json:"threat_ratio"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	AvgPacketSize float64 `json:"avg_packet_size"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
}

// Summarize computes headline metrics over the finite values of batch.
func Summarize(batch *telemetry.Batch) Summary {
	s := Summary{Records: batch.Len()}
	if s.Records == 0 {
		return s
	}

	var sumLatency, sumPacket float64
	var nLatency, nPacket int
	for _, r := range batch.Records {
		if r.Label != telemetry.LabelNone {
			s.Scored++
		}
		if r.Label == telemetry.LabelThreat {
			s.Threats++
		}
		if finite(r.LatencyMs) {
			sumLatency += r.LatencyMs
			nLatency++
			if r.LatencyMs > s.MaxLatencyMs {
				s.MaxLatencyMs = r.LatencyMs
			}
		}
		if finite(r.PacketSize) {
			sumPacket += r.PacketSize
			nPacket++
		}
	}

	if s.Scored > 0 {
		s.ThreatRatio = float64(s.Threats) / float64(s.Scored)
	}
	if nLatency > 0 {
		s.AvgLatencyMs = sumLatency / float64(nLatency)
	}
	if nPacket > 0 {
		s.AvgPacketSize = sumPacket / float64(nPacket)
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
