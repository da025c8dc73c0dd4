package telemetry

import (
	"fmt"
	"time"
)

// AlertEntry is one line of the alert feed.
type AlertEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	LatencyMs  float64   `json:"latency_ms"`
	PacketSize float64   `json:"packet_size"`
	Score      float64   `json:"score"`
	// Position is the index of the record in its batch.
	Position int `json:"position"`
}

// String renders the entry the way the dashboard feed shows it.
func (a AlertEntry) String() string {
	return fmt.Sprintf("%s | High Latency: %.1fms", a.Timestamp.Format("15:04:05"), a.LatencyMs)
}
