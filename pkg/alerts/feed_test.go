package alerts

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/secureflow/pkg/generator"
	"github.com/hed1ad/secureflow/pkg/scoring"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

var base = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func labeledBatch(labels ...telemetry.Label) *telemetry.Batch {
	b := &telemetry.Batch{}
	for i, l := range labels {
		b.Records = append(b.Records, telemetry.TrafficRecord{
			Timestamp:  base.Add(-time.Duration(i) * time.Minute),
			PacketSize: float64(500 + i),
			LatencyMs:  float64(20 + i),
			Label:      l,
			Score:      0.1 * float64(i),
		})
	}
	return b
}

func TestExtract(t *testing.T) {
	N, T := telemetry.LabelNormal, telemetry.LabelThreat

	tests := []struct {
		name          string
		batch         *telemetry.Batch
		maxCount      int
		wantPositions []int
	}{
		{name: "nil batch", batch: nil, maxCount: 5, wantPositions: []int{}},
		{name: "no threats", batch: labeledBatch(N, N, N), maxCount: 5, wantPositions: []int{}},
		{name: "zero max", batch: labeledBatch(T, T), maxCount: 0, wantPositions: []int{}},
		{name: "negative max", batch: labeledBatch(T, T), maxCount: -1, wantPositions: []int{}},
		{name: "tail of threats", batch: labeledBatch(T, N, T, T, N, T), maxCount: 2, wantPositions: []int{5, 3}},
		{name: "fewer threats than max", batch: labeledBatch(N, T, N, T), maxCount: 5, wantPositions: []int{3, 1}},
		{name: "all threats", batch: labeledBatch(T, T, T, T), maxCount: 3, wantPositions: []int{3, 2, 1}},
		{name: "all threats under max", batch: labeledBatch(T, T), maxCount: 10, wantPositions: []int{1, 0}},
		{name: "unscored records ignored", batch: labeledBatch(telemetry.LabelNone, T), maxCount: 5, wantPositions: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.batch, tt.maxCount)

			require.NotNil(t, got)
			positions := make([]int, len(got))
			for i, a := range got {
				positions[i] = a.Position
				rec := tt.batch.Records[a.Position]
				assert.Equal(t, telemetry.LabelThreat, rec.Label)
				assert.Equal(t, rec.Timestamp, a.Timestamp)
				assert.Equal(t, rec.LatencyMs, a.LatencyMs)
			}
			assert.Equal(t, tt.wantPositions, positions)
		})
	}
}

func TestExtractIdempotent(t *testing.T) {
	batch, err := generator.New(generator.WithSeed(42)).Generate(300, 15)
	require.NoError(t, err)
	_, err = scoring.NewEngine(scoring.WithSeed(42)).Score(context.Background(), batch)
	require.NoError(t, err)
	snapshot := batch.Clone()

	first := Extract(batch, 4)
	second := Extract(batch, 4)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, batch)
	assert.LessOrEqual(t, len(first), 4)
	assert.NotEmpty(t, first)
	for _, a := range first {
		assert.Equal(t, telemetry.LabelThreat, batch.Records[a.Position].Label)
	}
}

func TestAlertEntryString(t *testing.T) {
	a := telemetry.AlertEntry{Timestamp: time.Date(2026, 1, 1, 9, 5, 7, 0, time.UTC), LatencyMs: 212.345}
	assert.Equal(t, "09:05:07 | High Latency: 212.3ms", a.String())
}

func TestSummarize(t *testing.T) {
	batch := labeledBatch(telemetry.LabelNormal, telemetry.LabelThreat, telemetry.LabelNormal, telemetry.LabelNone)
	batch.Records[3].LatencyMs = math.NaN()

	s := Summarize(batch)

	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 3, s.Scored)
	assert.Equal(t, 1, s.Threats)
	assert.InDelta(t, 1.0/3.0, s.ThreatRatio, 1e-9)
	assert.InDelta(t, 21.0, s.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 501.5, s.AvgPacketSize, 1e-9)
	assert.Equal(t, 22.0, s.MaxLatencyMs)

	assert.Equal(t, Summary{}, Summarize(nil))
}
