// Package generator synthesizes network traffic batches with injected
// volumetric anomalies.
package generator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// Defaults used by the dashboard demo.
const (
	DefaultSampleCount  = 200
	DefaultAnomalyCount = 10
)

// Distribution parameters of normal and attack traffic.
const (
	normalPacketMean, normalPacketStd   = 500.0, 50.0
	normalLatencyMean, normalLatencyStd = 20.0, 5.0
	requestsMean, requestsStd           = 100.0, 10.0

	attackPacketMean, attackPacketStd   = 3000.0, 200.0
	attackLatencyMean, attackLatencyStd = 200.0, 50.0
)

// Generator produces synthetic telemetry batches. It is safe for concurrent
// use.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes generation deterministic.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = rng
	}
}

// WithClock sets the time source used to anchor timestamps.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		g.clock = clock
	}
}

// New creates a Generator. Without WithSeed or WithRand every call yields a
// different batch.
func New(opts ...Option) *Generator {
	g := &Generator{
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return g
}

// Generate returns a fresh batch of sampleCount records, anomalyCount of which
// carry the attack pattern.
func (g *Generator) Generate(sampleCount, anomalyCount int) (*telemetry.Batch, error) {
	if sampleCount < 0 || anomalyCount < 0 {
		return nil, fmt.Errorf("%w: negative counts (samples=%d, anomalies=%d)",
			telemetry.ErrInvalidConfiguration, sampleCount, anomalyCount)
	}
	if anomalyCount > sampleCount {
		return nil, fmt.Errorf("%w: %d anomalies requested for %d samples",
			telemetry.ErrInvalidConfiguration, anomalyCount, sampleCount)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	records := make([]telemetry.TrafficRecord, sampleCount)
	for i := range records {
		records[i] = telemetry.TrafficRecord{
			PacketSize:     g.normal(normalPacketMean, normalPacketStd),
			LatencyMs:      g.normal(normalLatencyMean, normalLatencyStd),
			RequestsPerSec: g.normal(requestsMean, requestsStd),
		}
	}
	telemetry.SynthesizeTimestamps(records, now)

	// Volumetric attack: large packets and congested links
	for _, idx := range g.rng.Perm(sampleCount)[:anomalyCount] {
		records[idx].PacketSize = g.normal(attackPacketMean, attackPacketStd)
		records[idx].LatencyMs = g.normal(attackLatencyMean, attackLatencyStd)
	}

	return &telemetry.Batch{
		Records:   records,
		Source:    telemetry.SourceSynthetic,
		CreatedAt: now,
	}, nil
}

func (g *Generator) normal(mean, std float64) float64 {
	return mean + std*g.rng.NormFloat64()
}

// Generate is a convenience wrapper. A nil seed gives a non-deterministic batch.
func Generate(sampleCount, anomalyCount int, seed *int64) (*telemetry.Batch, error) {
	var opts []Option
	if seed != nil {
		opts = append(opts, WithSeed(*seed))
	}
	return New(opts...).Generate(sampleCount, anomalyCount)
}
