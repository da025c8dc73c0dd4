// Package session holds the per-session pipeline state: the synthetic
// fallback batch, the active scored batch, the last ingestion outcome and the
// support chat history.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hed1ad/secureflow/pkg/alerts"
	"github.com/hed1ad/secureflow/pkg/assistant"
	"github.com/hed1ad/secureflow/pkg/generator"
	"github.com/hed1ad/secureflow/pkg/ingest"
	"github.com/hed1ad/secureflow/pkg/metrics"
	"github.com/hed1ad/secureflow/pkg/observability"
	"github.com/hed1ad/secureflow/pkg/scoring"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// ErrSessionClosed is returned by every call on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session owns the active batch. Readers get the batch pointer and must not
// modify it; replacement always swaps in a new, fully scored batch.
type Session struct {
	id string

	mu        sync.RWMutex
	synthetic *telemetry.Batch
	active    *telemetry.Batch
	outcome   ingest.Outcome
	history   []assistant.Message
	router    *assistant.Router
	closed    bool

	generator    *generator.Generator
	gate         *ingest.Gate
	engine       *scoring.Engine
	newRouter    func() *assistant.Router
	sampleCount  int
	anomalyCount int
	maxAlerts    int

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session identifier.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithGenerator sets the synthetic batch generator.
func WithGenerator(g *generator.Generator) Option {
	return func(s *Session) {
		s.generator = g
	}
}

// WithGate sets the ingestion gate.
func WithGate(g *ingest.Gate) Option {
	return func(s *Session) {
		s.gate = g
	}
}

// WithEngine sets the scoring engine.
func WithEngine(e *scoring.Engine) Option {
	return func(s *Session) {
		s.engine = e
	}
}

// WithAssistant sets the chat router factory used on creation and reset.
func WithAssistant(factory func() *assistant.Router) Option {
	return func(s *Session) {
		s.newRouter = factory
	}
}

// WithSampleCounts sets the size of the synthetic batch.
func WithSampleCounts(samples, anomalies int) Option {
	return func(s *Session) {
		s.sampleCount = samples
		s.anomalyCount = anomalies
	}
}

// WithMaxAlerts sets the alert feed length.
func WithMaxAlerts(n int) Option {
	return func(s *Session) {
		s.maxAlerts = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		s.tracer = t
	}
}

// New creates a session. No batch exists until first use.
func New(opts ...Option) *Session {
	s := &Session{
		sampleCount:  generator.DefaultSampleCount,
		anomalyCount: generator.DefaultAnomalyCount,
		maxAlerts:    alerts.DefaultMaxAlerts,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.generator == nil {
		s.generator = generator.New()
	}
	if s.gate == nil {
		s.gate = ingest.NewGate()
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine()
	}
	if s.newRouter == nil {
		s.newRouter = func() *assistant.Router { return assistant.NewRouter() }
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tracer == nil {
		s.tracer = observability.Tracer()
	}
	s.logger = s.logger.With("session", s.id)
	s.router = s.newRouter()
	s.metrics.SessionOpened()

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Batch returns the active scored batch, generating and scoring the synthetic
// batch on first access.
func (s *Session) Batch(ctx context.Context) (*telemetry.Batch, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	if s.active != nil {
		b := s.active
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.active != nil {
		return s.active, nil
	}

	synthetic, err := s.newSynthetic(ctx)
	if err != nil {
		return nil, err
	}
	s.synthetic = synthetic
	s.active = synthetic
	s.outcome = ingest.Outcome{Kind: ingest.Accepted}
	return s.active, nil
}

// Ingest resolves src through the gate, scores accepted external data and
// makes the result active. On error the active batch is left unchanged.
func (s *Session) Ingest(ctx context.Context, src ingest.Source) (*telemetry.Batch, ingest.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "session.Ingest")
	defer span.End()

	fallback, err := s.fallback(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback batch unavailable")
		return nil, ingest.Outcome{}, err
	}

	batch, outcome, err := s.gate.Ingest(src, fallback)
	s.metrics.ObserveIngest(outcome.Kind.String())
	span.SetAttributes(attribute.String("ingest.outcome", outcome.Kind.String()))
	if err != nil {
		s.logger.WarnContext(ctx, "ingestion rejected", "reason", outcome.Reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion rejected")
		return nil, outcome, err
	}

	switch {
	case outcome.Kind == ingest.AcceptedWithFallback:
		s.logger.WarnContext(ctx, "external data replaced by demo data", "reason", outcome.Reason)
	case !batch.Scored:
		if outcome.TimestampsSynthesized {
			s.logger.InfoContext(ctx, "timestamps synthesized for external batch", "records", batch.Len())
		}
		if _, err := s.score(ctx, batch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
			return nil, outcome, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, outcome, ErrSessionClosed
	}
	s.active = batch
	s.outcome = outcome
	return batch, outcome, nil
}

// Regenerate replaces the synthetic batch and makes it active.
func (s *Session) Regenerate(ctx context.Context) (*telemetry.Batch, error) {
	synthetic, err := s.newSynthetic(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.synthetic = synthetic
	s.active = synthetic
	s.outcome = ingest.Outcome{Kind: ingest.Accepted}
	return synthetic, nil
}

// Alerts returns the alert feed of the active batch.
func (s *Session) Alerts(ctx context.Context) ([]telemetry.AlertEntry, error) {
	return s.AlertsN(ctx, s.maxAlerts)
}

// AlertsN returns up to n alerts of the active batch.
func (s *Session) AlertsN(ctx context.Context, n int) ([]telemetry.AlertEntry, error) {
	batch, err := s.Batch(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return alerts.Extract(batch, n), nil
}

// Summary returns headline metrics of the active batch.
func (s *Session) Summary(ctx context.Context) (alerts.Summary, error) {
	batch, err := s.Batch(ctx)
	if err != nil {
		return alerts.Summary{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return alerts.Summarize(batch), nil
}

// Outcome returns the outcome of the last ingestion.
func (s *Session) Outcome() ingest.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outcome
}

// Ask sends a prompt to the support assistant and records both sides in the
// chat history.
func (s *Session) Ask(ctx context.Context, prompt string) (assistant.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return assistant.Reply{}, ErrSessionClosed
	}

	reply := s.router.Respond(prompt)
	s.history = append(s.history,
		assistant.Message{Role: assistant.RoleUser, Content: prompt},
		assistant.Message{Role: assistant.RoleAssistant, Content: reply.Text},
	)
	if reply.TicketID != "" {
		s.logger.InfoContext(ctx, "support ticket opened", "ticket", reply.TicketID)
	}
	return reply, nil
}

// History returns a copy of the chat history.
func (s *Session) History() []assistant.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]assistant.Message(nil), s.history...)
}

// Reset drops every batch, the last outcome and the chat history. The next
// access generates a new synthetic batch.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.synthetic = nil
	s.active = nil
	s.outcome = ingest.Outcome{}
	s.history = nil
	s.router = s.newRouter()
	return nil
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.closed = true
	s.synthetic = nil
	s.active = nil
	s.history = nil
	s.metrics.SessionClosed()
}

// fallback returns the scored synthetic batch, creating it if needed.
func (s *Session) fallback(ctx context.Context) (*telemetry.Batch, error) {
	s.mu.RLock()
	synthetic, closed := s.synthetic, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if synthetic != nil {
		return synthetic, nil
	}

	if _, err := s.Batch(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.synthetic == nil {
		return nil, ErrSessionClosed
	}
	return s.synthetic, nil
}

func (s *Session) newSynthetic(ctx context.Context) (*telemetry.Batch, error) {
	batch, err := s.generator.Generate(s.sampleCount, s.anomalyCount)
	if err != nil {
		return nil, err
	}
	return s.score(ctx, batch)
}

func (s *Session) score(ctx context.Context, batch *telemetry.Batch) (*telemetry.Batch, error) {
	ctx, span := s.tracer.Start(ctx, "session.Score",
		trace.WithAttributes(
			attribute.Int("batch.records", batch.Len()),
			attribute.String("batch.source", string(batch.Source)),
			attribute.Float64("scoring.contamination", s.engine.Contamination()),
		))
	defer span.End()

	start := time.Now()
	scored, err := s.engine.Score(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveScoringFailure(failureReason(err))
		s.logger.ErrorContext(ctx, "scoring failed", "records", batch.Len(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		return nil, err
	}

	threats := scored.Threats()
	s.metrics.ObserveScore(elapsed, scored.Len(), threats)
	span.SetAttributes(attribute.Int("batch.threats", threats))
	s.logger.InfoContext(ctx, "batch scored",
		"source", batch.Source,
		"records", scored.Len(),
		"threats", threats,
		"duration", elapsed,
	)
	if scoring.LowConfidence(scored) {
		s.logger.WarnContext(ctx, "batch too small for stable labels", "records", scored.Len(), "min", scoring.MinReliableSize)
	}
	return scored, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrScoringTimeout):
		return "timeout"
	case errors.Is(err, telemetry.ErrInsufficientFeatures):
		return "insufficient_features"
	case errors.Is(err, telemetry.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
