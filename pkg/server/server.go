// Package server exposes sessions over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hed1ad/secureflow/pkg/alerts"
	"github.com/hed1ad/secureflow/pkg/assistant"
	"github.com/hed1ad/secureflow/pkg/compliance"
	"github.com/hed1ad/secureflow/pkg/ingest"
	"github.com/hed1ad/secureflow/pkg/io/csv"
	"github.com/hed1ad/secureflow/pkg/io/pcap"
	"github.com/hed1ad/secureflow/pkg/performance"
	"github.com/hed1ad/secureflow/pkg/session"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// SessionHeader carries the session identifier on requests and responses.
const SessionHeader = "X-Session-ID"

const (
	serviceName  = "secureflow"
	maxBodyBytes = 32 << 20
)

// Server routes API requests to sessions.
type Server struct {
	sessions *session.Manager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	clock    func() time.Time
	mux      *http.ServeMux

	forecastMu  sync.Mutex
	forecastRNG *rand.Rand
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithClock sets the time source for health and compliance responses.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		s.clock = clock
	}
}

// WithForecastRand sets the random source of the load forecast.
func WithForecastRand(rng *rand.Rand) Option {
	return func(s *Server) {
		s.forecastRNG = rng
	}
}

// New creates a Server backed by sessions.
func New(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.New(slog.DiscardHandler),
		clock:    time.Now,
		mux:      http.NewServeMux(),

		forecastRNG: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.route("GET /api/v1/batch", s.handleBatch)
	s.route("POST /api/v1/ingest", s.handleIngest)
	s.route("POST /api/v1/regenerate", s.handleRegenerate)
	s.route("GET /api/v1/alerts", s.handleAlerts)
	s.route("GET /api/v1/compliance", s.handleCompliance)
	s.route("GET /api/v1/performance", s.handlePerformance)
	s.route("POST /api/v1/chat", s.handleChat)
	s.route("DELETE /api/v1/session", s.handleDeleteSession)
	s.route("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, otelhttp.NewHandler(h, pattern))
}

// BatchResponse is returned by the batch, ingest and regenerate endpoints.
type BatchResponse struct {
	Session string           `json:"session"`
	Outcome ingest.Outcome   `json:"outcome"`
	Summary alerts.Summary   `json:"summary"`
	Batch   *telemetry.Batch `json:"batch,omitempty"`
}

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse is the assistant reply plus the full history.
type ChatResponse struct {
	Reply   assistant.Reply     `json:"reply"`
	History []assistant.Message `json:"history"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Sessions  int       `json:"sessions"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, created := s.sessions.GetOrCreate(r.Header.Get(SessionHeader))
	if created {
		s.logger.InfoContext(r.Context(), "session created", "session", sess.ID(), "remote_addr", r.RemoteAddr)
	}
	w.Header().Set(SessionHeader, sess.ID())
	return sess
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	batch, err := sess.Batch(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeBatch(w, sess, batch, sess.Outcome(), r.URL.Query().Get("records") != "false")
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	batch, outcome, err := sess.Ingest(r.Context(), s.source(w, r))
	if err != nil {
		s.writeJSON(w, statusFor(err), map[string]any{
			"error":   err.Error(),
			"outcome": outcome,
		})
		return
	}
	s.writeBatch(w, sess, batch, outcome, false)
}

// source selects the data to ingest. An empty body selects the synthetic
// batch; otherwise the body is decoded by content type when the gate reads it.
func (s *Server) source(w http.ResponseWriter, r *http.Request) ingest.Source {
	if r.ContentLength == 0 {
		return ingest.Synthetic{}
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	return ingest.Stream{Read: func() (*telemetry.Table, error) {
		defer body.Close()
		return readTable(mediaType, body)
	}}
}

func readTable(mediaType string, body io.Reader) (*telemetry.Table, error) {
	switch mediaType {
	case "application/vnd.tcpdump.pcap", "application/octet-stream":
		reader, err := pcap.NewReader(body)
		if err != nil {
			return nil, err
		}
		return reader.ReadTable()
	case "application/json":
		var rows []map[string]any
		if err := json.NewDecoder(body).Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %w", telemetry.ErrParse, err)
		}
		return telemetry.TableFromMaps(rows), nil
	default:
		return csv.NewReader(body).ReadTable()
	}
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	batch, err := sess.Regenerate(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeBatch(w, sess, batch, sess.Outcome(), false)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	var (
		feed []telemetry.AlertEntry
		err  error
	)
	if v := r.URL.Query().Get("max"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max %q", v))
			return
		}
		feed, err = sess.AlertsN(r.Context(), n)
	} else {
		feed, err = sess.Alerts(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleCompliance(w http.ResponseWriter, r *http.Request) {
	checks := compliance.Checks()

	name := r.URL.Query().Get("report")
	if name == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"checks":       checks,
			"failing":      compliance.Failing(checks),
			"report_types": compliance.ReportTypes,
		})
		return
	}

	rt, err := compliance.ParseReportType(name)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := compliance.Render(rt, checks, s.clock())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(report)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	hours := performance.DefaultHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hours %q", v))
			return
		}
		hours = n
	}

	s.forecastMu.Lock()
	report, err := performance.NewReport(s.clock(), hours, s.forecastRNG)
	s.forecastMu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(report.Breaches) > 0 {
		s.logger.DebugContext(r.Context(), "forecast breaches critical load",
			"hours", len(report.Breaches), "first", report.Breaches[0].Time)
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode chat request: %w", err))
		return
	}
	reply, err := sess.Ask(r.Context(), req.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{Reply: reply, History: sess.History()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if !s.sessions.Delete(id) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("session %q not found", id))
		return
	}
	s.logger.InfoContext(r.Context(), "session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: s.clock(),
		Service:   serviceName,
		Sessions:  s.sessions.Len(),
	})
}

func (s *Server) writeBatch(w http.ResponseWriter, sess *session.Session, batch *telemetry.Batch, outcome ingest.Outcome, withRecords bool) {
	resp := BatchResponse{
		Session: sess.ID(),
		Outcome: outcome,
		Summary: alerts.Summarize(batch),
	}
	if withRecords {
		resp.Batch = batch
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	s.writeError(w, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, telemetry.ErrParse), errors.Is(err, performance.ErrInvalidHorizon):
		return http.StatusBadRequest
	case errors.Is(err, telemetry.ErrInsufficientFeatures):
		return http.StatusUnprocessableEntity
	case errors.Is(err, telemetry.ErrScoringTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
