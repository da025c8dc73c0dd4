package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// DefaultTimeLayouts are tried in order when parsing the timestamp column.
var DefaultTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var requiredColumns = []string{telemetry.ColumnPacketSize, telemetry.ColumnLatencyMs}

// Gate validates external input and decides between it and the fallback.
type Gate struct {
	clock   func() time.Time
	layouts []string
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the time source used to synthesize timestamps.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

// WithTimeLayouts replaces the accepted timestamp layouts.
func WithTimeLayouts(layouts ...string) Option {
	return func(g *Gate) {
		g.layouts = layouts
	}
}

// NewGate creates a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		clock:   time.Now,
		layouts: DefaultTimeLayouts,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Ingest resolves src into the batch to score.
//
// Synthetic returns fallback unchanged. External input missing a required
// column also returns fallback, with an AcceptedWithFallback outcome. Malformed
// input, including a Stream that fails to read, returns a Rejected outcome and
// an error wrapping telemetry.ErrParse. An accepted external batch is unscored.
func (g *Gate) Ingest(src Source, fallback *telemetry.Batch) (*telemetry.Batch, Outcome, error) {
	switch s := src.(type) {
	case Synthetic:
		return fallback, Outcome{Kind: Accepted}, nil
	case External:
		return g.ingestExternal(s.Table, fallback)
	case Stream:
		if s.Read == nil {
			return reject(fmt.Errorf("%w: stream has no reader", telemetry.ErrParse))
		}
		table, err := s.Read()
		if err != nil {
			if !errors.Is(err, telemetry.ErrParse) {
				err = fmt.Errorf("%w: %w", telemetry.ErrParse, err)
			}
			return reject(err)
		}
		return g.ingestExternal(table, fallback)
	default:
		err := fmt.Errorf("%w: unsupported source %T", telemetry.ErrParse, src)
		return nil, Outcome{Kind: Rejected, Reason: err.Error(), Cause: telemetry.ErrParse}, err
	}
}

func (g *Gate) ingestExternal(table *telemetry.Table, fallback *telemetry.Batch) (*telemetry.Batch, Outcome, error) {
	if table == nil || len(table.Columns) == 0 {
		return reject(fmt.Errorf("%w: input has no header", telemetry.ErrParse))
	}

	var missing []string
	for _, col := range requiredColumns {
		if table.ColumnIndex(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fallback, Outcome{
			Kind:   AcceptedWithFallback,
			Reason: fmt.Sprintf("missing required columns: %s; showing demo data instead", strings.Join(missing, ", ")),
			Cause:  telemetry.ErrSchemaMismatch,
		}, nil
	}

	packetIdx := table.ColumnIndex(telemetry.ColumnPacketSize)
	latencyIdx := table.ColumnIndex(telemetry.ColumnLatencyMs)
	requestsIdx := table.ColumnIndex(telemetry.ColumnRequestsPerSec)
	timestampIdx := table.ColumnIndex(telemetry.ColumnTimestamp)

	records := make([]telemetry.TrafficRecord, len(table.Rows))
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return reject(fmt.Errorf("%w: row %d has %d fields, header has %d",
				telemetry.ErrParse, i+1, len(row), len(table.Columns)))
		}

		var err error
		rec := &records[i]
		if rec.PacketSize, err = parseNumber(row, packetIdx, i, telemetry.ColumnPacketSize); err != nil {
			return reject(err)
		}
		if rec.LatencyMs, err = parseNumber(row, latencyIdx, i, telemetry.ColumnLatencyMs); err != nil {
			return reject(err)
		}
		if rec.RequestsPerSec, err = parseNumber(row, requestsIdx, i, telemetry.ColumnRequestsPerSec); err != nil {
			return reject(err)
		}
	}

	outcome := Outcome{Kind: Accepted}
	if timestampIdx < 0 || !g.parseTimestamps(table.Rows, timestampIdx, records) {
		telemetry.SynthesizeTimestamps(records, g.clock())
		outcome.TimestampsSynthesized = true
	}

	return &telemetry.Batch{
		Records:   records,
		Source:    telemetry.SourceExternal,
		CreatedAt: g.clock(),
	}, outcome, nil
}

// parseTimestamps fills timestamps from the column. It reports false, leaving
// records untouched, if any cell fails to parse.
func (g *Gate) parseTimestamps(rows [][]string, idx int, records []telemetry.TrafficRecord) bool {
	parsed := make([]time.Time, len(rows))
	for i, row := range rows {
		ts, ok := g.parseTime(strings.TrimSpace(row[idx]))
		if !ok {
			return false
		}
		parsed[i] = ts
	}
	for i := range records {
		records[i].Timestamp = parsed[i]
	}
	return true
}

func (g *Gate) parseTime(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range g.layouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

// parseNumber reads a numeric cell. Absent columns and blank cells are NaN.
func parseNumber(row []string, idx, rowNum int, column string) (float64, error) {
	if idx < 0 {
		return math.NaN(), nil
	}
	v := strings.TrimSpace(row[idx])
	if v == "" || strings.EqualFold(v, "nan") || strings.EqualFold(v, "null") {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: row %d column %s: %q is not a number", telemetry.ErrParse, rowNum+1, column, v)
	}
	return f, nil
}

func reject(err error) (*telemetry.Batch, Outcome, error) {
	return nil, Outcome{Kind: Rejected, Reason: err.Error(), Cause: telemetry.ErrParse}, err
}
