package ingest

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/secureflow/pkg/generator"
	"github.com/hed1ad/secureflow/pkg/telemetry"
)

var now = time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func fallbackBatch(t *testing.T) *telemetry.Batch {
	t.Helper()
	batch, err := generator.New(generator.WithSeed(11), generator.WithClock(clock)).Generate(20, 2)
	require.NoError(t, err)
	return batch
}

func TestIngestSynthetic(t *testing.T) {
	fallback := fallbackBatch(t)

	got, outcome, err := NewGate().Ingest(Synthetic{}, fallback)

	require.NoError(t, err)
	assert.Same(t, fallback, got)
	assert.Equal(t, Accepted, outcome.Kind)
	assert.False(t, outcome.Notify())
}

func TestIngestSchemaMismatchFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		table   *telemetry.Table
		missing string
	}{
		{
			name:    "missing latency",
			table:   telemetry.TableFromMaps([]map[string]any{{"packet_size": 500}, {"packet_size": 3000}}),
			missing: "latency_ms",
		},
		{
			name:    "missing packet size",
			table:   &telemetry.Table{Columns: []string{"latency_ms"}, Rows: [][]string{{"20"}}},
			missing: "packet_size",
		},
		{
			name:    "missing both",
			table:   &telemetry.Table{Columns: []string{"bytes", "rtt"}, Rows: [][]string{{"1", "2"}}},
			missing: "packet_size, latency_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := fallbackBatch(t)
			snapshot := fallback.Clone()

			got, outcome, err := NewGate().Ingest(External{Table: tt.table}, fallback)

			require.NoError(t, err)
			assert.Same(t, fallback, got)
			assert.Equal(t, snapshot, got)
			assert.Equal(t, AcceptedWithFallback, outcome.Kind)
			assert.ErrorIs(t, outcome.Cause, telemetry.ErrSchemaMismatch)
			assert.Contains(t, outcome.Reason, tt.missing)
			assert.True(t, outcome.Notify())
		})
	}
}

func TestIngestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		table *telemetry.Table
	}{
		{name: "nil table", table: nil},
		{name: "no header", table: &telemetry.Table{}},
		{
			name: "non-numeric packet size",
			table: &telemetry.Table{
				Columns: []string{"packet_size", "latency_ms"},
				Rows:    [][]string{{"500", "20"}, {"big", "20"}},
			},
		},
		{
			name: "non-numeric optional column",
			table: &telemetry.Table{
				Columns: []string{"packet_size", "latency_ms", "requests_per_sec"},
				Rows:    [][]string{{"500", "20", "lots"}},
			},
		},
		{
			name: "short row",
			table: &telemetry.Table{
				Columns: []string{"packet_size", "latency_ms"},
				Rows:    [][]string{{"500"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome, err := NewGate().Ingest(External{Table: tt.table}, fallbackBatch(t))

			assert.ErrorIs(t, err, telemetry.ErrParse)
			assert.Nil(t, got)
			assert.Equal(t, Rejected, outcome.Kind)
			assert.ErrorIs(t, outcome.Cause, telemetry.ErrParse)
			assert.NotEmpty(t, outcome.Reason)
		})
	}
}

type unknownSource struct{}

func (unknownSource) isSource() {}

func TestIngestUnknownSource(t *testing.T) {
	_, outcome, err := NewGate().Ingest(unknownSource{}, nil)
	assert.ErrorIs(t, err, telemetry.ErrParse)
	assert.Equal(t, Rejected, outcome.Kind)
}

func TestIngestStream(t *testing.T) {
	fallback := fallbackBatch(t)
	readErr := errors.New("unexpected EOF")

	tests := []struct {
		name     string
		src      Stream
		wantKind OutcomeKind
		wantErr  error
	}{
		{
			name: "rows are validated like external input",
			src: Stream{Read: func() (*telemetry.Table, error) {
				return &telemetry.Table{Columns: []string{"packet_size", "latency_ms"}, Rows: [][]string{{"500", "20"}}}, nil
			}},
			wantKind: Accepted,
		},
		{
			name: "missing column falls back",
			src: Stream{Read: func() (*telemetry.Table, error) {
				return &telemetry.Table{Columns: []string{"bytes"}, Rows: [][]string{{"1"}}}, nil
			}},
			wantKind: AcceptedWithFallback,
		},
		{
			name: "parse error is rejected",
			src: Stream{Read: func() (*telemetry.Table, error) {
				return nil, fmt.Errorf("%w: line 2: extraneous quote", telemetry.ErrParse)
			}},
			wantKind: Rejected,
			wantErr:  telemetry.ErrParse,
		},
		{
			name:     "read error is rejected as a parse error",
			src:      Stream{Read: func() (*telemetry.Table, error) { return nil, readErr }},
			wantKind: Rejected,
			wantErr:  readErr,
		},
		{
			name:     "nil reader is rejected",
			src:      Stream{},
			wantKind: Rejected,
			wantErr:  telemetry.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, outcome, err := NewGate(WithClock(clock)).Ingest(tt.src, fallback)

			assert.Equal(t, tt.wantKind, outcome.Kind)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, batch)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, telemetry.ErrParse)
			assert.Nil(t, batch)
			assert.Equal(t, telemetry.ErrParse, outcome.Cause)
			assert.NotEmpty(t, outcome.Reason)
		})
	}
}

func TestIngestExternalAccepted(t *testing.T) {
	table := &telemetry.Table{
		Columns: []string{"Timestamp", " packet_size", "latency_ms", "requests_per_sec"},
		Rows: [][]string{
			{"2026-05-31T10:00:00Z", "500", "20", "98.5"},
			{"2026-05-31 10:01:00", "3000", "", "NaN"},
			{"1780221720", "510.5", "21", ""},
		},
	}

	got, outcome, err := NewGate(WithClock(clock)).Ingest(External{Table: table}, fallbackBatch(t))

	require.NoError(t, err)
	assert.Equal(t, Accepted, outcome.Kind)
	assert.False(t, outcome.TimestampsSynthesized)
	assert.False(t, outcome.Notify())

	require.Len(t, got.Records, 3)
	assert.Equal(t, telemetry.SourceExternal, got.Source)
	assert.False(t, got.Scored)
	assert.Equal(t, now, got.CreatedAt)

	assert.Equal(t, time.Date(2026, 5, 31, 10, 0, 0, 0, time.UTC), got.Records[0].Timestamp)
	assert.Equal(t, time.Date(2026, 5, 31, 10, 1, 0, 0, time.UTC), got.Records[1].Timestamp)
	assert.Equal(t, time.Unix(1780221720, 0).UTC(), got.Records[2].Timestamp)

	assert.Equal(t, 500.0, got.Records[0].PacketSize)
	assert.Equal(t, 98.5, got.Records[0].RequestsPerSec)
	assert.True(t, math.IsNaN(got.Records[1].LatencyMs))
	assert.True(t, math.IsNaN(got.Records[1].RequestsPerSec))
	assert.False(t, got.Records[1].Scorable())
	assert.True(t, math.IsNaN(got.Records[2].RequestsPerSec))

	for _, r := range got.Records {
		assert.Equal(t, telemetry.LabelNone, r.Label)
	}
}

func TestIngestTimestampFallback(t *testing.T) {
	tests := []struct {
		name  string
		table *telemetry.Table
	}{
		{
			name: "no timestamp column",
			table: &telemetry.Table{
				Columns: []string{"packet_size", "latency_ms"},
				Rows:    [][]string{{"500", "20"}, {"501", "19"}, {"499", "22"}},
			},
		},
		{
			name: "one unparsable cell",
			table: &telemetry.Table{
				Columns: []string{"timestamp", "packet_size", "latency_ms"},
				Rows: [][]string{
					{"2026-05-31T10:00:00Z", "500", "20"},
					{"yesterday", "501", "19"},
					{"2026-05-31T10:02:00Z", "499", "22"},
				},
			},
		},
		{
			name: "blank cell",
			table: &telemetry.Table{
				Columns: []string{"timestamp", "packet_size", "latency_ms"},
				Rows: [][]string{
					{"2026-05-31T10:00:00Z", "500", "20"},
					{"2026-05-31T10:01:00Z", "501", "19"},
					{"", "499", "22"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, outcome, err := NewGate(WithClock(clock)).Ingest(External{Table: tt.table}, nil)

			require.NoError(t, err)
			assert.Equal(t, Accepted, outcome.Kind)
			assert.True(t, outcome.TimestampsSynthesized)
			require.Len(t, got.Records, 3)
			for i, r := range got.Records {
				assert.Equal(t, now.Add(-time.Duration(i)*time.Minute), r.Timestamp)
			}
		})
	}
}

func TestIngestCustomLayouts(t *testing.T) {
	table := &telemetry.Table{
		Columns: []string{"timestamp", "packet_size", "latency_ms"},
		Rows:    [][]string{{"01/06/2026 09:15", "500", "20"}},
	}

	got, outcome, err := NewGate(WithClock(clock), WithTimeLayouts("02/01/2006 15:04")).Ingest(External{Table: table}, nil)

	require.NoError(t, err)
	assert.False(t, outcome.TimestampsSynthesized)
	assert.Equal(t, time.Date(2026, 6, 1, 9, 15, 0, 0, time.UTC), got.Records[0].Timestamp)
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "accepted_with_fallback", AcceptedWithFallback.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "unknown", OutcomeKind(9).String())
}

func TestOutcomeKindText(t *testing.T) {
	for _, kind := range []OutcomeKind{Accepted, AcceptedWithFallback, Rejected} {
		text, err := kind.MarshalText()
		require.NoError(t, err)

		var got OutcomeKind
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, kind, got)
	}

	var k OutcomeKind
	assert.Error(t, k.UnmarshalText([]byte("maybe")))
}
