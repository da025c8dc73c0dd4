package csv

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// Header is the fixed column order of exported batches.
var Header = []string{
	telemetry.ColumnTimestamp,
	telemetry.ColumnPacketSize,
	telemetry.ColumnLatencyMs,
	telemetry.ColumnRequestsPerSec,
	"label",
	"score",
}

// Writer writes batches as CSV.
type Writer struct {
	w      io.Writer
	closer io.Closer
}

// NewWriter creates a writer over w. If w is an io.Closer, Close closes it.
func NewWriter(w io.Writer) *Writer {
	wr := &Writer{w: w}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// WriteBatch writes the header and one row per record.
func (w *Writer) WriteBatch(batch *telemetry.Batch) error {
	writer := csv.NewWriter(w.w)
	defer writer.Flush()

	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, r := range batch.Records {
		score := ""
		if r.Label != telemetry.LabelNone {
			score = formatFloat(r.Score, 4)
		}
		record := []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			formatFloat(r.PacketSize, 3),
			formatFloat(r.LatencyMs, 3),
			formatFloat(r.RequestsPerSec, 3),
			r.Label.String(),
			score,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Close releases resources.
func (w *Writer) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
