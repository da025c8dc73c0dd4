// Package csv reads and writes traffic tables as CSV.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// Reader reads traffic tables from CSV input. The first row is the header.
type Reader struct {
	closer io.Closer
	reader *csv.Reader
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(rd *Reader) {
		rd.reader.Comma = r
	}
}

// WithComment sets the comment character; lines starting with it are skipped.
func WithComment(r rune) Option {
	return func(rd *Reader) {
		rd.reader.Comment = r
	}
}

// NewReader creates a reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		reader: csv.NewReader(r),
	}
	rd.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(rd)
	}

	return rd
}

// Open creates a reader for a CSV file.
func Open(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	rd := NewReader(file, opts...)
	rd.closer = file
	return rd, nil
}

// ReadTable reads the header and all rows. Rows whose width differs from the
// header, and any CSV syntax error, are reported as telemetry.ErrParse.
func (r *Reader) ReadTable() (*telemetry.Table, error) {
	headers, err := r.reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", telemetry.ErrParse)
	}
	if err != nil {
		return nil, wrapParse(err)
	}

	table := &telemetry.Table{Columns: headers}
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapParse(err)
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func wrapParse(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: line %d: %v", telemetry.ErrParse, pe.Line, pe.Err)
	}
	return fmt.Errorf("%w: %w", telemetry.ErrParse, err)
}
