// Package pcap turns offline packet capture files into traffic tables.
package pcap

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

// pcapng section header block type.
const ngMagic = 0x0A0D0D0A

// Reader reads packets from pcap or pcapng files.
type Reader struct {
	source    *gopacket.PacketSource
	closer    io.Closer
	extractor *FeatureExtractor
}

// NewReader creates a reader over capture data. The format (pcap or pcapng)
// is detected from the first block.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: capture header: %v", telemetry.ErrParse, err)
	}

	var (
		data     gopacket.PacketDataSource
		linkType layers.LinkType
	)
	if binary.LittleEndian.Uint32(magic) == ngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", telemetry.ErrParse, err)
		}
		data, linkType = ng, ng.LinkType()
	} else {
		classic, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", telemetry.ErrParse, err)
		}
		data, linkType = classic, classic.LinkType()
	}

	source := gopacket.NewPacketSource(data, linkType)
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	return &Reader{
		source:    source,
		extractor: NewFeatureExtractor(),
	}, nil
}

// Open creates a reader for a capture file.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// ReadTable returns one row per packet in capture order.
func (r *Reader) ReadTable() (*telemetry.Table, error) {
	table := &telemetry.Table{Columns: FeatureNames()}

	for {
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: truncated capture: %v", telemetry.ErrParse, err)
			}
			return nil, fmt.Errorf("%w: %v", telemetry.ErrParse, err)
		}
		table.Rows = append(table.Rows, r.extractor.Extract(packet))
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

// FeatureExtractor derives traffic features from consecutive packets.
type FeatureExtractor struct {
	lastTimestamp time.Time
	window        []time.Time
}

// NewFeatureExtractor creates a new packet feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract converts a packet to a row laid out as FeatureNames:
// capture time, wire length, gap to the previous packet in milliseconds and
// the number of IP packets seen in the trailing second.
func (e *FeatureExtractor) Extract(packet gopacket.Packet) []string {
	meta := packet.Metadata()
	ts := meta.Timestamp

	size := meta.Length
	if size == 0 {
		size = len(packet.Data())
	}

	var gap float64
	if !e.lastTimestamp.IsZero() {
		gap = float64(ts.Sub(e.lastTimestamp)) / float64(time.Millisecond)
	}
	e.lastTimestamp = ts

	if packet.Layer(layers.LayerTypeIPv4) != nil || packet.Layer(layers.LayerTypeIPv6) != nil {
		e.window = append(e.window, ts)
	}
	cutoff := ts.Add(-time.Second)
	idx := 0
	for idx < len(e.window) && !e.window[idx].After(cutoff) {
		idx++
	}
	e.window = e.window[idx:]

	return []string{
		ts.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(size),
		strconv.FormatFloat(gap, 'f', 3, 64),
		strconv.Itoa(len(e.window)),
	}
}

// FeatureNames returns the column names produced by Extract.
func FeatureNames() []string {
	return []string{
		telemetry.ColumnTimestamp,
		telemetry.ColumnPacketSize,
		telemetry.ColumnLatencyMs,
		telemetry.ColumnRequestsPerSec,
	}
}
