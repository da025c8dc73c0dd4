package pcap

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/secureflow/pkg/telemetry"
)

func udpFrame(t *testing.T, payload int) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(make([]byte, payload))))
	return buf.Bytes()
}

func writeCapture(t *testing.T, start time.Time, offsets []time.Duration, payloads []int) *bytes.Buffer {
	t.Helper()

	var out bytes.Buffer
	w := pcapgo.NewWriter(&out)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for i, off := range offsets {
		frame := udpFrame(t, payloads[i])
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(off),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return &out
}

func TestReadTable(t *testing.T) {
	start := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	offsets := []time.Duration{0, 20 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}
	payloads := []int{100, 1400, 100, 100}

	r, err := NewReader(writeCapture(t, start, offsets, payloads))
	require.NoError(t, err)
	defer r.Close()

	table, err := r.ReadTable()
	require.NoError(t, err)

	assert.Equal(t, FeatureNames(), table.Columns)
	require.Len(t, table.Rows, 4)

	// 14 ethernet + 20 ipv4 + 8 udp header bytes
	assert.Equal(t, "142", table.Rows[0][1])
	assert.Equal(t, "1442", table.Rows[1][1])

	assert.Equal(t, "0.000", table.Rows[0][2])
	assert.Equal(t, "20.000", table.Rows[1][2])
	assert.Equal(t, "480.000", table.Rows[2][2])
	assert.Equal(t, "1500.000", table.Rows[3][2])

	assert.Equal(t, []string{"1", "2", "3", "1"}, []string{
		table.Rows[0][3], table.Rows[1][3], table.Rows[2][3], table.Rows[3][3],
	})

	ts, err := time.Parse(time.RFC3339Nano, table.Rows[1][0])
	require.NoError(t, err)
	assert.True(t, ts.Equal(start.Add(20*time.Millisecond)))
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not a capture file")))
	assert.ErrorIs(t, err, telemetry.ErrParse)

	_, err = NewReader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, telemetry.ErrParse)
}
