package file

import (
	"context"
	"io"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wirelab/internal/source"
)

func udpFrame(t *testing.T, src, dst string, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func arpFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0, 1, 2, 3, 4, 5},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	return buf.Bytes()
}

func writePcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	base := time.Unix(1700000000, 0).UTC()
	for i, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: base.Add(time.Duration(i) * time.Second), CaptureLength: len(fr), Length: len(fr)}
		require.NoError(t, w.WritePacket(ci, fr))
	}
	return path
}

func TestReadUDPDatagrams(t *testing.T) {
	path := writePcap(t,
		udpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 3478, []byte{0xab, 0xcd}),
		arpFrame(t),
		udpFrame(t, "10.0.0.2", "10.0.0.1", 3478, 40000, []byte{0x01}),
	)

	s, err := Open(path, source.Options{})
	require.NoError(t, err)
	defer s.Close()

	dg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:40000"), dg.Src)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.2:3478"), dg.Dst)
	assert.Equal(t, []byte{0xab, 0xcd}, dg.Payload)
	assert.Equal(t, int64(1700000000), dg.Time.Unix())

	dg, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, dg.Payload)
	assert.Equal(t, uint64(1), s.Skipped())

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPortFilter(t *testing.T) {
	path := writePcap(t,
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1000, 2000, []byte{1}),
		udpFrame(t, "10.0.0.1", "10.0.0.2", 1000, 5060, []byte{2}),
	)

	s, err := Open(path, source.Options{Port: 5060})
	require.NoError(t, err)
	defer s.Close()

	var got [][]byte
	require.NoError(t, s.ForEach(context.Background(), func(dg source.Datagram) error {
		got = append(got, dg.Payload)
		return nil
	}))
	assert.Equal(t, [][]byte{{2}}, got)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.pcap"), source.Options{})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(bad, []byte("not a capture file"), 0o644))
	_, err = Open(bad, source.Options{})
	assert.Error(t, err)
}

func ipv4Fragment(t *testing.T, id uint16, offset uint16, more bool, chunk []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:    4,
		TTL:        64,
		Id:         id,
		FragOffset: offset,
		Protocol:   layers.IPProtocolUDP,
		SrcIP:      net.IP{10, 0, 0, 1},
		DstIP:      net.IP{10, 0, 0, 2},
	}
	if more {
		ip.Flags = layers.IPv4MoreFragments
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, ip, gopacket.Payload(chunk)))
	return buf.Bytes()
}

func TestReassembleIPv4Fragments(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 6000, Length: uint16(8 + len(payload))}
	ub := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(ub, gopacket.SerializeOptions{}, udp, gopacket.Payload(payload)))
	whole := ub.Bytes()

	// Second half first, then a duplicate, then the head.
	path := writePcap(t,
		ipv4Fragment(t, 7, 3, false, whole[24:]),
		ipv4Fragment(t, 7, 3, false, whole[24:]),
		ipv4Fragment(t, 7, 0, true, whole[:24]),
	)

	s, err := Open(path, source.Options{})
	require.NoError(t, err)
	defer s.Close()

	dg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:5000"), dg.Src)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.2:6000"), dg.Dst)
	assert.Equal(t, payload, dg.Payload)
	assert.Equal(t, uint64(2), s.Skipped())
	assert.Equal(t, uint64(1), s.Reassembled())

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}
