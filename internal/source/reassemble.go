package source

import (
	"net/netip"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const defaultFragmentTimeout = 30 * time.Second

// fragKey identifies the fragments of one IP datagram.
type fragKey struct {
	src, dst netip.Addr
	id       uint32
	proto    layers.IPProtocol
}

type fragment struct {
	offset int
	data   []byte
}

type fragBuffer struct {
	parts     []fragment
	total     int // -1 until the last fragment arrives
	firstSeen time.Time
}

// reassembler collects IPv4 and IPv6 fragments in capture order. Time is
// capture time, so a replay expires buffers the same way a live capture
// would.
type reassembler struct {
	timeout time.Duration
	buffers map[fragKey]*fragBuffer
}

func newReassembler(timeout time.Duration) *reassembler {
	if timeout <= 0 {
		timeout = defaultFragmentTimeout
	}
	return &reassembler{timeout: timeout, buffers: make(map[fragKey]*fragBuffer)}
}

// add stores one fragment. It returns the transport bytes of the whole
// datagram once every fragment has arrived.
func (r *reassembler) add(key fragKey, offset int, more bool, data []byte, ts time.Time) ([]byte, bool) {
	r.expire(ts)

	buf, ok := r.buffers[key]
	if !ok {
		buf = &fragBuffer{total: -1, firstSeen: ts}
		r.buffers[key] = buf
	}
	for _, p := range buf.parts {
		if p.offset == offset {
			return nil, false
		}
	}
	buf.parts = append(buf.parts, fragment{offset: offset, data: append([]byte(nil), data...)})
	if !more {
		buf.total = offset + len(data)
	}
	if buf.total < 0 {
		return nil, false
	}

	sort.Slice(buf.parts, func(i, j int) bool { return buf.parts[i].offset < buf.parts[j].offset })
	covered := 0
	for _, p := range buf.parts {
		if p.offset > covered {
			return nil, false
		}
		covered = max(covered, p.offset+len(p.data))
	}
	if covered < buf.total {
		return nil, false
	}

	out := make([]byte, buf.total)
	for _, p := range buf.parts {
		if p.offset < len(out) {
			copy(out[p.offset:], p.data)
		}
	}
	delete(r.buffers, key)
	return out, true
}

func (r *reassembler) expire(now time.Time) {
	for k, b := range r.buffers {
		if now.Sub(b.firstSeen) > r.timeout {
			delete(r.buffers, k)
		}
	}
}

// pending returns the number of incomplete datagrams.
func (r *reassembler) pending() int {
	return len(r.buffers)
}

// fragmentIPv4 feeds the current IPv4 fragment and returns the reassembled
// transport bytes when complete.
func (d *FrameDecoder) fragmentIPv4(ts time.Time) ([]byte, bool) {
	ip := &d.ip4
	if ip.Protocol != layers.IPProtocolUDP {
		return nil, false
	}
	src, _ := netip.AddrFromSlice(ip.SrcIP.To4())
	dst, _ := netip.AddrFromSlice(ip.DstIP.To4())
	key := fragKey{src: src, dst: dst, id: uint32(ip.Id), proto: ip.Protocol}
	more := ip.Flags&layers.IPv4MoreFragments != 0
	return d.frags.add(key, int(ip.FragOffset)*8, more, ip.Payload, ts)
}

// fragmentIPv6 feeds the current IPv6 packet, whose next header is a
// fragment header.
func (d *FrameDecoder) fragmentIPv6(ts time.Time) ([]byte, bool) {
	ip := &d.ip6
	pkt := gopacket.NewPacket(ip.Payload, layers.LayerTypeIPv6Fragment, gopacket.NoCopy)
	frag, ok := pkt.Layer(layers.LayerTypeIPv6Fragment).(*layers.IPv6Fragment)
	if !ok || frag.NextHeader != layers.IPProtocolUDP {
		return nil, false
	}
	src, _ := netip.AddrFromSlice(ip.SrcIP)
	dst, _ := netip.AddrFromSlice(ip.DstIP)
	key := fragKey{src: src, dst: dst, id: frag.Identification, proto: frag.NextHeader}
	return d.frags.add(key, int(frag.FragmentOffset)*8, frag.MoreFragments, frag.Payload, ts)
}
