// Package source turns captured link-layer frames into UDP datagrams. The
// file and afpacket subpackages feed it frames from capture files and live
// interfaces.
package source

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Datagram is one UDP payload taken from a captured frame.
type Datagram struct {
	Time    time.Time
	Src     netip.AddrPort
	Dst     netip.AddrPort
	Payload []byte
}

// Options filters what a source yields.
type Options struct {
	// Port, when non-zero, keeps only datagrams with this source or
	// destination port.
	Port uint16
	// FragmentTimeout bounds how long, in capture time, fragments wait for
	// the rest of their datagram. Zero means 30s.
	FragmentTimeout time.Duration
}

// FrameDecoder extracts UDP datagrams from frames of one link type,
// reassembling IPv4 and IPv6 fragments. It is not safe for concurrent use.
type FrameDecoder struct {
	opts  Options
	first gopacket.LayerType

	eth  layers.Ethernet
	vlan layers.Dot1Q
	sll  layers.LinuxSLL
	loop layers.Loopback
	ip4  layers.IPv4
	ip6  layers.IPv6
	udp  layers.UDP

	parsers map[gopacket.LayerType]*gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	frags   *reassembler

	reassembled uint64
}

// NewFrameDecoder returns a decoder for frames of link type lt.
func NewFrameDecoder(lt layers.LinkType, opts Options) (*FrameDecoder, error) {
	first, err := firstLayer(lt)
	if err != nil {
		return nil, err
	}
	return &FrameDecoder{
		opts:    opts,
		first:   first,
		parsers: make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		frags:   newReassembler(opts.FragmentTimeout),
	}, nil
}

func firstLayer(lt layers.LinkType) (gopacket.LayerType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, nil
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, nil
	}
	return gopacket.LayerTypeZero, fmt.Errorf("unsupported link type %s", lt)
}

func (d *FrameDecoder) parser(first gopacket.LayerType) *gopacket.DecodingLayerParser {
	if p, ok := d.parsers[first]; ok {
		return p
	}
	p := gopacket.NewDecodingLayerParser(first, &d.eth, &d.vlan, &d.sll, &d.loop, &d.ip4, &d.ip6, &d.udp)
	p.IgnoreUnsupported = true
	d.parsers[first] = p
	return p
}

// Decode returns the datagram carried by data. It reports false for frames
// that are not UDP, do not pass the port filter, or are fragments of a
// datagram that is still incomplete. A reassembled datagram carries the
// timestamp of its last fragment. The payload aliases data.
func (d *FrameDecoder) Decode(data []byte, ci gopacket.CaptureInfo) (Datagram, bool) {
	first := d.first
	if first == layers.LayerTypeIPv4 && len(data) > 0 && data[0]>>4 == 6 {
		// raw captures carry both families
		first = layers.LayerTypeIPv6
	}
	if err := d.parser(first).DecodeLayers(data, &d.decoded); err != nil {
		return Datagram{}, false
	}

	var src, dst netip.Addr
	isUDP := false
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			src, _ = netip.AddrFromSlice(d.ip4.SrcIP.To4())
			dst, _ = netip.AddrFromSlice(d.ip4.DstIP.To4())
			if d.ip4.Flags&layers.IPv4MoreFragments != 0 || d.ip4.FragOffset != 0 {
				whole, ok := d.fragmentIPv4(ci.Timestamp)
				if !ok || d.udp.DecodeFromBytes(whole, gopacket.NilDecodeFeedback) != nil {
					return Datagram{}, false
				}
				d.reassembled++
				isUDP = true
			}
		case layers.LayerTypeIPv6:
			src, _ = netip.AddrFromSlice(d.ip6.SrcIP)
			dst, _ = netip.AddrFromSlice(d.ip6.DstIP)
			if d.ip6.NextHeader == layers.IPProtocolIPv6Fragment {
				whole, ok := d.fragmentIPv6(ci.Timestamp)
				if !ok || d.udp.DecodeFromBytes(whole, gopacket.NilDecodeFeedback) != nil {
					return Datagram{}, false
				}
				d.reassembled++
				isUDP = true
			}
		case layers.LayerTypeUDP:
			isUDP = true
		}
	}
	if !isUDP {
		return Datagram{}, false
	}

	sport, dport := uint16(d.udp.SrcPort), uint16(d.udp.DstPort)
	if d.opts.Port != 0 && sport != d.opts.Port && dport != d.opts.Port {
		return Datagram{}, false
	}
	return Datagram{
		Time:    ci.Timestamp,
		Src:     netip.AddrPortFrom(src, sport),
		Dst:     netip.AddrPortFrom(dst, dport),
		Payload: d.udp.Payload,
	}, true
}

// Reassembled returns how many datagrams were rebuilt from fragments.
func (d *FrameDecoder) Reassembled() uint64 {
	return d.reassembled
}

// Incomplete returns how many fragmented datagrams are still waiting.
func (d *FrameDecoder) Incomplete() int {
	return d.frags.pending()
}
