// Package file replays UDP datagrams from pcap and pcapng capture files.
package file

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/source"
)

// pcapng section header block type
const ngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source reads UDP datagrams from a capture file. It is not safe for
// concurrent use.
type Source struct {
	path string
	f    *os.File
	r    packetReader
	dec  *source.FrameDecoder

	skipped uint64
}

// Open opens a pcap or pcapng file; the format is detected from its magic.
func Open(path string, opts source.Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture header %s: %w", path, err)
	}

	var r packetReader
	if binary.BigEndian.Uint32(magic) == ngMagic {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}

	dec, err := source.NewFrameDecoder(r.LinkType(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Source{path: path, f: f, r: r, dec: dec}, nil
}

// Next returns the next UDP datagram accepted by the filter, or io.EOF.
// Frames that are not UDP, fragments of a still incomplete datagram and
// frames that fail to decode are skipped.
func (s *Source) Next() (source.Datagram, error) {
	for {
		data, ci, err := s.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return source.Datagram{}, io.EOF
			}
			return source.Datagram{}, fmt.Errorf("failed to read packet: %w", err)
		}
		if dg, ok := s.dec.Decode(data, ci); ok {
			return dg, nil
		}
		s.skipped++
	}
}

// ForEach calls fn for every datagram until the file ends, fn fails or ctx
// is done.
func (s *Source) ForEach(ctx context.Context, fn func(source.Datagram) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		dg, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(dg); err != nil {
			return err
		}
	}
}

// Skipped returns how many frames were read but not yielded.
func (s *Source) Skipped() uint64 {
	return s.skipped
}

// Reassembled returns how many yielded datagrams were rebuilt from
// fragments.
func (s *Source) Reassembled() uint64 {
	return s.dec.Reassembled()
}

// Close closes the underlying file.
func (s *Source) Close() error {
	if s.f == nil {
		return nil
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"path":        s.path,
		"skipped":     s.skipped,
		"reassembled": s.dec.Reassembled(),
		"incomplete":  s.dec.Incomplete(),
	}).Debug("capture file closed")
	err := s.f.Close()
	s.f = nil
	return err
}
