//go:build linux && cgo

package afpacket

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/source"
)

// Source reads datagrams from a TPACKET_V3 ring. It is not safe for
// concurrent use.
type Source struct {
	iface  string
	handle *afpacket.TPacket
	dec    *source.FrameDecoder

	skipped uint64
}

// Open binds a capture socket to cfg.Interface and installs a UDP filter.
func Open(cfg Config) (*Source, error) {
	cfg = cfg.withDefaults()
	g, err := ringSize(cfg.BufferMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	h, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(g.frameSize),
		afpacket.OptBlockSize(g.blockSize),
		afpacket.OptNumBlocks(g.numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture on %s: %w", cfg.Interface, err)
	}

	if cfg.FanoutID > 0 {
		if err := h.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutID); err != nil {
			h.Close()
			return nil, fmt.Errorf("failed to join fanout group %d: %w", cfg.FanoutID, err)
		}
	}

	filter, err := udpFilter(cfg.Options.Port)
	if err == nil {
		err = h.SetBPF(filter)
	}
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to install filter: %w", err)
	}

	dec, err := source.NewFrameDecoder(layers.LinkTypeEthernet, cfg.Options)
	if err != nil {
		h.Close()
		return nil, err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  cfg.Interface,
		"frame_size": g.frameSize,
		"block_size": g.blockSize,
		"blocks":     g.numBlocks,
		"port":       cfg.Options.Port,
	}).Info("capture socket opened")
	return &Source{iface: cfg.Interface, handle: h, dec: dec}, nil
}

// ForEach calls fn for every captured datagram until ctx is done or fn
// fails.
func (s *Source) ForEach(ctx context.Context, fn func(source.Datagram) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ci, err := s.handle.ReadPacketData()
		if errors.Is(err, afpacket.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read from %s: %w", s.iface, err)
		}
		dg, ok := s.dec.Decode(data, ci)
		if !ok {
			s.skipped++
			continue
		}
		if err := fn(dg); err != nil {
			return err
		}
	}
}

// Stats returns kernel and decoder counters.
func (s *Source) Stats() (Stats, error) {
	st := Stats{Skipped: s.skipped, Reassembled: s.dec.Reassembled()}
	_, v3, err := s.handle.SocketStats()
	if err != nil {
		return st, err
	}
	st.Packets = v3.Packets()
	st.Drops = v3.Drops()
	return st, nil
}

// Close releases the ring.
func (s *Source) Close() error {
	if s.handle == nil {
		return nil
	}
	if st, err := s.Stats(); err == nil {
		log.GetLogger().WithFields(map[string]interface{}{
			"interface":   s.iface,
			"packets":     st.Packets,
			"drops":       st.Drops,
			"skipped":     st.Skipped,
			"reassembled": st.Reassembled,
		}).Info("capture socket closed")
	}
	s.handle.Close()
	s.handle = nil
	return nil
}
