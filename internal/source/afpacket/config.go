// Package afpacket captures UDP datagrams from a live interface through a
// TPACKET_V3 ring.
package afpacket

import (
	"time"

	"firestige.xyz/wirelab/internal/source"
)

// Config describes one capture socket.
type Config struct {
	Interface string
	// SnapLen is the largest frame kept, in bytes.
	SnapLen  int
	BufferMB int
	// PollTimeout bounds each wait for the ring so cancellation is noticed.
	PollTimeout time.Duration
	// FanoutID, when non-zero, joins a hash fanout group so several
	// processes can share the interface.
	FanoutID uint16

	Options source.Options
}

// Stats counts what a source has seen so far.
type Stats struct {
	// Packets and Drops come from the kernel.
	Packets     uint
	Drops       uint
	Skipped     uint64
	Reassembled uint64
}

func (c Config) withDefaults() Config {
	if c.SnapLen <= 0 {
		c.SnapLen = 65535
	}
	if c.BufferMB <= 0 {
		c.BufferMB = 8
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 200 * time.Millisecond
	}
	return c
}
