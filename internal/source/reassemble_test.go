package source

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblerExpiresByCaptureTime(t *testing.T) {
	r := newReassembler(time.Second)
	key := fragKey{src: netip.MustParseAddr("10.0.0.1"), dst: netip.MustParseAddr("10.0.0.2"), id: 1, proto: layers.IPProtocolUDP}
	base := time.Unix(1700000000, 0)

	_, ok := r.add(key, 0, true, make([]byte, 8), base)
	assert.False(t, ok)
	assert.Equal(t, 1, r.pending())

	// The tail arrives too late; the head was dropped.
	_, ok = r.add(key, 8, false, []byte{1, 2}, base.Add(2*time.Second))
	assert.False(t, ok)
	assert.Equal(t, 1, r.pending())

	out, ok := r.add(key, 0, true, make([]byte, 8), base.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, append(make([]byte, 8), 1, 2), out)
	assert.Equal(t, 0, r.pending())
}
