package afpacket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSize(t *testing.T) {
	tests := []struct {
		name     string
		bufferMB int
		snapLen  int
		pageSize int
	}{
		{"default snaplen", 8, 65535, 4096},
		{"small frames", 2, 1500, 4096},
		{"large pages", 64, 9000, 65536},
		{"tiny buffer", 1, 65535, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ringSize(tt.bufferMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)
			assert.Zero(t, g.frameSize%tpacketAlignment)
			assert.GreaterOrEqual(t, g.frameSize, tt.snapLen+tpacketHdrLen)
			assert.Zero(t, g.blockSize%tt.pageSize)
			assert.Zero(t, g.blockSize%g.frameSize)
			assert.GreaterOrEqual(t, g.numBlocks, 1)
		})
	}
}

func TestRingSizeInvalid(t *testing.T) {
	_, err := ringSize(0, 1500, 4096)
	assert.Error(t, err)
	_, err = ringSize(8, 0, 4096)
	assert.Error(t, err)
	_, err = ringSize(8, 1500, 1000)
	assert.Error(t, err)
}

func TestLCM(t *testing.T) {
	assert.Equal(t, 12, lcm(4, 6))
	assert.Equal(t, 0, lcm(0, 6))
	assert.Equal(t, 4096, lcm(4096, 16))
}
