package afpacket

import "fmt"

const (
	tpacketAlignment = 16
	// TPACKET3_HDRLEN, rounded up
	tpacketHdrLen = 52
	maxBlockSize  = 4 << 20
)

// ringGeometry is the PACKET_MMAP layout for one capture socket.
type ringGeometry struct {
	frameSize int
	blockSize int
	numBlocks int
}

// ringSize lays out a ring of roughly bufferMB megabytes holding frames of
// snapLen bytes. Frames are aligned to TPACKET_ALIGNMENT and every block is
// a whole number of pages and of frames.
func ringSize(bufferMB, snapLen, pageSize int) (ringGeometry, error) {
	if bufferMB <= 0 {
		return ringGeometry{}, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return ringGeometry{}, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return ringGeometry{}, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frame := alignUp(tpacketHdrLen+snapLen, tpacketAlignment)
	block := lcm(pageSize, frame)
	if block > maxBlockSize {
		// pad frames to whole pages so one frame fills a block
		frame = alignUp(frame, pageSize)
		block = frame
	}

	blocks := (bufferMB << 20) / block
	if blocks < 1 {
		blocks = 1
	}
	return ringGeometry{frameSize: frame, blockSize: block, numBlocks: blocks}, nil
}

func alignUp(n, to int) int {
	return (n + to - 1) / to * to
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
