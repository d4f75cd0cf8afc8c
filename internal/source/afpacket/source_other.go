//go:build !linux || !cgo

package afpacket

import (
	"context"
	"errors"

	"firestige.xyz/wirelab/internal/source"
)

// ErrUnsupported is returned by Open on platforms without AF_PACKET.
var ErrUnsupported = errors.New("live capture requires linux with cgo")

type Source struct{}

func Open(Config) (*Source, error) {
	return nil, ErrUnsupported
}

func (s *Source) ForEach(context.Context, func(source.Datagram) error) error {
	return ErrUnsupported
}

func (s *Source) Stats() (Stats, error) {
	return Stats{}, ErrUnsupported
}

func (s *Source) Close() error {
	return nil
}
