// Package udp is the datagram socket used by the listen command.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/net/ipv4"

	"firestige.xyz/wirelab/internal/log"
)

const defaultBufferSize = 65535

// Datagram is one received UDP payload.
type Datagram struct {
	Payload []byte
	Remote  netip.AddrPort
	// Local is the destination address of the datagram when the socket
	// reports it, which matters for sockets bound to a wildcard address.
	Local   netip.AddrPort
	IfIndex int
}

// Handler consumes datagrams. It runs on the read loop; slow work belongs
// in a goroutine.
type Handler func(ctx context.Context, dg Datagram)

// Server is a bound UDP socket.
type Server struct {
	conn *net.UDPConn
	pc4  *ipv4.PacketConn // nil for IPv6 sockets

	closeOnce sync.Once
}

// Listen binds network ("udp", "udp4" or "udp6") on addr.
func Listen(network, addr string) (*Server, error) {
	if network == "" {
		network = "udp4"
	}
	laddr, err := net.ResolveUDPAddr(network, addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{conn: conn}
	if local, ok := conn.LocalAddr().(*net.UDPAddr); ok && local.IP.To4() != nil {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			log.GetLogger().Debugf("udp control messages unavailable: %v", err)
		} else {
			s.pc4 = pc
		}
	}
	log.GetLogger().WithField("addr", conn.LocalAddr().String()).Info("udp socket bound")
	return s, nil
}

// LocalAddr returns the bound address.
func (s *Server) LocalAddr() netip.AddrPort {
	return unmap(s.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Serve reads datagrams and passes each one to h until ctx is done or the
// socket is closed. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	buf := make([]byte, defaultBufferSize)
	for {
		dg, err := s.read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read failed: %w", err)
		}
		h(ctx, dg)
	}
}

func (s *Server) read(buf []byte) (Datagram, error) {
	var dg Datagram
	if s.pc4 != nil {
		n, cm, src, err := s.pc4.ReadFrom(buf)
		if err != nil {
			return dg, err
		}
		dg.Payload = append([]byte(nil), buf[:n]...)
		if ua, ok := src.(*net.UDPAddr); ok {
			dg.Remote = unmap(ua.AddrPort())
		}
		if cm != nil {
			if dst, ok := netip.AddrFromSlice(cm.Dst.To4()); ok {
				dg.Local = netip.AddrPortFrom(dst, s.LocalAddr().Port())
			}
			dg.IfIndex = cm.IfIndex
		}
		return dg, nil
	}

	n, remote, err := s.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return dg, err
	}
	dg.Payload = append([]byte(nil), buf[:n]...)
	dg.Remote = unmap(remote)
	return dg, nil
}

// Send writes one datagram to addr.
func (s *Server) Send(addr netip.AddrPort, payload []byte) error {
	if _, err := s.conn.WriteToUDPAddrPort(payload, addr); err != nil {
		return fmt.Errorf("udp send to %s failed: %w", addr, err)
	}
	return nil
}

// Close closes the socket. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}
