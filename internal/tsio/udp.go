package tsio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/net/ipv4"
)

// MaxDatagram bounds the size of received datagrams.
const MaxDatagram = 65507

// UDPSource receives datagrams on a UDP port, joining the group first when
// the address is multicast.
type UDPSource struct {
	conn  *net.UDPConn
	pc    *ipv4.PacketConn
	group net.IP
	ifi   *net.Interface

	ring    *Ring[[]byte]
	dropped atomic.Int64
}

// ListenUDP opens addr (host:port). ifname picks the interface for the
// multicast join; empty lets the system choose.
func ListenUDP(addr, ifname string, ringSize int) (*UDPSource, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	var ifi *net.Interface
	if ifname != "" {
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return nil, err
		}
	}
	listen := ua
	if ua.IP.IsMulticast() {
		listen = &net.UDPAddr{Port: ua.Port}
	}
	conn, err := net.ListenUDP("udp4", listen)
	if err != nil {
		return nil, err
	}
	s := &UDPSource{conn: conn, pc: ipv4.NewPacketConn(conn), ifi: ifi, ring: NewRing[[]byte](ringSize)}
	if ua.IP.IsMulticast() {
		if err := s.pc.JoinGroup(ifi, &net.UDPAddr{IP: ua.IP}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("join %s: %w", ua.IP, err)
		}
		s.group = ua.IP
	}
	return s, nil
}

// LocalAddr is the bound address.
func (s *UDPSource) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Dropped counts datagrams refused by a full ring.
func (s *UDPSource) Dropped() int64 { return s.dropped.Load() }

// Run reads datagrams into the ring until ctx is done or the socket fails.
func (s *UDPSource) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	buf := make([]byte, MaxDatagram)
	for {
		n, _, _, err := s.pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return err
		}
		if !s.ring.TryPush(append([]byte(nil), buf[:n]...)) {
			s.dropped.Add(1)
		}
	}
}

// Next blocks until a datagram is queued or ctx is done.
func (s *UDPSource) Next(ctx context.Context) ([]byte, error) {
	var one [1][]byte
	for {
		if s.ring.TryPopBatch(one[:]) == 1 {
			return one[0], nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ring.Ready():
		}
	}
}

func (s *UDPSource) Close() error {
	if s.group != nil {
		_ = s.pc.LeaveGroup(s.ifi, &net.UDPAddr{IP: s.group})
	}
	return s.conn.Close()
}

// UDPSink sends datagrams to a unicast or multicast destination.
type UDPSink struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr
}

// DialUDP prepares a sink for addr. Multicast traffic uses ttl and is looped
// back to local listeners.
func DialUDP(addr string, ttl int) (*UDPSink, error) {
	dst, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(conn)
	if dst.IP.IsMulticast() {
		if err := pc.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, err
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &UDPSink{conn: conn, pc: pc, dst: dst}, nil
}

func (s *UDPSink) Send(b []byte) error {
	_, err := s.pc.WriteTo(b, nil, s.dst)
	return err
}

func (s *UDPSink) Close() error { return s.conn.Close() }
