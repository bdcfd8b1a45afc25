package transport

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/protocol"
)

// UDPv4Transport is a Transport over the 224.0.0.251:5353 multicast group.
// It wraps a golang.org/x/net/ipv4.PacketConn so every received datagram
// carries the interface it arrived on, and every sent datagram can be
// pinned to a single egress interface.
type UDPv4Transport struct {
	pc     *ipv4.PacketConn
	conn   net.PacketConn
	group  *net.UDPAddr
	ifaces []net.Interface
}

// NewUDPv4Transport binds the mDNS port on all IPv4 interfaces and joins
// the mDNS multicast group on each of ifaces.
func NewUDPv4Transport(ifaces []net.Interface) (*UDPv4Transport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":5353")
	if err != nil {
		return nil, &errors.NetworkError{Operation: "listen", Err: err}
	}
	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4), Port: protocol.Port}

	joined := 0
	for _, iface := range ifaces {
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined++
		}
	}
	if joined == 0 && len(ifaces) > 0 {
		conn.Close()
		return nil, &errors.NetworkError{Operation: "join-group-v4", Err: err}
	}
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		conn.Close()
		return nil, &errors.NetworkError{Operation: "set-control-message", Err: err}
	}
	pc.SetMulticastTTL(255)
	pc.SetMulticastLoopback(false)

	return &UDPv4Transport{pc: pc, conn: conn, group: group, ifaces: ifaces}, nil
}

func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dest net.Addr, interfaceIndex int) error {
	if dest == nil {
		dest = t.group
	}
	var cm *ipv4.ControlMessage
	if interfaceIndex != 0 {
		cm = &ipv4.ControlMessage{IfIndex: interfaceIndex}
	}
	_, err := t.pc.WriteTo(packet, cm, dest)
	if err != nil {
		return &errors.NetworkError{Operation: "send", Err: err}
	}
	return nil
}

func (t *UDPv4Transport) Receive(ctx context.Context) (Packet, error) {
	applyReadDeadline(ctx, t.pc)
	done := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				t.pc.SetReadDeadline(time.Now())
			case <-done:
			}
		}()
		defer close(done)
	}

	buf := GetBuffer()
	n, cm, src, err := t.pc.ReadFrom(buf)
	if err != nil {
		PutBuffer(buf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Packet{}, ctxErr
		}
		return Packet{}, &errors.NetworkError{Operation: "receive", Err: err}
	}
	data := make([]byte, n)
	copy(data, buf[:n])
	PutBuffer(buf)

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	return Packet{Data: data, Source: src, InterfaceIndex: ifIndex}, nil
}

func (t *UDPv4Transport) Close() error {
	return t.conn.Close()
}

// UDPv6Transport is a Transport over the [ff02::fb]:5353 multicast group.
type UDPv6Transport struct {
	pc     *ipv6.PacketConn
	conn   net.PacketConn
	group  *net.UDPAddr
	ifaces []net.Interface
}

// NewUDPv6Transport binds the mDNS port on all IPv6 interfaces and joins
// the mDNS multicast group on each of ifaces.
func NewUDPv6Transport(ifaces []net.Interface) (*UDPv6Transport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp6", ":5353")
	if err != nil {
		return nil, &errors.NetworkError{Operation: "listen", Err: err}
	}
	pc := ipv6.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6), Port: protocol.Port}

	joined := 0
	for _, iface := range ifaces {
		if err := pc.JoinGroup(&iface, group); err == nil {
			joined++
		}
	}
	if joined == 0 && len(ifaces) > 0 {
		conn.Close()
		return nil, &errors.NetworkError{Operation: "join-group-v6", Err: err}
	}
	if err := pc.SetControlMessage(ipv6.FlagInterface|ipv6.FlagDst, true); err != nil {
		conn.Close()
		return nil, &errors.NetworkError{Operation: "set-control-message", Err: err}
	}
	pc.SetMulticastHopLimit(255)
	pc.SetMulticastLoopback(false)

	return &UDPv6Transport{pc: pc, conn: conn, group: group, ifaces: ifaces}, nil
}

func (t *UDPv6Transport) Send(ctx context.Context, packet []byte, dest net.Addr, interfaceIndex int) error {
	if dest == nil {
		dest = t.group
	}
	var cm *ipv6.ControlMessage
	if interfaceIndex != 0 {
		cm = &ipv6.ControlMessage{IfIndex: interfaceIndex}
	}
	_, err := t.pc.WriteTo(packet, cm, dest)
	if err != nil {
		return &errors.NetworkError{Operation: "send", Err: err}
	}
	return nil
}

func (t *UDPv6Transport) Receive(ctx context.Context) (Packet, error) {
	applyReadDeadline(ctx, t.pc)
	done := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				t.pc.SetReadDeadline(time.Now())
			case <-done:
			}
		}()
		defer close(done)
	}

	buf := GetBuffer()
	n, cm, src, err := t.pc.ReadFrom(buf)
	if err != nil {
		PutBuffer(buf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Packet{}, ctxErr
		}
		return Packet{}, &errors.NetworkError{Operation: "receive", Err: err}
	}
	data := make([]byte, n)
	copy(data, buf[:n])
	PutBuffer(buf)

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	return Packet{Data: data, Source: src, InterfaceIndex: ifIndex}, nil
}

func (t *UDPv6Transport) Close() error {
	return t.conn.Close()
}

type deadlineSetter interface {
	SetReadDeadline(time.Time) error
}

func applyReadDeadline(ctx context.Context, c deadlineSetter) {
	if dl, ok := ctx.Deadline(); ok {
		c.SetReadDeadline(dl)
		return
	}
	c.SetReadDeadline(time.Time{})
}
