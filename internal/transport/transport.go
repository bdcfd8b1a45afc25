// Package transport sends and receives raw mDNS datagrams over the two
// multicast groups RFC 6762 §5 names, capturing the receiving interface
// index so the engine can answer only on the interface a query arrived on
// (RFC 6762 §15).
package transport

import (
	"context"
	"net"
)

// Packet is one received datagram plus where it came from.
type Packet struct {
	Data           []byte
	Source         net.Addr
	InterfaceIndex int
}

// Transport sends and receives mDNS datagrams on one address family.
type Transport interface {
	// Send transmits packet to dest (nil means the family's multicast
	// group) out interfaceIndex (0 means let the OS route it, used when
	// broadcasting a query on every joined interface).
	Send(ctx context.Context, packet []byte, dest net.Addr, interfaceIndex int) error
	// Receive blocks for the next datagram, respecting ctx's deadline.
	Receive(ctx context.Context) (Packet, error)
	Close() error
}
