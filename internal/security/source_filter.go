package security

import "net"

// SourceFilter validates that an incoming packet's source address is
// plausibly link-local, per RFC 6762 §2 (mDNS is a link-local protocol): a
// packet claiming to originate off-link is dropped before it reaches the
// parser.
type SourceFilter struct {
	ifaceAddrs []net.IPNet
}

// NewSourceFilter builds a filter from iface's configured addresses. If the
// interface's address list can't be read, the filter falls back to the
// link-local-only check.
func NewSourceFilter(iface net.Interface) (*SourceFilter, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return &SourceFilter{}, nil
	}
	nets := make([]net.IPNet, 0, len(addrs))
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			nets = append(nets, *ipnet)
		}
	}
	return &SourceFilter{ifaceAddrs: nets}, nil
}

// IsValid reports whether srcIP is acceptable as an mDNS packet source: an
// IPv4 link-local address (169.254.0.0/16, RFC 3927), an IPv6 link-local
// address (fe80::/10), or an address within one of the receiving
// interface's configured subnets.
func (sf *SourceFilter) IsValid(srcIP net.IP) bool {
	if srcIP.IsLinkLocalUnicast() {
		return true
	}
	for _, ipnet := range sf.ifaceAddrs {
		if ipnet.Contains(srcIP) {
			return true
		}
	}
	return false
}
