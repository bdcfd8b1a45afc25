// Package network selects the host interfaces an mDNS engine should join
// multicast groups on.
package network

import "net"

var vpnPrefixes = []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"}
var dockerPrefixes = []string{"veth", "br-"}

// DefaultInterfaces returns the UP, multicast-capable, non-loopback
// interfaces suitable for mDNS, excluding common VPN and container bridge
// interfaces that never carry link-local multicast peers.
func DefaultInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	filtered := make([]net.Interface, 0, len(all))
	for _, iface := range all {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVPN(iface.Name) || isDocker(iface.Name) {
			continue
		}
		filtered = append(filtered, iface)
	}
	return filtered, nil
}

func isVPN(name string) bool {
	for _, p := range vpnPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

func isDocker(name string) bool {
	if name == "docker0" {
		return true
	}
	for _, p := range dockerPrefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// Addresses returns the first non-loopback IPv4 and first non-loopback IPv6
// address bound to iface, either of which may be nil if absent. Link-local
// addresses are not skipped.
func Addresses(iface net.Interface) (ipv4, ipv6 net.IP) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			if ipv4 == nil {
				ipv4 = v4
			}
			continue
		}
		if ipv6 == nil {
			ipv6 = ipnet.IP
		}
	}
	return ipv4, ipv6
}
