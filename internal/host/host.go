// Package host describes the local machine's mDNS identity: its .local.
// hostname, the addresses it answers A/AAAA queries with, and the rename
// policy RFC 6762 §9 requires on conflict.
package host

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

// Descriptor is the local host's mDNS presence on one network interface.
type Descriptor struct {
	Name      string // e.g. "my-laptop.local."
	Interface net.Interface
	IPv4      net.IP
	IPv6      net.IP
	rename    int
}

// NewDescriptor builds a Descriptor from a short hostname (without
// ".local."), normalizing it to the mDNS convention.
func NewDescriptor(hostname string, iface net.Interface, ipv4, ipv6 net.IP) *Descriptor {
	name := strings.TrimSuffix(hostname, ".")
	name = strings.TrimSuffix(name, ".local")
	return &Descriptor{
		Name:      strings.ToLower(name) + ".local.",
		Interface: iface,
		IPv4:      ipv4,
		IPv6:      ipv6,
	}
}

// Rename appends or increments a "-N" suffix on the base label (before
// ".local."), per RFC 6762 §9's host-name conflict resolution.
func (d *Descriptor) Rename() {
	d.rename++
	base := strings.TrimSuffix(d.Name, ".local.")
	base = hostRenameSuffix.ReplaceAllString(base, "")
	d.Name = fmt.Sprintf("%s-%d.local.", base, d.rename+1)
}

var hostRenameSuffix = regexp.MustCompile(`-\d+$`)

// Records returns the A/AAAA records this host answers for itself, unique
// (cache-flush) per RFC 6762 §10.2.
func (d *Descriptor) Records(now time.Time) []*records.Record {
	var out []*records.Record
	if d.IPv4 != nil {
		out = append(out, &records.Record{
			Name:      d.Name,
			Type:      protocol.TypeA,
			Class:     protocol.ClassIN.WithUnique(true),
			TTL:       protocol.TTLHostname,
			CreatedAt: now,
			Address:   &records.AddressData{IP: d.IPv4},
		})
	}
	if d.IPv6 != nil {
		out = append(out, &records.Record{
			Name:      d.Name,
			Type:      protocol.TypeAAAA,
			Class:     protocol.ClassIN.WithUnique(true),
			TTL:       protocol.TTLHostname,
			CreatedAt: now,
			Address:   &records.AddressData{IP: d.IPv6},
		})
	}
	return out
}

// qualifiedInstanceSuffix matches a service instance name's existing
// " (N)" disambiguator per RFC 6762 §9 ("(2)", "(3)", ...), the instance
// counterpart of the host name's "-N" suffix.
var qualifiedInstanceSuffix = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// ServiceDescriptor is a published DNS-SD service instance.
type ServiceDescriptor struct {
	InstanceName   string
	ServiceType    string // e.g. "_http._tcp"
	Domain         string // always "local" for mDNS
	Port           uint16
	Host           *Descriptor
	TXT            map[string]string
	InterfaceIndex int // RFC 6762 §15: receiving/owning interface
}

// QualifiedName returns the fully-qualified instance name:
// "<instance>.<type>.<domain>.", lowercased for comparison purposes by
// callers that need it (wire encoding preserves original case).
func (s *ServiceDescriptor) QualifiedName() string {
	return fmt.Sprintf("%s.%s.%s.", s.InstanceName, s.ServiceType, s.Domain)
}

// TypeName returns "<type>.<domain>.", the name PTR queries target.
func (s *ServiceDescriptor) TypeName() string {
	return fmt.Sprintf("%s.%s.", s.ServiceType, s.Domain)
}

// Rename appends or increments a " (N)" disambiguator on the instance name,
// per RFC 6762 §9.
func (s *ServiceDescriptor) Rename() {
	if m := qualifiedInstanceSuffix.FindStringSubmatch(s.InstanceName); m != nil {
		n, _ := strconv.Atoi(m[2])
		s.InstanceName = fmt.Sprintf("%s (%d)", m[1], n+1)
		return
	}
	s.InstanceName = s.InstanceName + " (2)"
}

// Records returns the full record set this service instance announces:
// PTR (type -> instance), SRV (instance -> host:port), TXT (instance ->
// metadata), per RFC 6763 §4. SRV and TXT are unique; PTR is shared (per
// RFC 6762 §10.2, PTR records are never cache-flush since multiple
// responders share one service-type pointer).
func (s *ServiceDescriptor) Records(now time.Time) []*records.Record {
	qualified := s.QualifiedName()
	recs := []*records.Record{
		{
			Name:      s.TypeName(),
			Type:      protocol.TypePTR,
			Class:     protocol.ClassIN,
			TTL:       protocol.TTLService,
			CreatedAt: now,
			Pointer:   &records.PointerData{Target: qualified},
		},
		{
			Name:      qualified,
			Type:      protocol.TypeSRV,
			Class:     protocol.ClassIN.WithUnique(true),
			TTL:       protocol.TTLService,
			CreatedAt: now,
			Service: &records.ServiceData{
				Priority: 0,
				Weight:   0,
				Port:     s.Port,
				Target:   s.Host.Name,
			},
		},
		{
			Name:      qualified,
			Type:      protocol.TypeTXT,
			Class:     protocol.ClassIN.WithUnique(true),
			TTL:       protocol.TTLService,
			CreatedAt: now,
			Text:      &records.TextData{Raw: encodeTXT(s.TXT)},
		},
	}
	return recs
}

func encodeTXT(kv map[string]string) []byte {
	if len(kv) == 0 {
		return records.EncodeTXT(nil)
	}
	pairs := make([]records.TXTPair, 0, len(kv))
	for k, v := range kv {
		pairs = append(pairs, records.TXTPair{Key: k, Value: v, HasValue: true})
	}
	return records.EncodeTXT(pairs)
}
