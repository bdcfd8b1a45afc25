// Package records defines the resource-record value model shared by the
// wire codec, the cache, and the conflict resolver, and implements the
// cache itself.
//
// A Record collapses the wire format's A/AAAA/PTR/SRV/TXT/HINFO/OPT
// variants into one tagged struct rather than a class per type: every
// operation dispatches on Type, which keeps comparison, suppression, and
// tie-breaking in one place instead of duplicated across a parallel class
// hierarchy.
package records

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/beacon-mdns/beacon/internal/protocol"
)

// AddressData carries an A or AAAA payload.
type AddressData struct {
	IP net.IP
}

// PointerData carries a PTR (or CNAME) payload: the aliased name.
type PointerData struct {
	Target string
}

// TextData carries a DNS-SD TXT payload as its raw length-prefixed byte
// block; Pairs() decodes it lazily since most callers never look inside.
type TextData struct {
	Raw []byte
}

// Pairs decodes the TXT record into key/value pairs per RFC 6763 §6.3/6.4.
// A bare key (no '=') is reported with an empty Value and HasValue false,
// denoting boolean-true.
func (t *TextData) Pairs() []TXTPair {
	var pairs []TXTPair
	buf := t.Raw
	for len(buf) > 0 {
		n := int(buf[0])
		buf = buf[1:]
		if n == 0 {
			break
		}
		if n > len(buf) {
			break
		}
		entry := buf[:n]
		buf = buf[n:]
		if i := bytes.IndexByte(entry, '='); i >= 0 {
			pairs = append(pairs, TXTPair{Key: string(entry[:i]), Value: string(entry[i+1:]), HasValue: true})
		} else {
			pairs = append(pairs, TXTPair{Key: string(entry)})
		}
	}
	return pairs
}

// TXTPair is one decoded DNS-SD TXT key/value entry.
type TXTPair struct {
	Key      string
	Value    string
	HasValue bool
}

// EncodeTXT encodes key/value pairs into DNS-SD TXT wire format. An empty
// set of pairs encodes as a single zero-length string per RFC 6763 §6.1.
func EncodeTXT(pairs []TXTPair) []byte {
	if len(pairs) == 0 {
		return []byte{0}
	}
	var out []byte
	for _, p := range pairs {
		entry := p.Key
		if p.HasValue {
			entry = entry + "=" + p.Value
		}
		if len(entry) > 255 {
			entry = entry[:255]
		}
		out = append(out, byte(len(entry)))
		out = append(out, entry...)
	}
	return out
}

// ServiceData carries an SRV payload per RFC 2782.
type ServiceData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// HostInfoData carries an HINFO payload per RFC 1035 §3.3.2.
type HostInfoData struct {
	CPU string
	OS  string
}

// OptAttribute is one EDNS0 option within an OPT record; Non-goals exclude
// interpreting these, so they are only retained for round-tripping.
type OptAttribute struct {
	Code uint16
	Data []byte
}

// OptData carries an OPT (EDNS0) pseudo-record's payload: the sender's UDP
// payload size (smuggled in the class field) and its option list.
type OptData struct {
	UDPPayloadSize uint16
	Attributes     []OptAttribute
}

// Record is a single DNS resource record, identified by Name+Type+Class and
// carrying exactly one payload variant selected by Type.
type Record struct {
	Name      string
	Type      protocol.Type
	Class     protocol.Class
	TTL       uint32
	CreatedAt time.Time
	Source    net.Addr

	Address  *AddressData
	Pointer  *PointerData
	Text     *TextData
	Service  *ServiceData
	HostInfo *HostInfoData
	Opt      *OptData
}

// normalizedName returns the name lowercased with a single trailing dot,
// the form identity and cache keys are computed from.
func normalizedName(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}

// Key returns the cache key for this record: lowercased name, type, and
// class with the unique bit stripped.
func (r *Record) Key() string {
	return fmt.Sprintf("%s|%d|%d", normalizedName(r.Name), r.Type, r.Class.Base())
}

// ExpiresAt returns the wall-clock time at which the record's TTL reaches
// zero.
func (r *Record) ExpiresAt() time.Time {
	return r.CreatedAt.Add(time.Duration(r.TTL) * time.Second)
}

// RemainingTTL returns the whole seconds of TTL left at now, floored at 0.
func (r *Record) RemainingTTL(now time.Time) uint32 {
	remaining := r.ExpiresAt().Sub(now)
	if remaining <= 0 {
		return 0
	}
	return uint32(remaining.Seconds())
}

// IsStale reports whether at least half of the record's TTL has elapsed,
// the point at which a cache should begin re-querying for it.
func (r *Record) IsStale(now time.Time) bool {
	half := r.CreatedAt.Add(time.Duration(r.TTL) * time.Second / 2)
	return !now.Before(half)
}

// IsExpired reports whether the record's full TTL has elapsed.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt())
}

// ResetTTL refreshes CreatedAt/TTL in place, as the cache does when a
// refresh of an already-cached record arrives instead of a superseding one.
func (r *Record) ResetTTL(ttl uint32, now time.Time) {
	r.TTL = ttl
	r.CreatedAt = now
}

// payloadEqual reports whether two records of the same Type carry the same
// payload bytes.
func payloadEqual(a, b *Record) bool {
	switch a.Type {
	case protocol.TypeA, protocol.TypeAAAA:
		if a.Address == nil || b.Address == nil {
			return a.Address == b.Address
		}
		return a.Address.IP.Equal(b.Address.IP)
	case protocol.TypePTR:
		if a.Pointer == nil || b.Pointer == nil {
			return a.Pointer == b.Pointer
		}
		return strings.EqualFold(normalizedName(a.Pointer.Target), normalizedName(b.Pointer.Target))
	case protocol.TypeTXT:
		if a.Text == nil || b.Text == nil {
			return a.Text == b.Text
		}
		return bytes.Equal(a.Text.Raw, b.Text.Raw)
	case protocol.TypeSRV:
		if a.Service == nil || b.Service == nil {
			return a.Service == b.Service
		}
		return a.Service.Priority == b.Service.Priority &&
			a.Service.Weight == b.Service.Weight &&
			a.Service.Port == b.Service.Port &&
			strings.EqualFold(normalizedName(a.Service.Target), normalizedName(b.Service.Target))
	case protocol.TypeHINFO:
		if a.HostInfo == nil || b.HostInfo == nil {
			return a.HostInfo == b.HostInfo
		}
		return a.HostInfo.CPU == b.HostInfo.CPU && a.HostInfo.OS == b.HostInfo.OS
	case protocol.TypeOPT:
		if a.Opt == nil || b.Opt == nil {
			return a.Opt == b.Opt
		}
		return a.Opt.UDPPayloadSize == b.Opt.UDPPayloadSize
	default:
		return false
	}
}

// Same reports whether two records are the same resource record per the
// cache's identity rule: name (case-insensitive) + type + class match and
// the payload compares equal. TTL is explicitly not part of identity.
func (r *Record) Same(other *Record) bool {
	if other == nil {
		return false
	}
	if normalizedName(r.Name) != normalizedName(other.Name) {
		return false
	}
	if r.Type != other.Type || r.Class.Base() != other.Class.Base() {
		return false
	}
	return payloadEqual(r, other)
}

// wirePayload returns the canonical payload bytes used for tie-breaking,
// in the same encoding CompareWire expects: big-endian numeric fields,
// names lowercased with a single trailing dot. It never returns an error — unencodable
// payloads (nil pointers for the active Type) simply compare as empty.
func (r *Record) wirePayload() []byte {
	switch r.Type {
	case protocol.TypeA, protocol.TypeAAAA:
		if r.Address == nil {
			return nil
		}
		return []byte(r.Address.IP)
	case protocol.TypePTR:
		if r.Pointer == nil {
			return nil
		}
		return []byte(normalizedName(r.Pointer.Target))
	case protocol.TypeTXT:
		if r.Text == nil {
			return nil
		}
		return r.Text.Raw
	case protocol.TypeSRV:
		if r.Service == nil {
			return nil
		}
		buf := make([]byte, 0, 6+len(r.Service.Target))
		buf = append(buf, byte(r.Service.Priority>>8), byte(r.Service.Priority))
		buf = append(buf, byte(r.Service.Weight>>8), byte(r.Service.Weight))
		buf = append(buf, byte(r.Service.Port>>8), byte(r.Service.Port))
		buf = append(buf, normalizedName(r.Service.Target)...)
		return buf
	case protocol.TypeHINFO:
		if r.HostInfo == nil {
			return nil
		}
		return []byte(r.HostInfo.CPU + " " + r.HostInfo.OS)
	default:
		return nil
	}
}

// CompareWire implements the RFC 6762 §8.2 tie-break: compare class, then
// type, then payload bytes lexicographically. The numerically greater
// record wins (returns > 0). Used for simultaneous-probe conflict
// resolution; the cache does not use it.
func CompareWire(a, b *Record) int {
	if d := int(a.Class.Base()) - int(b.Class.Base()); d != 0 {
		return d
	}
	if d := int(a.Type) - int(b.Type); d != 0 {
		return d
	}
	return bytes.Compare(a.wirePayload(), b.wirePayload())
}

// SuppressedBy implements known-answer suppression per RFC 6762 §7.1: a
// proposed outgoing record may be omitted if known already carries an
// equal record whose remaining TTL exceeds half of ours.
func (r *Record) SuppressedBy(known []*Record, now time.Time) bool {
	for _, k := range known {
		if !r.Same(k) {
			continue
		}
		if k.RemainingTTL(now) > r.TTL/2 {
			return true
		}
	}
	return false
}

// String renders a record for logs and debug output.
func (r *Record) String() string {
	return fmt.Sprintf("%s %s %s ttl=%d", r.Name, r.Type, r.payloadString(), r.TTL)
}

func (r *Record) payloadString() string {
	switch r.Type {
	case protocol.TypeA, protocol.TypeAAAA:
		if r.Address == nil {
			return "<nil>"
		}
		return r.Address.IP.String()
	case protocol.TypePTR:
		if r.Pointer == nil {
			return "<nil>"
		}
		return r.Pointer.Target
	case protocol.TypeSRV:
		if r.Service == nil {
			return "<nil>"
		}
		return r.Service.Target + ":" + strconv.Itoa(int(r.Service.Port))
	case protocol.TypeTXT:
		if r.Text == nil {
			return "<nil>"
		}
		return fmt.Sprintf("%d bytes", len(r.Text.Raw))
	default:
		return ""
	}
}
