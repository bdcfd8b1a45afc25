package engine

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/state"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// servicesTypeEnumerationName is the well-known PTR query name for DNS-SD
// service-type enumeration per RFC 6763 §9.
const servicesTypeEnumerationName = "_services._dns-sd._udp.local."

// handleQuery answers msg if this engine is authoritative for any question
// it carries, after resolving simultaneous-probe conflicts from msg's
// authority section per RFC 6762 §8.2.
func (e *Engine) handleQuery(ctx context.Context, msg *message.Message, pkt transport.Packet) {
	e.resolveProbeConflicts(msg, pkt.InterfaceIndex)

	e.mu.Lock()
	b := e.bindings[pkt.InterfaceIndex]
	e.mu.Unlock()
	if b == nil {
		return
	}

	now := time.Now()
	var answers []*records.Record
	var additionals []*records.Record
	seen := map[string]bool{}

	addRecord := func(dst *[]*records.Record, r *records.Record) {
		key := r.Key() + "|" + r.String()
		if seen[key] {
			return
		}
		seen[key] = true
		*dst = append(*dst, r)
	}

	for _, q := range msg.Questions {
		if normalize(q.Name) == servicesTypeEnumerationName {
			e.mu.Lock()
			for _, rs := range e.services {
				addRecord(&answers, &records.Record{
					Name:      servicesTypeEnumerationName,
					Type:      protocol.TypePTR,
					Class:     protocol.ClassIN,
					TTL:       protocol.TTLService,
					CreatedAt: now,
					Pointer:   &records.PointerData{Target: rs.svc.TypeName()},
				})
			}
			for t := range e.registeredTypes {
				addRecord(&answers, &records.Record{
					Name:      servicesTypeEnumerationName,
					Type:      protocol.TypePTR,
					Class:     protocol.ClassIN,
					TTL:       protocol.TTLService,
					CreatedAt: now,
					Pointer:   &records.PointerData{Target: normalize(t + ".local")},
				})
			}
			e.mu.Unlock()
			continue
		}

		for _, r := range b.host.Records(now) {
			if q.Matches(r) {
				addRecord(&answers, r)
			}
		}

		e.mu.Lock()
		for _, rs := range e.services {
			if rs.machine.Current() != state.Announced {
				continue
			}
			for _, r := range rs.svc.Records(now) {
				if q.Matches(r) {
					addRecord(&answers, r)
					e.addAdditionalsFor(rs, r, now, addRecord, &additionals)
				}
			}
		}
		e.mu.Unlock()
	}

	if len(answers) == 0 {
		return
	}

	answers = suppressKnown(answers, msg.Answers, now)
	additionals = suppressKnown(additionals, msg.Answers, now)
	if len(answers) == 0 {
		return
	}

	delay := protocol.ResponderDelayMin + time.Duration(rand.Int63n(int64(protocol.ResponderDelayMax-protocol.ResponderDelayMin)))
	ifIndex := pkt.InterfaceIndex
	e.sched.After(delay, func(time.Time) (time.Duration, bool) {
		e.sendResponse(ifIndex, answers, additionals)
		return 0, true
	})
}

// addAdditionalsFor appends the records that reduce round-trips for a PTR
// or SRV answer: PTR -> SRV+TXT+host A/AAAA; SRV -> host A/AAAA.
func (e *Engine) addAdditionalsFor(rs *registeredService, answered *records.Record, now time.Time, addRecord func(*[]*records.Record, *records.Record), additionals *[]*records.Record) {
	switch answered.Type {
	case protocol.TypePTR:
		for _, r := range rs.svc.Records(now) {
			if r.Type != protocol.TypePTR {
				addRecord(additionals, r)
			}
		}
		for _, r := range rs.svc.Host.Records(now) {
			addRecord(additionals, r)
		}
	case protocol.TypeSRV:
		for _, r := range rs.svc.Host.Records(now) {
			addRecord(additionals, r)
		}
	}
}

// suppressKnown drops records already satisfied by knownAnswers per RFC
// 6762 §7.1.
func suppressKnown(proposed []*records.Record, known []*records.Record, now time.Time) []*records.Record {
	var out []*records.Record
	for _, r := range proposed {
		if !r.SuppressedBy(known, now) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) sendResponse(ifIndex int, answers, additionals []*records.Record) {
	msg := &message.Message{
		Header:      message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers:     answers,
		Additionals: e.fitAdditionals(answers, additionals),
	}
	msg.Header.ANCount = uint16(len(msg.Answers))
	msg.Header.ARCount = uint16(len(msg.Additionals))
	if err := e.send(e.groupCtx, msg, ifIndex, nil); err != nil {
		e.logger.Printf("send response failed: %v", err)
	}
}

// fitAdditionals greedily keeps additional records until the estimated
// wire size would exceed maxPacketSize, per RFC 6762 §17. The answer
// section is never truncated.
func (e *Engine) fitAdditionals(answers, additionals []*records.Record) []*records.Record {
	size := 12
	for _, r := range answers {
		size += estimateSize(r)
	}
	var kept []*records.Record
	for _, r := range additionals {
		rs := estimateSize(r)
		if size+rs > e.maxPacketSize {
			continue
		}
		size += rs
		kept = append(kept, r)
	}
	return kept
}

func estimateSize(r *records.Record) int {
	return len(r.Name) + 1 + 10 + 64
}

func normalize(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}
