package engine

import (
	"time"

	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/state"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// handleResponse caches every record carried in msg and checks whether any
// of them conflicts with a name we have already announced, per RFC 6762
// §9: a unique record matching one of ours but carrying different data
// after we believed the name settled means we must re-probe.
func (e *Engine) handleResponse(msg *message.Message, pkt transport.Packet) {
	now := time.Now()
	all := make([]*records.Record, 0, len(msg.Answers)+len(msg.Additionals))
	all = append(all, msg.Answers...)
	all = append(all, msg.Additionals...)

	for rs, owned := range e.ownedRecords(now) {
		phase := rs.machine.Current()
		if phase != state.Announced {
			continue
		}
		for _, our := range owned {
			if !our.Class.Unique() {
				continue
			}
			for _, their := range all {
				if !sameIdentity(our, their) || our.Same(their) {
					continue
				}
				e.logger.Printf("post-announce conflict on %s, re-probing", our.Name)
				if rs.machine.TryRevert(state.Announced) {
					e.startProbing(rs)
				}
			}
		}
	}

	for b, owned := range e.hostOwnedRecords(now) {
		if b.machine.Current() != state.Announced {
			continue
		}
		for _, our := range owned {
			if !our.Class.Unique() {
				continue
			}
			for _, their := range all {
				if !sameIdentity(our, their) || our.Same(their) {
					continue
				}
				e.logger.Printf("post-announce conflict on %s, re-probing", our.Name)
				if b.machine.TryRevert(state.Announced) {
					b.host.Rename()
					e.cache.Clear()
					e.startHostProbing(b)
				}
			}
		}
	}

	for _, r := range all {
		if r.TTL == 0 {
			e.cache.Remove(r)
			continue
		}
		e.cache.Put(r, now)
	}
}
