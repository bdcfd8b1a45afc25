package engine

import (
	"time"

	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/state"
)

// ownedRecords returns the records of every registered service, keyed by
// the service that owns them. Host A/AAAA records are not included; see
// hostOwnedRecords.
func (e *Engine) ownedRecords(now time.Time) map[*registeredService][]*records.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[*registeredService][]*records.Record, len(e.services))
	for _, rs := range e.services {
		out[rs] = rs.svc.Records(now)
	}
	return out
}

// resolveProbeConflicts implements RFC 6762 §8.2 simultaneous probe
// tie-breaking: msg's authority section carries another host's tentative
// records for the names it is probing. If one of those names is also one
// we are currently probing or announcing, CompareWire decides who defers.
func (e *Engine) resolveProbeConflicts(msg *message.Message, ifIndex int) {
	if len(msg.Authorities) == 0 {
		return
	}
	now := time.Now()
	for rs, owned := range e.ownedRecords(now) {
		phase := rs.machine.Current()
		if !phase.Probing() && !phase.Announcing() {
			continue
		}
		for _, our := range owned {
			if !our.Class.Unique() {
				continue
			}
			for _, their := range msg.Authorities {
				if !sameIdentity(our, their) {
					continue
				}
				if records.CompareWire(our, their) < 0 {
					e.onProbeLost(rs, phase)
				}
			}
		}
	}
	for b, owned := range e.hostOwnedRecords(now) {
		if b.iface.Index != ifIndex {
			continue
		}
		phase := b.machine.Current()
		if !phase.Probing() && !phase.Announcing() {
			continue
		}
		for _, our := range owned {
			for _, their := range msg.Authorities {
				if !sameIdentity(our, their) {
					continue
				}
				if records.CompareWire(our, their) < 0 {
					e.onHostProbeLost(b, phase)
				}
			}
		}
	}
}

// onProbeLost defers our probe per RFC 6762 §8.2: wait one second, rename
// the instance per RFC 6762 §9, then restart probing from Probing1.
func (e *Engine) onProbeLost(rs *registeredService, from state.Phase) {
	e.logger.Printf("probe conflict lost for %s, renaming and deferring", rs.svc.QualifiedName())
	e.sched.After(time.Second, func(time.Time) (time.Duration, bool) {
		if rs.machine.TryRevert(from) {
			rs.svc.Rename()
			e.startProbing(rs)
		}
		return 0, true
	})
}

// sameIdentity reports whether two records name the same resource record
// (ignoring TTL and payload), the granularity RFC 6762 §8.2 tie-breaks at.
func sameIdentity(a, b *records.Record) bool {
	return a.Key() == b.Key()
}
