package engine

import (
	"time"

	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/state"
)

// startHostProbing takes b's host identity through the same probe/announce
// sequence as a registered service (RFC 6762 §8), waiting a random 0-250ms
// before the first probe to desynchronize simultaneous boots, so the
// A/AAAA records it answers with don't go live until uncontested.
func (e *Engine) startHostProbing(b *binding) {
	e.scheduleHostProbeAfter(b, 0, randomJitter(protocol.ProbeInterval))
}

func (e *Engine) scheduleHostProbe(b *binding, count int) {
	e.scheduleHostProbeAfter(b, count, protocol.ProbeInterval)
}

func (e *Engine) scheduleHostProbeAfter(b *binding, count int, delay time.Duration) {
	e.sched.After(delay, func(time.Time) (time.Duration, bool) {
		if b.machine.Current() == state.Canceled {
			return 0, true
		}
		e.sendHostProbe(b)
		count++
		b.machine.Advance()
		if count >= protocol.ProbeCount {
			e.startHostAnnouncing(b)
			return 0, true
		}
		e.scheduleHostProbe(b, count)
		return 0, true
	})
}

func (e *Engine) sendHostProbe(b *binding) {
	now := time.Now()
	msg := &message.Message{
		Questions: []records.Question{
			{Name: b.host.Name, Type: protocol.TypeANY, Class: protocol.ClassIN},
		},
		Authorities: b.host.Records(now),
	}
	msg.Header.QDCount = uint16(len(msg.Questions))
	msg.Header.NSCount = uint16(len(msg.Authorities))
	if err := e.send(e.groupCtx, msg, b.iface.Index, nil); err != nil {
		e.logger.Printf("host probe send failed for %s: %v", b.host.Name, err)
	}
}

func (e *Engine) startHostAnnouncing(b *binding) {
	e.scheduleHostAnnounce(b, 0)
}

func (e *Engine) scheduleHostAnnounce(b *binding, count int) {
	e.sendHostAnnounce(b)
	if count+1 >= protocol.AnnounceCount {
		b.machine.Advance()
		b.machine.Advance()
		return
	}
	e.sched.After(protocol.AnnounceInterval, func(time.Time) (time.Duration, bool) {
		if b.machine.Current() == state.Canceled {
			return 0, true
		}
		e.scheduleHostAnnounce(b, count+1)
		return 0, true
	})
}

func (e *Engine) sendHostAnnounce(b *binding) {
	e.broadcastAll(b.host.Records(time.Now()), b.iface.Index)
}

// sendHostGoodbye withdraws b's host identity records with a GoodbyeCount
// burst of TTL=0 announcements, per RFC 6762 §10.1, the same as a
// registered service's Unregister.
func (e *Engine) sendHostGoodbye(b *binding) {
	e.sendGoodbyeBurst(b.host.Records, b.iface.Index)
}

// hostOwnedRecords returns every host-identity record currently being
// probed, announced, or defended, for conflict detection.
func (e *Engine) hostOwnedRecords(now time.Time) map[*binding][]*records.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[*binding][]*records.Record, len(e.bindings))
	for _, b := range e.bindings {
		out[b] = b.host.Records(now)
	}
	return out
}

// onHostProbeLost defers b's probe per RFC 6762 §8.2 and renames the host
// before restarting, per RFC 6762 §9.
func (e *Engine) onHostProbeLost(b *binding, from state.Phase) {
	e.logger.Printf("host probe conflict lost for %s, renaming and deferring", b.host.Name)
	e.sched.After(time.Second, func(time.Time) (time.Duration, bool) {
		if b.machine.TryRevert(from) {
			b.host.Rename()
			e.cache.Clear()
			e.startHostProbing(b)
		}
		return 0, true
	})
}
