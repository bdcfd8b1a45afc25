package engine

import (
	"math/rand"
	"time"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
	"github.com/beacon-mdns/beacon/internal/host"
	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/state"
)

// Register publishes svc: it starts the probe/announce sequence per RFC
// 6762 §8, renaming per RFC 6762 §9 each time a probe conflict is lost.
// The number of renames is not capped.
func (e *Engine) Register(svc *host.ServiceDescriptor) error {
	if svc == nil || svc.InstanceName == "" {
		return &mdnserrors.ValidationError{Field: "service", Message: "must have a non-empty instance name"}
	}
	e.mu.Lock()
	if _, exists := e.services[svc.QualifiedName()]; exists {
		e.mu.Unlock()
		return &mdnserrors.ValidationError{Field: "instanceName", Value: svc.InstanceName, Message: "already registered"}
	}
	rs := &registeredService{svc: svc, machine: state.NewMachine(svc.QualifiedName())}
	e.services[svc.QualifiedName()] = rs
	e.mu.Unlock()

	e.startProbing(rs)
	return nil
}

// Unregister withdraws a previously registered service, sending goodbye
// (TTL=0) records three times at GoodbyeInterval per RFC 6762 §10.1, so a
// goodbye lost to a dropped multicast frame doesn't leave stale entries in
// peer caches.
func (e *Engine) Unregister(qualifiedName string) error {
	e.mu.Lock()
	rs, ok := e.services[qualifiedName]
	if !ok {
		e.mu.Unlock()
		return &mdnserrors.ValidationError{Field: "qualifiedName", Value: qualifiedName, Message: "not registered"}
	}
	delete(e.services, qualifiedName)
	e.mu.Unlock()

	rs.machine.Cancel()
	e.sendGoodbyeBurst(rs.svc.Records, rs.svc.InterfaceIndex)
	return nil
}

// sendGoodbyeBurst broadcasts recordsFor(now) with every TTL forced to 0,
// GoodbyeCount times, GoodbyeInterval apart.
func (e *Engine) sendGoodbyeBurst(recordsFor func(time.Time) []*records.Record, ifIndex int) {
	for i := 0; i < protocol.GoodbyeCount; i++ {
		goodbye := recordsFor(time.Now())
		for _, r := range goodbye {
			r.TTL = 0
		}
		e.broadcastAll(goodbye, ifIndex)
		if i < protocol.GoodbyeCount-1 {
			time.Sleep(protocol.GoodbyeInterval)
		}
	}
}

// startProbing (re)starts a service at Probing1, waiting a random 0-250ms
// per RFC 6762 §8.1 before the first probe to desynchronize simultaneous
// boots, then schedules the three probe transmissions announcing requires.
func (e *Engine) startProbing(rs *registeredService) {
	e.scheduleProbeAfter(rs, 0, randomJitter(protocol.ProbeInterval))
}

func (e *Engine) scheduleProbe(rs *registeredService, count int) {
	e.scheduleProbeAfter(rs, count, protocol.ProbeInterval)
}

func (e *Engine) scheduleProbeAfter(rs *registeredService, count int, delay time.Duration) {
	e.sched.After(delay, func(time.Time) (time.Duration, bool) {
		if rs.machine.Current() == state.Canceled {
			return 0, true
		}
		e.sendProbe(rs)
		count++
		rs.machine.Advance()
		if count >= protocol.ProbeCount {
			e.startAnnouncing(rs)
			return 0, true
		}
		e.scheduleProbe(rs, count)
		return 0, true
	})
}

// randomJitter returns a uniformly random duration in [0, max].
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

func (e *Engine) sendProbe(rs *registeredService) {
	now := time.Now()
	msg := &message.Message{
		Header: message.Header{},
		Questions: []records.Question{
			{Name: rs.svc.QualifiedName(), Type: protocol.TypeANY, Class: protocol.ClassIN},
		},
		Authorities: rs.svc.Records(now),
	}
	msg.Header.QDCount = uint16(len(msg.Questions))
	msg.Header.NSCount = uint16(len(msg.Authorities))
	if err := e.send(e.groupCtx, msg, rs.svc.InterfaceIndex, nil); err != nil {
		e.logger.Printf("probe send failed for %s: %v", rs.svc.QualifiedName(), err)
	}
}

func (e *Engine) startAnnouncing(rs *registeredService) {
	e.scheduleAnnounce(rs, 0)
}

func (e *Engine) scheduleAnnounce(rs *registeredService, count int) {
	e.sendAnnounce(rs)
	if count+1 >= protocol.AnnounceCount {
		rs.machine.Advance()
		rs.machine.Advance()
		e.scheduleRenewal(rs)
		return
	}
	e.sched.After(protocol.AnnounceInterval, func(time.Time) (time.Duration, bool) {
		if rs.machine.Current() == state.Canceled {
			return 0, true
		}
		e.scheduleAnnounce(rs, count+1)
		return 0, true
	})
}

func (e *Engine) sendAnnounce(rs *registeredService) {
	e.broadcastAll(rs.svc.Records(time.Now()), rs.svc.InterfaceIndex)
}

// scheduleRenewal re-announces an Announced name at the fractions of its
// TTL RFC 6762 §5.2 recommends, so caches refresh before expiry.
func (e *Engine) scheduleRenewal(rs *registeredService) {
	ttl := time.Duration(protocol.TTLService) * time.Second
	for _, fraction := range protocol.RenewalFractions {
		delay := time.Duration(float64(ttl) * fraction)
		e.sched.After(delay, func(time.Time) (time.Duration, bool) {
			if rs.machine.Current() != state.Announced {
				return 0, true
			}
			e.sendAnnounce(rs)
			return 0, true
		})
	}
}

func (e *Engine) broadcastAll(recs []*records.Record, ifIndex int) {
	msg := &message.Message{
		Header:  message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers: recs,
	}
	msg.Header.ANCount = uint16(len(msg.Answers))
	if err := e.send(e.groupCtx, msg, ifIndex, nil); err != nil {
		e.logger.Printf("broadcast failed: %v", err)
	}
}
