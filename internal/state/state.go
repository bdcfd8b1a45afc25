// Package state implements the probe/announce registration state machine
// per RFC 6762 §8: a descriptor moves through three probes, two
// announcements, then sits Announced until canceled.
package state

import (
	"sync"

	mdnserrors "github.com/beacon-mdns/beacon/internal/errors"
)

// Phase is one step of the probe/announce lifecycle.
type Phase int

const (
	Probing1 Phase = iota
	Probing2
	Probing3
	Announcing1
	Announcing2
	Announced
	Canceled
)

func (p Phase) String() string {
	switch p {
	case Probing1:
		return "Probing1"
	case Probing2:
		return "Probing2"
	case Probing3:
		return "Probing3"
	case Announcing1:
		return "Announcing1"
	case Announcing2:
		return "Announcing2"
	case Announced:
		return "Announced"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Probing reports whether p is one of the three probe phases.
func (p Phase) Probing() bool { return p == Probing1 || p == Probing2 || p == Probing3 }

// Announcing reports whether p is one of the two announce phases.
func (p Phase) Announcing() bool { return p == Announcing1 || p == Announcing2 }

var order = [...]Phase{Probing1, Probing2, Probing3, Announcing1, Announcing2, Announced}

// Machine is the CAS-guarded phase tracker for one owned name. It has no
// knowledge of timers or transport; Engine and the scheduler drive it.
type Machine struct {
	name string
	mu   sync.Mutex
	cur  Phase
}

// NewMachine starts a machine at Probing1 for name, used only in error
// messages and logging.
func NewMachine(name string) *Machine {
	return &Machine{name: name, cur: Probing1}
}

// Current returns the machine's phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Advance steps to the next phase in sequence. Announced is sticky: calling
// Advance again is a no-op. Canceled is terminal and rejects the call.
func (m *Machine) Advance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == Canceled {
		return &mdnserrors.StateError{Name: m.name, State: m.cur.String(), Op: "advance"}
	}
	if m.cur == Announced {
		return nil
	}
	for i, p := range order {
		if p == m.cur && i+1 < len(order) {
			m.cur = order[i+1]
			return nil
		}
	}
	return nil
}

// Revert jumps back to Probing1, as required when a conflict is detected
// after a name has already begun or finished announcing. Canceled is
// terminal and rejects the call.
func (m *Machine) Revert() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == Canceled {
		return &mdnserrors.StateError{Name: m.name, State: m.cur.String(), Op: "revert"}
	}
	m.cur = Probing1
	return nil
}

// Cancel transitions unconditionally to the terminal Canceled phase.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = Canceled
}

// TryAdvance performs a compare-and-swap style conditional advance: it only
// advances if the machine is currently in from, returning false otherwise.
// Used to guard a scheduled callback against a concurrent revert/cancel that
// happened between scheduling and firing.
func (m *Machine) TryAdvance(from Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != from {
		return false
	}
	if m.cur == Canceled || m.cur == Announced {
		return m.cur == Announced
	}
	for i, p := range order {
		if p == m.cur && i+1 < len(order) {
			m.cur = order[i+1]
			return true
		}
	}
	return false
}

// TryRevert conditionally reverts to Probing1 only if the machine is
// currently in from, guarding against a stale conflict notification racing
// a cancellation.
func (m *Machine) TryRevert(from Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != from || m.cur == Canceled {
		return false
	}
	m.cur = Probing1
	return true
}
