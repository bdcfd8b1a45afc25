package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/beacon-mdns/beacon/internal/host"
	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/scheduler"
	"github.com/beacon-mdns/beacon/internal/state"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// newTestEngine builds an Engine directly (white-box) so tests don't
// depend on real network interfaces or sockets.
func newTestEngine(v4 *transport.MockTransport) *Engine {
	iface := net.Interface{Index: 1, Name: "test0"}
	e := &Engine{
		bindings: map[int]*binding{
			1: {
				iface:   iface,
				host:    host.NewDescriptor("test-host", iface, net.ParseIP("192.168.1.10"), nil),
				machine: state.NewMachine("test-host"),
			},
		},
		services:      make(map[string]*registeredService),
		cache:         records.NewCache(),
		sched:         scheduler.New(),
		v4:            v4,
		maxPacketSize: protocol.MaxUDPPayloadSize,
		logger:        noopLogger{},
		groupCtx:      context.Background(),
	}
	return e
}

func testService(e *Engine) *host.ServiceDescriptor {
	hostDesc := host.NewDescriptor("test-host", net.Interface{Index: 1}, net.ParseIP("192.168.1.10"), nil)
	return &host.ServiceDescriptor{
		InstanceName:   "My Service",
		ServiceType:    "_http._tcp",
		Domain:         "local",
		Port:           8080,
		Host:           hostDesc,
		TXT:            map[string]string{"path": "/"},
		InterfaceIndex: 1,
	}
}

func TestSuppressKnownAnswerRespectsHalfTTLThreshold(t *testing.T) {
	now := time.Now()
	proposed := &records.Record{
		Name: "host.local.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 120, CreatedAt: now,
		Address: &records.AddressData{IP: net.ParseIP("192.168.1.10")},
	}
	fresh := &records.Record{
		Name: "host.local.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 100, CreatedAt: now,
		Address: &records.AddressData{IP: net.ParseIP("192.168.1.10")},
	}
	out := suppressKnown([]*records.Record{proposed}, []*records.Record{fresh}, now)
	if len(out) != 0 {
		t.Fatalf("expected record to be suppressed, got %d survivors", len(out))
	}

	stale := &records.Record{
		Name: "host.local.", Type: protocol.TypeA, Class: protocol.ClassIN, TTL: 10, CreatedAt: now,
		Address: &records.AddressData{IP: net.ParseIP("192.168.1.10")},
	}
	out = suppressKnown([]*records.Record{proposed}, []*records.Record{stale}, now)
	if len(out) != 1 {
		t.Fatalf("expected record to survive (known answer nearly expired), got %d", len(out))
	}
}

func TestHandleQueryAnswersRegisteredServicePTR(t *testing.T) {
	mock := transport.NewMockTransport(4)
	e := newTestEngine(mock)
	svc := testService(e)
	rs := &registeredService{svc: svc, machine: state.NewMachine(svc.QualifiedName())}
	rs.machine.Advance() // Probing1 -> Probing2
	rs.machine.Advance() // -> Probing3
	rs.machine.Advance() // -> Announcing1
	rs.machine.Advance() // -> Announcing2
	rs.machine.Advance() // -> Announced
	e.services[svc.QualifiedName()] = rs

	go e.sched.Run(context.Background())

	msg := &message.Message{
		Header: message.Header{QDCount: 1},
		Questions: []records.Question{
			{Name: svc.TypeName(), Type: protocol.TypePTR, Class: protocol.ClassIN},
		},
	}
	e.handleQuery(context.Background(), msg, transport.Packet{
		Source:         &net.UDPAddr{IP: net.ParseIP("192.168.1.20"), Port: 5353},
		InterfaceIndex: 1,
	})

	deadline := time.After(2 * time.Second)
	for {
		sends := mock.Sends()
		if len(sends) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected a response to be sent within the responder delay window")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestResolveProbeConflictsDefersLosingProbe(t *testing.T) {
	mock := transport.NewMockTransport(4)
	e := newTestEngine(mock)
	svc := testService(e)
	rs := &registeredService{svc: svc, machine: state.NewMachine(svc.QualifiedName())}
	e.services[svc.QualifiedName()] = rs

	go e.sched.Run(context.Background())

	ourRecords := svc.Records(time.Now())
	var srv *records.Record
	for _, r := range ourRecords {
		if r.Type == protocol.TypeSRV {
			srv = r
		}
	}
	if srv == nil {
		t.Fatal("expected an SRV record in service records")
	}

	// A competing record with lexicographically later SRV data wins.
	winning := &records.Record{
		Name: srv.Name, Type: protocol.TypeSRV, Class: protocol.ClassIN, TTL: srv.TTL, CreatedAt: time.Now(),
		Service: &records.ServiceData{Priority: 0, Weight: 0, Port: srv.Service.Port, Target: "zzz-wins.local."},
	}

	msg := &message.Message{Authorities: []*records.Record{winning}}
	e.resolveProbeConflicts(msg, 1)

	deadline := time.After(2 * time.Second)
	for {
		if rs.machine.Current() == state.Probing1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected machine to defer back to Probing1, got %s", rs.machine.Current())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
