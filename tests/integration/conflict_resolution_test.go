// Package integration exercises beacon end-to-end over real multicast
// sockets: two independent Responder/Querier instances on the same host,
// talking over the loopback-reachable mDNS group.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/beacon-mdns/beacon/querier"
	"github.com/beacon-mdns/beacon/responder"
)

// TestConflictResolutionRenamesSecondRegistrant covers the probe-loses
// scenario: two responders racing to register the same instance name settle
// on two distinct names, per RFC 6762 §8.2/§9.
func TestConflictResolutionRenamesSecondRegistrant(t *testing.T) {
	if testing.Short() {
		t.Skip("requires real multicast sockets")
	}

	r1, err := responder.New()
	if err != nil {
		t.Fatalf("responder.New (r1): %v", err)
	}
	defer r1.Close()

	name1, err := r1.Register(&responder.Service{
		InstanceName: "Shared Name",
		ServiceType:  "_http._tcp",
		Port:         8080,
	})
	if err != nil {
		t.Fatalf("Register (r1): %v", err)
	}

	// Let r1 fully probe and announce before r2 starts probing the same
	// name, so r2 is guaranteed to be the one that loses the tie-break.
	time.Sleep(2 * time.Second)

	r2, err := responder.New()
	if err != nil {
		t.Fatalf("responder.New (r2): %v", err)
	}
	defer r2.Close()

	name2, err := r2.Register(&responder.Service{
		InstanceName: "Shared Name",
		ServiceType:  "_http._tcp",
		Port:         8081,
	})
	if err != nil {
		t.Fatalf("Register (r2): %v", err)
	}

	time.Sleep(4 * time.Second) // let r2's probe/rename/re-probe settle

	if name1 == name2 {
		t.Fatalf("expected distinct qualified names after conflict, both resolved to %q", name1)
	}
}

// TestQueryResolvesRegisteredService covers the service-resolution scenario:
// a Querier resolves a Responder's published instance end-to-end.
func TestQueryResolvesRegisteredService(t *testing.T) {
	if testing.Short() {
		t.Skip("requires real multicast sockets")
	}

	r, err := responder.New()
	if err != nil {
		t.Fatalf("responder.New: %v", err)
	}
	defer r.Close()

	qualified, err := r.Register(&responder.Service{
		InstanceName: "Integration Test Printer",
		ServiceType:  "_printer._tcp",
		Port:         631,
		TXT:          map[string]string{"rp": "queue1"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(2 * time.Second) // let announce complete

	q, err := querier.New()
	if err != nil {
		t.Fatalf("querier.New: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := q.GetServiceInfo(ctx, qualified)
	if err != nil {
		t.Fatalf("GetServiceInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected service info to resolve before the timeout")
	}
	if info.Port != 631 {
		t.Fatalf("got port %d, want 631", info.Port)
	}
}
