package responder

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/beacon-mdns/beacon/internal/engine"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// newTestResponder builds a Responder over a MockTransport, bypassing New's
// real socket setup.
func newTestResponder(t *testing.T) (*Responder, *transport.MockTransport) {
	t.Helper()
	mock := transport.NewMockTransport(8)
	iface := net.Interface{Index: 1, Name: "test0"}
	e, err := engine.New("test-host", []net.Interface{iface}, engine.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	e.Start(context.Background())
	t.Cleanup(func() { e.Close() })
	return &Responder{engine: e, hostname: "test-host", primaryIfaceIndex: iface.Index}, mock
}

func TestRegisterValidatesService(t *testing.T) {
	r, _ := newTestResponder(t)
	_, err := r.Register(&Service{ServiceType: "_http._tcp", Port: 80})
	if err == nil {
		t.Fatal("expected validation error for empty instance name")
	}
}

func TestRegisterStartsProbing(t *testing.T) {
	r, mock := newTestResponder(t)
	qualified, err := r.Register(&Service{
		InstanceName: "Kitchen Printer",
		ServiceType:  "_printer._tcp",
		Port:         631,
		TXT:          map[string]string{"rp": "queue1"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if qualified != "Kitchen Printer._printer._tcp.local." {
		t.Fatalf("got qualified name %q", qualified)
	}

	deadline := time.After(2 * time.Second)
	for len(mock.Sends()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a probe to be sent")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRegisterRejectsDuplicateInstance(t *testing.T) {
	r, _ := newTestResponder(t)
	svc := &Service{InstanceName: "Kitchen Printer", ServiceType: "_printer._tcp", Port: 631}
	if _, err := r.Register(svc); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := r.Register(svc); err == nil {
		t.Fatal("expected second Register of the same instance to fail")
	}
}

func TestUnregisterAllClearsTrackedNames(t *testing.T) {
	r, _ := newTestResponder(t)
	for _, name := range []string{"One", "Two"} {
		if _, err := r.Register(&Service{InstanceName: name, ServiceType: "_http._tcp", Port: 8080}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}
	if err := r.UnregisterAll(); err != nil {
		t.Fatalf("UnregisterAll: %v", err)
	}
	r.mu.Lock()
	remaining := len(r.qualified)
	r.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no tracked names after UnregisterAll, got %d", remaining)
	}
}

func TestRegisterTypeAdvertisesWithoutInstance(t *testing.T) {
	r, _ := newTestResponder(t)
	if err := r.RegisterType("_ssh._tcp"); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}
	r.UnregisterType("_ssh._tcp")
}
