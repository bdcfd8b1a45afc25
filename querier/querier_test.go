package querier

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/beacon-mdns/beacon/internal/engine"
	"github.com/beacon-mdns/beacon/internal/message"
	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
	"github.com/beacon-mdns/beacon/internal/transport"
)

// newTestQuerier builds a Querier over a MockTransport, bypassing New's
// real socket setup, the same way internal/engine's own tests do.
func newTestQuerier(t *testing.T) (*Querier, *transport.MockTransport) {
	t.Helper()
	mock := transport.NewMockTransport(8)
	e, err := engine.New("test-querier", []net.Interface{{Index: 1, Name: "test0"}}, engine.WithTransports(mock, nil))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	e.Start(context.Background())
	t.Cleanup(func() { e.Close() })
	return &Querier{engine: e, defaultTimeout: 200 * time.Millisecond}, mock
}

func TestAddServiceTypeListenerFiresOnEnumerationAnswer(t *testing.T) {
	q, mock := newTestQuerier(t)

	seen := make(chan string, 1)
	cancel := q.AddServiceTypeListener(func(serviceType string, kind ChangeKind) {
		select {
		case seen <- serviceType:
		default:
		}
	})
	defer cancel()

	deadline := time.After(time.Second)
	for len(mock.Sends()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an enumeration query to be sent")
		case <-time.After(5 * time.Millisecond):
		}
	}

	now := time.Now()
	mock.Enqueue(answerPacket(t, &records.Record{
		Name:      servicesTypeEnumerationName,
		Type:      protocol.TypePTR,
		Class:     protocol.ClassIN,
		TTL:       protocol.TTLService,
		CreatedAt: now,
		Pointer:   &records.PointerData{Target: "_http._tcp.local."},
	}))

	select {
	case got := <-seen:
		if got != "_http._tcp.local." {
			t.Fatalf("got serviceType %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}

func TestAddServiceListenerResolvesInstance(t *testing.T) {
	q, mock := newTestQuerier(t)

	seen := make(chan ServiceInfo, 1)
	cancel := q.AddServiceListener("_http._tcp", func(info ServiceInfo, kind ChangeKind) {
		select {
		case seen <- info:
		default:
		}
	})
	defer cancel()

	now := time.Now()
	mock.Enqueue(answerPacket(t, &records.Record{
		Name:      "_http._tcp.local.",
		Type:      protocol.TypePTR,
		Class:     protocol.ClassIN,
		TTL:       protocol.TTLService,
		CreatedAt: now,
		Pointer:   &records.PointerData{Target: "My Printer._http._tcp.local."},
	}))

	select {
	case info := <-seen:
		if info.InstanceName != "My Printer" {
			t.Fatalf("got instance name %q", info.InstanceName)
		}
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}

func TestGetServiceInfoTimesOutWithoutAnswer(t *testing.T) {
	q, _ := newTestQuerier(t)

	info, err := q.GetServiceInfo(context.Background(), "Nothing Here._http._tcp.local.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != nil {
		t.Fatalf("expected nil info on timeout, got %+v", info)
	}
}

func TestGetServiceInfoResolvesFromCachedSRV(t *testing.T) {
	q, mock := newTestQuerier(t)

	qualified := "My Printer._http._tcp.local."
	now := time.Now()
	mock.Enqueue(answerPacket(t, &records.Record{
		Name:      qualified,
		Type:      protocol.TypeSRV,
		Class:     protocol.ClassIN.WithUnique(true),
		TTL:       protocol.TTLService,
		CreatedAt: now,
		Service:   &records.ServiceData{Port: 631, Target: "printer.local."},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	info, err := q.GetServiceInfo(ctx, qualified)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil || info.Host != "printer.local." || info.Port != 631 {
		t.Fatalf("got %+v", info)
	}
}

// answerPacket wraps a single answer record in a minimal response message
// and returns the transport.Packet a receive loop would hand to the engine.
// The source is an IPv4 link-local address so the engine's source filter
// accepts it whatever subnets the test interface carries.
func answerPacket(t *testing.T, r *records.Record) transport.Packet {
	t.Helper()
	msg := &message.Message{
		Header:  message.Header{Flags: protocol.FlagQR | protocol.FlagAA},
		Answers: []*records.Record{r},
	}
	msg.Header.ANCount = 1
	buf, err := message.NewMessageWriter().WriteMessage(msg)
	if err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	return transport.Packet{
		Data:           buf,
		Source:         &net.UDPAddr{IP: net.ParseIP("169.254.1.50"), Port: 5353},
		InterfaceIndex: 1,
	}
}
