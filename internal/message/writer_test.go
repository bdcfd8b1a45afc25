package message

import (
	"net"
	"testing"

	"github.com/beacon-mdns/beacon/internal/protocol"
	"github.com/beacon-mdns/beacon/internal/records"
)

func buildTestMessage() *Message {
	return &Message{
		Header: Header{ID: 0, Flags: protocol.FlagQR | protocol.FlagAA},
		Answers: []*records.Record{
			{
				Name:    "host.local.",
				Type:    protocol.TypeA,
				Class:   protocol.ClassIN.WithUnique(true),
				TTL:     120,
				Address: &records.AddressData{IP: net.ParseIP("192.168.1.5")},
			},
			{
				Name:    "_svc._tcp.local.",
				Type:    protocol.TypePTR,
				Class:   protocol.ClassIN,
				TTL:     120,
				Pointer: &records.PointerData{Target: "instance._svc._tcp.local."},
			},
			{
				Name:  "instance._svc._tcp.local.",
				Type:  protocol.TypeSRV,
				Class: protocol.ClassIN.WithUnique(true),
				TTL:   120,
				Service: &records.ServiceData{
					Priority: 0, Weight: 0, Port: 8080, Target: "host.local.",
				},
			},
			{
				Name:  "instance._svc._tcp.local.",
				Type:  protocol.TypeTXT,
				Class: protocol.ClassIN.WithUnique(true),
				TTL:   120,
				Text:  &records.TextData{Raw: records.EncodeTXT([]records.TXTPair{{Key: "path", Value: "/", HasValue: true}})},
			},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	msg := buildTestMessage()
	w := NewMessageWriter()
	buf, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewMessageReader(buf)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Answers) != 4 {
		t.Fatalf("expected 4 answers, got %d", len(got.Answers))
	}

	a := got.Answers[0]
	if a.Name != "host.local." || a.Type != protocol.TypeA || !a.Class.Unique() {
		t.Fatalf("unexpected A record: %+v", a)
	}
	if a.Address.IP.String() != "192.168.1.5" {
		t.Fatalf("got address %v", a.Address.IP)
	}

	ptr := got.Answers[1]
	if ptr.Pointer == nil || ptr.Pointer.Target != "instance._svc._tcp.local." {
		t.Fatalf("unexpected PTR record: %+v", ptr)
	}

	srv := got.Answers[2]
	if srv.Service == nil || srv.Service.Port != 8080 || srv.Service.Target != "host.local." {
		t.Fatalf("unexpected SRV record: %+v", srv)
	}

	txt := got.Answers[3]
	pairs := txt.Text.Pairs()
	if len(pairs) != 1 || pairs[0].Key != "path" || pairs[0].Value != "/" {
		t.Fatalf("unexpected TXT pairs: %+v", pairs)
	}
}

func TestWriteMessageCompressesNames(t *testing.T) {
	msg := buildTestMessage()
	w := NewMessageWriter()
	buf, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatal(err)
	}

	// Lower bound on the size of the same message with every owner name
	// written out in full: the 12-byte header plus, per answer, the name's
	// wire length and the 10-byte type/class/TTL/RDLENGTH fields.
	uncompressedApprox := 12
	for _, r := range msg.Answers {
		uncompressedApprox += len(r.Name) + 1 + 10
	}
	if len(buf) > 500 {
		t.Fatalf("expected compact (compressed) message, got %d bytes", len(buf))
	}
	if len(buf) >= uncompressedApprox {
		t.Fatalf("expected compressed message shorter than %d bytes, got %d", uncompressedApprox, len(buf))
	}
}

// TestWriteSynthesizesIPv4IntoAAAASlot covers RFC 6762 host-record
// synthesis: an IPv4 address written into an AAAA slot is padded with 12
// leading zero bytes rather than rejected.
func TestWriteSynthesizesIPv4IntoAAAASlot(t *testing.T) {
	msg := &Message{
		Answers: []*records.Record{
			{
				Name:    "host.local.",
				Type:    protocol.TypeAAAA,
				Class:   protocol.ClassIN,
				TTL:     120,
				Address: &records.AddressData{IP: net.ParseIP("192.168.1.5")},
			},
		},
	}
	w := NewMessageWriter()
	buf, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewMessageReader(buf).ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ip := got.Answers[0].Address.IP
	if len(ip) != 16 {
		t.Fatalf("expected a 16-byte AAAA address, got %d bytes", len(ip))
	}
	for i := 0; i < 12; i++ {
		if ip[i] != 0 {
			t.Fatalf("expected 12 leading zero bytes, got %v", ip)
		}
	}
	if !net.IP(ip[12:]).Equal(net.ParseIP("192.168.1.5").To4()) {
		t.Fatalf("expected last 4 bytes to carry the IPv4 address, got %v", ip[12:])
	}
}

// TestWriteSynthesizesIPv6IntoASlot covers the inverse direction: an
// IPv6-only address written into an A slot keeps only its last 4 bytes.
func TestWriteSynthesizesIPv6IntoASlot(t *testing.T) {
	msg := &Message{
		Answers: []*records.Record{
			{
				Name:    "host.local.",
				Type:    protocol.TypeA,
				Class:   protocol.ClassIN,
				TTL:     120,
				Address: &records.AddressData{IP: net.ParseIP("2001:db8::1")},
			},
		},
	}
	w := NewMessageWriter()
	buf, err := w.WriteMessage(msg)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewMessageReader(buf).ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ip := got.Answers[0].Address.IP
	if len(ip) != 4 {
		t.Fatalf("expected a 4-byte A address, got %d bytes", len(ip))
	}
	full := net.ParseIP("2001:db8::1").To16()
	if !net.IP(ip).Equal(net.IP(full[12:])) {
		t.Fatalf("expected last 4 bytes of the IPv6 address, got %v want %v", ip, full[12:])
	}
}
